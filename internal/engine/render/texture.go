package render

// Format is the pixel layout of a texture.
type Format int

const (
	FormatRGBA8 Format = iota
)

// BytesPerPixel returns the pixel size of f.
func (f Format) BytesPerPixel() int {
	return 4
}

// Texture is a CPU pixel buffer. Backends upload it once per name.
type Texture struct {
	Resource

	Name   string
	Width  int
	Height int
	Format Format
	Data   []byte
}

// NewTexture wraps RGBA8 pixels.
func NewTexture(name string, width, height int, data []byte) *Texture {
	return &Texture{Name: name, Width: width, Height: height, Format: FormatRGBA8, Data: data}
}

// Size returns the expected byte length of Data.
func (t *Texture) Size() int {
	return t.Width * t.Height * t.Format.BytesPerPixel()
}
