package render

// UniformBuffer is a fixed-size, host-visible block read by shaders as a
// storage buffer.
type UniformBuffer struct {
	Resource

	Name string
	Size int
}

// NewUniformBuffer creates a dirty buffer of size bytes.
func NewUniformBuffer(name string, size int) *UniformBuffer {
	return &UniformBuffer{Name: name, Size: size}
}

// Align rounds size up to a multiple of alignment. An alignment below 2
// leaves size unchanged.
func Align(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	if r := size % alignment; r != 0 {
		size += alignment - r
	}
	return size
}
