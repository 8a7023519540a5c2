// Package texture decodes image files into RGBA8 textures.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// ErrUnsupportedFormat is returned for data no decoder recognizes.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format returns the detected format of data: the sniffed file extension
// ("png", "jpg", "bmp", ...), or "tga" for TGA files, which carry no magic
// number and are recognized by name.
func Format(name string, data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return kind.Extension, nil
	}
	if strings.EqualFold(path.Ext(name), ".tga") {
		return "tga", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// DecodeImage decodes data into an image.
func DecodeImage(name string, data []byte) (image.Image, error) {
	format, err := Format(name, data)
	if err != nil {
		return nil, err
	}
	if format == "tga" {
		return DecodeTGA(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s as %s: %w", name, format, err)
	}
	return img, nil
}

// Decode decodes data into an RGBA8 texture named name.
func Decode(name string, data []byte) (*render.Texture, error) {
	img, err := DecodeImage(name, data)
	if err != nil {
		return nil, err
	}
	rgba := ImageToRGBA(img)
	b := rgba.Bounds()
	return render.NewTexture(name, b.Dx(), b.Dy(), rgba.Pix), nil
}

// ImageToRGBA converts any image.Image to a tightly packed *image.RGBA with
// its origin at (0, 0).
func ImageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
