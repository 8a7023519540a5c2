package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrTGA wraps every TGA decoding failure.
var ErrTGA = errors.New("tga")

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

const tgaHeaderSize = 18

// DecodeTGA decodes a TGA image file.
// Supports uncompressed true-color (type 2) and RLE compressed (type 10)
// files at 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("%w: data too short", ErrTGA)
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := int(data[2])
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped images not supported", ErrTGA)
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("%w: unsupported type %d", ErrTGA, imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrTGA, bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("%w: data truncated", ErrTGA)
	}

	d := tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		width:       width,
		height:      height,
		pixelSize:   bpp / 8,
		topToBottom: descriptor&0x20 != 0,
	}

	if imageType == TGATypeUncompressed {
		if len(d.src) < width*height*d.pixelSize {
			return nil, fmt.Errorf("%w: pixel data truncated", ErrTGA)
		}
		for d.pos < width*height {
			d.put(d.next())
		}
		return d.img, nil
	}

	if err := d.decodeRLE(); err != nil {
		return nil, err
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.RGBA
	src         []byte
	read        int // bytes consumed from src
	pos         int // pixels written
	width       int
	height      int
	pixelSize   int
	topToBottom bool
}

// next reads one BGR(A) pixel.
func (d *tgaDecoder) next() color.RGBA {
	p := d.src[d.read : d.read+d.pixelSize]
	d.read += d.pixelSize
	c := color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if d.pixelSize == 4 {
		c.A = p[3]
	}
	return c
}

func (d *tgaDecoder) available() bool {
	return d.read+d.pixelSize <= len(d.src)
}

// put writes c at the current pixel, flipping rows for bottom-up images.
func (d *tgaDecoder) put(c color.RGBA) {
	x, y := d.pos%d.width, d.pos/d.width
	if !d.topToBottom {
		y = d.height - 1 - y
	}
	d.img.SetRGBA(x, y, c)
	d.pos++
}

func (d *tgaDecoder) decodeRLE() error {
	total := d.width * d.height
	for d.pos < total {
		if d.read >= len(d.src) {
			return fmt.Errorf("%w: RLE data truncated at pixel %d", ErrTGA, d.pos)
		}
		packet := d.src[d.read]
		d.read++
		count := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			if !d.available() {
				return fmt.Errorf("%w: RLE data truncated at pixel %d", ErrTGA, d.pos)
			}
			c := d.next()
			for i := 0; i < count && d.pos < total; i++ {
				d.put(c)
			}
			continue
		}

		for i := 0; i < count && d.pos < total; i++ {
			if !d.available() {
				return fmt.Errorf("%w: RLE data truncated at pixel %d", ErrTGA, d.pos)
			}
			d.put(d.next())
		}
	}
	return nil
}
