package vimba

import (
	"image"
	"sync"

	"github.com/pkg/errors"
)

// Image is a decoded 8-bit image owned by the caller. Pixels are row-major
// without padding; 3-channel images are in BGR order.
type Image struct {
	Width    int
	Height   int
	Channels int // 1 or 3.
	Pix      []byte
}

// Stride returns the number of bytes in one row.
func (img *Image) Stride() int {
	return img.Width * img.Channels
}

// ToImage returns a copy of img as a *image.Gray for 1 channel, or a
// *image.NRGBA for 3 channels.
func (img *Image) ToImage() image.Image {
	r := image.Rect(0, 0, img.Width, img.Height)
	if img.Channels == 1 {
		g := image.NewGray(r)
		copy(g.Pix, img.Pix)
		return g
	}
	n := image.NewNRGBA(r)
	for i, j := 0, 0; i+2 < len(img.Pix) && j+3 < len(n.Pix); i, j = i+3, j+4 {
		n.Pix[j+0] = img.Pix[i+2]
		n.Pix[j+1] = img.Pix[i+1]
		n.Pix[j+2] = img.Pix[i+0]
		n.Pix[j+3] = 0xff
	}
	return n
}

// Converter turns an SDK frame into an Image with freshly allocated pixels.
// The result stays valid after the frame is handed back to the SDK.
type Converter func(f *Frame) (*Image, error)

// ConverterFor returns the converter for frames in pixel format p. Mono8 and
// BGR8 are copied, RGB8 has its red and blue channels swapped. Other formats
// return an error matching ErrUnsupportedPixelFormat.
func ConverterFor(p PixelFormat) (Converter, error) {
	var channels int
	var swapRB bool
	switch p {
	case PixelFormatMono8:
		channels = 1
	case PixelFormatBGR8:
		channels = 3
	case PixelFormatRGB8:
		channels = 3
		swapRB = true
	default:
		return nil, errors.Wrapf(ErrUnsupportedPixelFormat, "unable to convert pixel format %s", p)
	}

	return func(f *Frame) (*Image, error) {
		if f.Width < 0 || f.Height < 0 {
			return nil, errors.Errorf("invalid frame size %dx%d", f.Width, f.Height)
		}
		n := f.Width * f.Height * channels
		if len(f.Buffer) < n {
			return nil, errors.Errorf("frame buffer has %d bytes, %dx%d %s needs %d", len(f.Buffer), f.Width, f.Height, p, n)
		}
		src := f.Buffer[:n:n]
		img := &Image{
			Width:    f.Width,
			Height:   f.Height,
			Channels: channels,
			Pix:      make([]byte, n),
		}
		if !swapRB {
			copy(img.Pix, src)
			return img, nil
		}
		for i := 0; i < n; i += 3 {
			img.Pix[i+0] = src[i+2]
			img.Pix[i+1] = src[i+1]
			img.Pix[i+2] = src[i+0]
		}
		return img, nil
	}, nil
}

// converterCache keeps the converter for the pixel format of the last frame.
// The converter is looked up again only when the format changes.
type converterCache struct {
	lookup func(PixelFormat) (Converter, error)

	mu     sync.Mutex
	format PixelFormat
	conv   Converter
}

func newConverterCache() *converterCache {
	return &converterCache{lookup: ConverterFor}
}

func (c *converterCache) get(p PixelFormat) (Converter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv != nil && c.format == p {
		return c.conv, nil
	}
	conv, err := c.lookup(p)
	if err != nil {
		return nil, err
	}
	c.conv = conv
	c.format = p
	return conv, nil
}
