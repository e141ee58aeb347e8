// Package cvframe converts vimba frames and images to and from OpenCV
// matrices.
package cvframe

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	vimba "github.com/edgeimpulse/vimba-go"
)

func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	}
	return 0, errors.Errorf("unsupported channel count %d", channels)
}

// ToMat returns a BGR or grayscale Mat with a copy of the pixels of img. The
// caller must Close the Mat.
func ToMat(img *vimba.Image) (gocv.Mat, error) {
	mt, err := matType(img.Channels)
	if err != nil {
		return gocv.Mat{}, err
	}
	if len(img.Pix) < img.Width*img.Height*img.Channels {
		return gocv.Mat{}, errors.Errorf("image has %d bytes, expected %d", len(img.Pix), img.Width*img.Height*img.Channels)
	}
	view, err := gocv.NewMatFromBytes(img.Height, img.Width, mt, img.Pix)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "new mat")
	}
	defer view.Close()
	return view.Clone(), nil
}

// FromMat returns an Image with a copy of the pixels of a CV_8UC1 or CV_8UC3
// Mat.
func FromMat(m gocv.Mat) (*vimba.Image, error) {
	if m.Empty() {
		return nil, errors.New("empty mat")
	}
	if _, err := matType(m.Channels()); err != nil {
		return nil, err
	}
	if m.Type() != gocv.MatTypeCV8UC1 && m.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Errorf("unsupported mat type %v", m.Type())
	}
	return &vimba.Image{
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: m.Channels(),
		Pix:      m.ToBytes(),
	}, nil
}

// Convert converts a frame to a BGR or grayscale Mat using OpenCV, with the
// same pixel formats and results as vimba.ConverterFor. The Mat does not
// reference the frame buffer. The caller must Close the Mat.
func Convert(f *vimba.Frame) (gocv.Mat, error) {
	var channels int
	rgb := false
	switch f.PixelFormat {
	case vimba.PixelFormatMono8:
		channels = 1
	case vimba.PixelFormatBGR8:
		channels = 3
	case vimba.PixelFormatRGB8:
		channels = 3
		rgb = true
	default:
		return gocv.Mat{}, errors.Wrapf(vimba.ErrUnsupportedPixelFormat, "unable to convert pixel format %s", f.PixelFormat)
	}
	mt, _ := matType(channels)

	n := f.Width * f.Height * channels
	if f.Width <= 0 || f.Height <= 0 || len(f.Buffer) < n {
		return gocv.Mat{}, errors.Errorf("frame buffer has %d bytes, %dx%d %s needs %d", len(f.Buffer), f.Width, f.Height, f.PixelFormat, n)
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Buffer[:n])
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "new mat")
	}
	defer src.Close()

	if !rgb {
		return src.Clone(), nil
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorRGBToBGR)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, errors.New("converting rgb to bgr")
	}
	return dst, nil
}
