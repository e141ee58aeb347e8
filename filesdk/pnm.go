package filesdk

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spakin/netpbm"

	vimba "github.com/edgeimpulse/vimba-go"
)

// rawFrame is a decoded frame file.
type rawFrame struct {
	width  int
	height int
	format vimba.PixelFormat
	pix    []byte
}

// frameFormat returns the pixel format named in a frame file name such as
// "frame.BGR8.ppm". If the name has no known format before its extension,
// def is returned.
func frameFormat(name string, def vimba.PixelFormat) vimba.PixelFormat {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	inner := filepath.Ext(base)
	if inner == "" {
		return def
	}
	if p, ok := vimba.ParsePixelFormat(inner[1:]); ok {
		return p
	}
	return def
}

// decodeFrameFile reads a binary PGM (P5) or PPM (P6) image with a maxval of
// 255. P5 is Mono8 and P6 is RGB8, unless name carries another pixel format.
func decodeFrameFile(r io.Reader, name string) (*rawFrame, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}

	var target netpbm.Format
	var channels int
	var def vimba.PixelFormat
	switch string(magic) {
	case "P5":
		target, channels, def = netpbm.PGM, 1, vimba.PixelFormatMono8
	case "P6":
		target, channels, def = netpbm.PPM, 3, vimba.PixelFormatRGB8
	default:
		return nil, errors.Errorf("unsupported magic %q", magic)
	}

	img, err := netpbm.Decode(br, &netpbm.DecodeOptions{Target: target, Exact: true})
	if err != nil {
		return nil, errors.Wrap(err, "decoding frame file")
	}
	if img.MaxValue() != 255 {
		return nil, errors.Errorf("unsupported maxval %d", img.MaxValue())
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", b.Dx(), b.Dy())
	}

	f := &rawFrame{
		width:  b.Dx(),
		height: b.Dy(),
		format: frameFormat(name, def),
		pix:    make([]byte, 0, b.Dx()*b.Dy()*channels),
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				f.pix = append(f.pix, color.GrayModel.Convert(c).(color.Gray).Y)
				continue
			}
			cr, cg, cb, _ := c.RGBA()
			f.pix = append(f.pix, byte(cr>>8), byte(cg>>8), byte(cb>>8))
		}
	}
	return f, nil
}

// WriteFrame writes a frame file to dir, the directory of a camera, where a
// streaming camera picks it up. Pix holds one byte per pixel for a PGM file,
// or three for a PPM file. Format must be a named pixel format. It is recorded
// in the file name, as in "name.BGR8.ppm", and delivered as the frame's pixel
// format, even if it cannot be converted.
//
// The file is written under a temporary name and renamed, so the camera never
// reads a partial frame.
func WriteFrame(dir, name string, width, height int, format vimba.PixelFormat, pix []byte) error {
	if _, ok := vimba.ParsePixelFormat(format.String()); !ok {
		return errors.Errorf("frame file for unnamed pixel format %s", format)
	}

	r := image.Rect(0, 0, width, height)
	var img image.Image
	var opts netpbm.EncodeOptions
	ext := ".pgm"
	switch len(pix) {
	case width * height:
		g := image.NewGray(r)
		copy(g.Pix, pix)
		img = g
		opts = netpbm.EncodeOptions{Format: netpbm.PGM, MaxValue: 255}
	case width * height * 3:
		rgba := image.NewRGBA(r)
		for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
			copy(rgba.Pix[j:j+3], pix[i:i+3])
			rgba.Pix[j+3] = 0xff
		}
		img = rgba
		opts = netpbm.EncodeOptions{Format: netpbm.PPM, MaxValue: 255}
		ext = ".ppm"
	default:
		return errors.Errorf("%d bytes of pixels for %dx%d frame, expected 1 or 3 bytes per pixel", len(pix), width, height)
	}

	var buf bytes.Buffer
	if err := netpbm.Encode(&buf, img, &opts); err != nil {
		return errors.Wrap(err, "encoding frame file")
	}

	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating frame file")
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing frame file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "closing frame file")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name+"."+format.String()+ext)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "renaming frame file")
	}
	return nil
}
