package filesdk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	vimba "github.com/edgeimpulse/vimba-go"
)

func TestDecodeFrameFile(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		in     string
		w, h   int
		format vimba.PixelFormat
		pix    string
	}{
		{"pgm", "a.pgm", "P5\n2 1\n255\nab", 2, 1, vimba.PixelFormatMono8, "ab"},
		{"ppm", "a.ppm", "P6 1 1 255\nabc", 1, 1, vimba.PixelFormatRGB8, "abc"},
		{"comments", "a.pgm", "P5\n# made by hand\n1\n1\n255\nz", 1, 1, vimba.PixelFormatMono8, "z"},
		{"pixel format", "cam0/a.BGR8.ppm", "P6\n1 1\n255\nabc", 1, 1, vimba.PixelFormatBGR8, "abc"},
		{"pixel format case", "a.bayerrg8.pgm", "P5\n1 1\n255\nq", 1, 1, vimba.PixelFormatBayerRG8, "q"},
		{"unknown tag", "frame.001.pgm", "P5\n1 1\n255\nq", 1, 1, vimba.PixelFormatMono8, "q"},
		{"trailing data", "a.pgm", "P5\n1 1\n255\nxyz", 1, 1, vimba.PixelFormatMono8, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeFrameFile(strings.NewReader(tt.in), tt.file)
			require.NoError(t, err)
			require.Equal(t, tt.w, f.width)
			require.Equal(t, tt.h, f.height)
			require.Equal(t, tt.format, f.format)
			require.Equal(t, []byte(tt.pix), f.pix)
		})
	}
}

func TestDecodeFrameFileErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"P3\n1 1\n255\n",
		"P4\n1 1\n\x00",
		"P5\nx 1\n255\n",
		"P5\n1 1\n65535\nab",
		"P5\n2 2\n255\nabc",
	} {
		if _, err := decodeFrameFile(strings.NewReader(in), "a.pgm"); err == nil {
			t.Fatalf("missing error decoding %q", in)
		}
	}
}
