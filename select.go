package vimba

import (
	"strconv"

	"github.com/pkg/errors"
)

// Selector picks the camera a Recorder opens. If SerialNumber is not empty it
// is used, otherwise Index is. The zero Selector is the first camera.
type Selector struct {
	Index        int
	SerialNumber string
}

// ByIndex selects the i-th camera in SDK enumeration order.
func ByIndex(i int) Selector {
	return Selector{Index: i}
}

// BySerial selects the camera with serial number s.
func BySerial(s string) Selector {
	return Selector{SerialNumber: s}
}

func (s Selector) String() string {
	if s.SerialNumber != "" {
		return "serial " + s.SerialNumber
	}
	return "index " + strconv.Itoa(s.Index)
}

// Resolve returns the camera in cameras that sel selects. Cameras are scanned
// to the end when selecting by serial number, so with duplicate serial numbers
// the last match wins. Resolve returns an error matching ErrCameraNotFound if
// no camera is selected.
func Resolve(sel Selector, cameras []Camera) (Camera, error) {
	if sel.SerialNumber != "" {
		var camera Camera
		for _, c := range cameras {
			if c.SerialNumber() == sel.SerialNumber {
				camera = c
			}
		}
		if camera == nil {
			return nil, errors.Wrapf(ErrCameraNotFound, "no camera with serial number %q", sel.SerialNumber)
		}
		return camera, nil
	}

	if sel.Index < 0 || sel.Index >= len(cameras) {
		return nil, errors.Wrapf(ErrCameraNotFound, "no camera at index %d (%d cameras)", sel.Index, len(cameras))
	}
	return cameras[sel.Index], nil
}
