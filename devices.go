package vimba

import (
	"go.uber.org/multierr"
)

// ListSerialNumbers returns the serial numbers of the cameras attached to sys,
// in SDK order. Cameras without a serial number are left out. It runs its own
// startup and shutdown, so it can be called while Recorders are streaming.
func ListSerialNumbers(sys *System) (serials []string, rerr error) {
	if sys == nil {
		sys = Default()
	}
	defer func() {
		rerr = multierr.Append(rerr, sys.shutdown())
	}()

	cameras, err := sys.startup()
	if err != nil {
		return nil, err
	}
	serials = []string{}
	for _, c := range cameras {
		if s := c.SerialNumber(); s != "" {
			serials = append(serials, s)
		}
	}
	return serials, nil
}
