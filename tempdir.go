package vimba

import (
	"os"
)

// TempDir creates a directory for frame files. It prefers the memory-backed
// /dev/shm and falls back to os.TempDir.
func TempDir() (string, error) {
	// Frame files written to disk-backed storage slow down fast cameras.
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", "vimba-capture")
		if err == nil {
			return dir, nil
		}
	}
	return os.MkdirTemp("", "vimba-capture")
}
