package vimba

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors ending a session. Use errors.Is to test for them, the returned errors
// carry more context.
var (
	ErrSDKUnavailable         = errors.New("sdk unavailable")
	ErrCameraNotFound         = errors.New("camera not found")
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")
	ErrFrameCallback          = errors.New("frame callback fault")
	ErrRequeue                = errors.New("requeueing frame")
)

// FrameError is a fault while converting or emitting a frame. It matches
// ErrFrameCallback and the error that caused it.
type FrameError struct {
	FrameID uint64
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.FrameID, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Is reports whether target is ErrFrameCallback.
func (e *FrameError) Is(target error) bool { return target == ErrFrameCallback }

// RequeueError is a failure to hand a frame buffer back to the SDK while the
// camera was still accessible. It matches ErrRequeue.
type RequeueError struct {
	FrameID uint64
	Err     error
}

func (e *RequeueError) Error() string {
	return fmt.Sprintf("requeueing frame %d: %v", e.FrameID, e.Err)
}

func (e *RequeueError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRequeue.
func (e *RequeueError) Is(target error) bool { return target == ErrRequeue }
