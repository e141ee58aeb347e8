// Package vimba acquires decoded image frames from machine vision cameras
// through a vendor SDK.
//
// The vendor SDK is consumed through the SDK and Camera interfaces. A
// Recorder opens one camera exclusively, starts continuous acquisition into a
// small pool of SDK-owned frame buffers and converts every complete frame into
// an Image owned by the caller. Converted frames are sent on the channel
// returned by Recorder.Events.
package vimba

import (
	"fmt"
	"strings"
)

// SDK is the process-wide vendor subsystem. Startup and Shutdown bracket every
// use of the cameras it reports.
type SDK interface {
	Startup() error
	Shutdown() error

	// Cameras returns the attached cameras in the order the SDK reports them.
	Cameras() ([]Camera, error)
}

// Camera is a physical device reported by an SDK. A Camera is only valid
// between the SDK's Startup and Shutdown.
type Camera interface {
	ID() string
	SerialNumber() string

	Open(mode AccessMode) error
	Close() error

	// PermittedAccess returns AccessNone once the camera is closed, or is being
	// closed.
	PermittedAccess() AccessMode

	// RegisterFrameHandler installs the function called for every frame filled
	// during continuous acquisition. The handler runs on an SDK-owned
	// goroutine.
	RegisterFrameHandler(h FrameHandler) error

	// StartContinuousAcquisition announces frameCount buffers to the device and
	// starts streaming into them.
	StartContinuousAcquisition(frameCount int) error
	StopContinuousAcquisition() error

	// QueueFrame hands a frame buffer back to the device so it can be filled
	// again.
	QueueFrame(f *Frame) error
}

// FrameHandler receives a frame from the SDK. The frame and its buffer belong
// to the SDK and must not be retained after the handler returns.
type FrameHandler func(f *Frame) error

// AccessMode is the access a client has to a camera.
type AccessMode int

// Access modes.
const (
	AccessNone AccessMode = iota
	AccessFull
	AccessRead
)

func (m AccessMode) String() string {
	switch m {
	case AccessNone:
		return "none"
	case AccessFull:
		return "full"
	case AccessRead:
		return "read"
	}
	return fmt.Sprintf("AccessMode(%d)", int(m))
}

// FrameStatus is the receive status the SDK reports for a frame.
type FrameStatus int

// Frame receive statuses. Only complete frames are converted.
const (
	FrameComplete FrameStatus = iota
	FrameIncomplete
	FrameTooSmall
	FrameInvalid
)

func (s FrameStatus) String() string {
	switch s {
	case FrameComplete:
		return "complete"
	case FrameIncomplete:
		return "incomplete"
	case FrameTooSmall:
		return "too small"
	case FrameInvalid:
		return "invalid"
	}
	return fmt.Sprintf("FrameStatus(%d)", int(s))
}

// Frame is a frame buffer filled by the device.
type Frame struct {
	Buffer      []byte // Owned by the SDK. Row-major, no padding.
	Width       int
	Height      int
	PixelFormat PixelFormat
	FrameID     uint64 // Monotonic per camera.
	Timestamp   uint64 // Device clock ticks.
	Status      FrameStatus
}

// PixelFormat is a GenICam PFNC pixel format code, as reported by the SDK.
type PixelFormat uint32

// Pixel formats. Only Mono8, RGB8 and BGR8 can be converted.
const (
	PixelFormatMono8     PixelFormat = 0x01080001
	PixelFormatMono10    PixelFormat = 0x01100003
	PixelFormatMono12    PixelFormat = 0x01100005
	PixelFormatMono16    PixelFormat = 0x01100007
	PixelFormatBayerGR8  PixelFormat = 0x01080008
	PixelFormatBayerRG8  PixelFormat = 0x01080009
	PixelFormatBayerGB8  PixelFormat = 0x0108000A
	PixelFormatBayerBG8  PixelFormat = 0x0108000B
	PixelFormatRGB8      PixelFormat = 0x02180014
	PixelFormatBGR8      PixelFormat = 0x02180015
	PixelFormatRGBA8     PixelFormat = 0x02200016
	PixelFormatBGRA8     PixelFormat = 0x02200017
	PixelFormatYUV422    PixelFormat = 0x0210001F
	PixelFormatYCbCr8    PixelFormat = 0x0218005B
	PixelFormatYCbCr422  PixelFormat = 0x0210003B
	PixelFormatRGB12Pckd PixelFormat = 0x02240090
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatMono8:     "Mono8",
	PixelFormatMono10:    "Mono10",
	PixelFormatMono12:    "Mono12",
	PixelFormatMono16:    "Mono16",
	PixelFormatBayerGR8:  "BayerGR8",
	PixelFormatBayerRG8:  "BayerRG8",
	PixelFormatBayerGB8:  "BayerGB8",
	PixelFormatBayerBG8:  "BayerBG8",
	PixelFormatRGB8:      "RGB8",
	PixelFormatBGR8:      "BGR8",
	PixelFormatRGBA8:     "RGBA8",
	PixelFormatBGRA8:     "BGRA8",
	PixelFormatYUV422:    "YUV422",
	PixelFormatYCbCr8:    "YCbCr8",
	PixelFormatYCbCr422:  "YCbCr422_8",
	PixelFormatRGB12Pckd: "RGB12Packed",
}

func (p PixelFormat) String() string {
	if name, ok := pixelFormatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(0x%08x)", uint32(p))
}

// ParsePixelFormat returns the pixel format with the given name, compared case
// insensitively, e.g. "Mono8" or "bgr8".
func ParsePixelFormat(name string) (PixelFormat, bool) {
	for p, n := range pixelFormatNames {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return 0, false
}
