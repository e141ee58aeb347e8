// Package vimbatest provides an in-memory SDK for testing code that uses
// package vimba.
//
// The SDK records every call in order, can fail any call on request and lets
// a test deliver frames to the registered frame handler.
package vimbatest

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	vimba "github.com/edgeimpulse/vimba-go"
)

// SDK is a fake vimba.SDK. Set the exported error fields before use.
type SDK struct {
	StartupErr  error
	ShutdownErr error
	CamerasErr  error

	// Delay is how long Startup and Shutdown take, to make overlapping calls
	// from concurrent sessions observable.
	Delay time.Duration

	// If set, Startup blocks until StartupGate is closed.
	StartupGate chan struct{}

	mu      sync.Mutex
	cameras []*Camera
	calls   []string
	active  int
	overlap bool
}

// Check that SDK implements interface vimba.SDK.
var _ vimba.SDK = (*SDK)(nil)

// New returns an SDK reporting cameras in the given order.
func New(cameras ...*Camera) *SDK {
	s := &SDK{}
	for _, c := range cameras {
		s.Add(c)
	}
	return s
}

// Add attaches another camera.
func (s *SDK) Add(c *Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.sdk = s
	s.cameras = append(s.cameras, c)
}

func (s *SDK) record(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

// Calls returns the calls made so far, e.g. "startup", "open cam0".
func (s *SDK) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how often call was made.
func (s *SDK) Count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Overlapped reports whether two Startup or Shutdown calls ever ran at the
// same time.
func (s *SDK) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}

func (s *SDK) enter() {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlap = true
	}
	s.mu.Unlock()
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func (s *SDK) Startup() error {
	s.record("startup")
	if s.StartupGate != nil {
		<-s.StartupGate
	}
	s.enter()
	return s.StartupErr
}

func (s *SDK) Shutdown() error {
	s.record("shutdown")
	s.enter()
	return s.ShutdownErr
}

func (s *SDK) Cameras() ([]vimba.Camera, error) {
	s.record("cameras")
	if s.CamerasErr != nil {
		return nil, s.CamerasErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := make([]vimba.Camera, len(s.cameras))
	for i, c := range s.cameras {
		l[i] = c
	}
	return l, nil
}

// Camera is a fake vimba.Camera. Set the exported error fields before the
// camera is used by a session.
type Camera struct {
	OpenErr     error
	CloseErr    error
	RegisterErr error
	StartErr    error
	StopErr     error

	// QueueErr is returned by QueueFrame while the camera is accessible. Use
	// SetQueueErr once the camera streams.
	QueueErr error

	id     string
	serial string
	sdk    *SDK

	mu         sync.Mutex
	access     vimba.AccessMode
	handler    vimba.FrameHandler
	streaming  bool
	frameCount int
	requeued   []uint64
	started    chan struct{}
	stopped    chan struct{}

	// Deliver calls in progress. Stop waits for them, as the vendor SDK does.
	handlers sync.WaitGroup
}

// Check that Camera implements interface vimba.Camera.
var _ vimba.Camera = (*Camera)(nil)

// NewCamera returns a camera with the given id and serial number.
func NewCamera(id, serial string) *Camera {
	return &Camera{
		id:      id,
		serial:  serial,
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (c *Camera) record(call string) {
	if c.sdk != nil {
		c.sdk.record("%s %s", call, c.id)
	}
}

func (c *Camera) ID() string           { return c.id }
func (c *Camera) SerialNumber() string { return c.serial }

func (c *Camera) Open(mode vimba.AccessMode) error {
	c.record("open")
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access != vimba.AccessNone {
		return errors.Errorf("camera %s already open", c.id)
	}
	c.access = mode
	return nil
}

func (c *Camera) Close() error {
	c.record("close")
	c.mu.Lock()
	c.access = vimba.AccessNone
	c.handler = nil
	c.mu.Unlock()
	return c.CloseErr
}

func (c *Camera) PermittedAccess() vimba.AccessMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

// RevokeAccess makes the camera inaccessible without closing it, as happens
// while a close is in progress.
func (c *Camera) RevokeAccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = vimba.AccessNone
}

func (c *Camera) RegisterFrameHandler(h vimba.FrameHandler) error {
	c.record("register")
	if c.RegisterErr != nil {
		return c.RegisterErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return nil
}

func (c *Camera) StartContinuousAcquisition(frameCount int) error {
	c.record("start")
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return errors.Errorf("camera %s: no frame handler", c.id)
	}
	c.streaming = true
	c.frameCount = frameCount
	close(c.started)
	return nil
}

// StopContinuousAcquisition stops delivering frames and waits for Deliver
// calls in progress to return.
func (c *Camera) StopContinuousAcquisition() error {
	c.record("stop")
	c.mu.Lock()
	if c.streaming {
		c.streaming = false
		close(c.stopped)
	}
	c.mu.Unlock()
	c.handlers.Wait()
	return c.StopErr
}

func (c *Camera) QueueFrame(f *vimba.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == vimba.AccessNone {
		return errors.Errorf("camera %s: queueing frame %d: access denied", c.id, f.FrameID)
	}
	if c.QueueErr != nil {
		return c.QueueErr
	}
	c.requeued = append(c.requeued, f.FrameID)
	return nil
}

// SetQueueErr sets QueueErr while the camera may be in use.
func (c *Camera) SetQueueErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueueErr = err
}

// Started returns a channel that is closed once continuous acquisition has
// started.
func (c *Camera) Started() <-chan struct{} {
	return c.started
}

// Stopped returns a channel that is closed once continuous acquisition has
// been stopped.
func (c *Camera) Stopped() <-chan struct{} {
	return c.stopped
}

// FrameCount returns the frame count acquisition was started with.
func (c *Camera) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameCount
}

// Deliver calls the registered frame handler with f, on the calling
// goroutine, and returns its error.
func (c *Camera) Deliver(f *vimba.Frame) error {
	c.mu.Lock()
	h := c.handler
	if !c.streaming || h == nil {
		c.mu.Unlock()
		return errors.Errorf("camera %s not streaming", c.id)
	}
	c.handlers.Add(1)
	c.mu.Unlock()
	defer c.handlers.Done()
	return h(f)
}

// Requeued returns the IDs of the frames handed back through QueueFrame.
func (c *Camera) Requeued() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.requeued...)
}

// Frame returns a complete frame of the given size and format, with pixel
// bytes pix.
func Frame(id uint64, width, height int, format vimba.PixelFormat, pix ...byte) *vimba.Frame {
	return &vimba.Frame{
		Buffer:      pix,
		Width:       width,
		Height:      height,
		PixelFormat: format,
		FrameID:     id,
		Timestamp:   id * 1000,
		Status:      vimba.FrameComplete,
	}
}
