// Package filesdk is a vimba.SDK backed by a directory tree, for developing
// and replaying without camera hardware.
//
// Every subdirectory of the root directory is a camera, its name is the camera
// ID. The serial number is read from a file named "serial" in that directory,
// and is the directory name if there is no such file. While a camera streams,
// every binary PGM or PPM file written to its directory is delivered as a
// frame and removed. A pixel format named before the extension, as in
// "a.BGR8.ppm", overrides the default of Mono8 for PGM and RGB8 for PPM. See
// WriteFrame.
package filesdk

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	vimba "github.com/edgeimpulse/vimba-go"
)

// SDK serves the cameras in a directory.
type SDK struct {
	root string
	log  *slog.Logger

	mu       sync.Mutex
	startups int
	open     map[string]bool // By camera ID.
}

// Check that SDK implements interface vimba.SDK.
var _ vimba.SDK = (*SDK)(nil)

// New returns an SDK serving the cameras in directory root. If logger is nil,
// slog.Default() is used.
func New(root string, logger *slog.Logger) *SDK {
	if logger == nil {
		logger = slog.Default()
	}
	return &SDK{
		root: root,
		log:  logger.With("sdk", "file", "root", root),
		open: map[string]bool{},
	}
}

// Startup checks the root directory exists. Startup and Shutdown calls nest.
func (s *SDK) Startup() error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return errors.Wrap(err, "camera directory")
	}
	if !fi.IsDir() {
		return errors.Errorf("camera directory %s is not a directory", s.root)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startups++
	return nil
}

// Shutdown undoes one successful Startup. Without one it does nothing.
func (s *SDK) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startups > 0 {
		s.startups--
	}
	return nil
}

// Cameras returns a camera for every subdirectory of root, sorted by name.
func (s *SDK) Cameras() ([]vimba.Camera, error) {
	s.mu.Lock()
	started := s.startups > 0
	s.mu.Unlock()
	if !started {
		return nil, errors.Errorf("listing cameras: sdk not started")
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, "listing cameras")
	}
	cameras := []vimba.Camera{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		serial := e.Name()
		if buf, err := os.ReadFile(filepath.Join(dir, "serial")); err == nil {
			serial = strings.TrimSpace(string(buf))
		}
		cameras = append(cameras, &Camera{
			sdk:    s,
			id:     e.Name(),
			serial: serial,
			dir:    dir,
			log:    s.log.With("camera", e.Name()),
		})
	}
	return cameras, nil
}

// Camera is a camera directory.
type Camera struct {
	sdk    *SDK
	id     string
	serial string
	dir    string
	log    *slog.Logger

	mu       sync.Mutex
	access   vimba.AccessMode
	handler  vimba.FrameHandler
	free     chan *vimba.Frame
	inflight map[*vimba.Frame]bool
	nextID   uint64
	cancel   context.CancelFunc
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
}

// Check that Camera implements interface vimba.Camera.
var _ vimba.Camera = (*Camera)(nil)

func (c *Camera) ID() string           { return c.id }
func (c *Camera) SerialNumber() string { return c.serial }

// Dir returns the directory frames for this camera are written to.
func (c *Camera) Dir() string { return c.dir }

// Open opens the camera. A camera can be opened by only one client at a time.
func (c *Camera) Open(mode vimba.AccessMode) error {
	if mode == vimba.AccessNone {
		return errors.Errorf("opening camera %s: invalid access mode %s", c.id, mode)
	}
	c.sdk.mu.Lock()
	defer c.sdk.mu.Unlock()
	if c.sdk.open[c.id] {
		return errors.Errorf("camera %s already opened", c.id)
	}
	c.sdk.open[c.id] = true

	c.mu.Lock()
	c.access = mode
	c.mu.Unlock()
	return nil
}

// Close stops acquisition if needed and releases the camera.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.access == vimba.AccessNone {
		c.mu.Unlock()
		return errors.Errorf("camera %s not open", c.id)
	}
	c.access = vimba.AccessNone
	c.handler = nil
	c.mu.Unlock()

	c.stop()

	c.sdk.mu.Lock()
	delete(c.sdk.open, c.id)
	c.sdk.mu.Unlock()
	return nil
}

func (c *Camera) PermittedAccess() vimba.AccessMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

func (c *Camera) RegisterFrameHandler(h vimba.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == vimba.AccessNone {
		return errors.Errorf("camera %s not open", c.id)
	}
	c.handler = h
	return nil
}

// StartContinuousAcquisition starts watching the camera directory. Frame
// files are delivered in a pool of frameCount frames. If no frame in the pool
// is free, a frame file is removed without being delivered.
func (c *Camera) StartContinuousAcquisition(frameCount int) error {
	if frameCount <= 0 {
		return errors.Errorf("frame count must be > 0, got %d", frameCount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.access != vimba.AccessFull:
		return errors.Errorf("camera %s not open with full access", c.id)
	case c.handler == nil:
		return errors.Errorf("camera %s: no frame handler registered", c.id)
	case c.watcher != nil:
		return errors.Errorf("camera %s already streaming", c.id)
	}

	c.free = make(chan *vimba.Frame, frameCount)
	for i := 0; i < frameCount; i++ {
		c.free <- &vimba.Frame{}
	}
	c.inflight = map[*vimba.Frame]bool{}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "new file change watcher")
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "registering file change watcher for %s", c.dir)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.watcher = watcher
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.watch(ctx, watcher, c.handler)
	}()
	c.log.Debug("streaming", "frames", frameCount)
	return nil
}

func (c *Camera) StopContinuousAcquisition() error {
	c.mu.Lock()
	streaming := c.watcher != nil
	c.mu.Unlock()
	if !streaming {
		return errors.Errorf("camera %s not streaming", c.id)
	}
	c.stop()
	return nil
}

func (c *Camera) stop() {
	c.mu.Lock()
	watcher, cancel := c.watcher, c.cancel
	c.watcher, c.cancel = nil, nil
	c.mu.Unlock()
	if watcher == nil {
		return
	}
	cancel()
	watcher.Close()
	c.wg.Wait()
}

// QueueFrame returns a delivered frame to the pool.
func (c *Camera) QueueFrame(f *vimba.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == vimba.AccessNone {
		return errors.Errorf("camera %s: queueing frame %d: camera not open", c.id, f.FrameID)
	}
	if !c.inflight[f] {
		return errors.Errorf("camera %s: queueing frame %d: not a delivered frame", c.id, f.FrameID)
	}
	delete(c.inflight, f)
	c.free <- f
	return nil
}

func (c *Camera) watch(ctx context.Context, watcher *fsnotify.Watcher, handler vimba.FrameHandler) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isFrameFile(ev.Name) {
				continue
			}
			f, err := c.read(ev.Name)
			if err != nil {
				c.log.Debug("reading frame file, may be partially written", "file", ev.Name, "err", err)
				continue
			}
			if err := os.Remove(ev.Name); err != nil {
				c.log.Warn("removing frame file", "file", ev.Name, "err", err)
			}
			if f == nil {
				c.log.Info("dropping frame, no free frame buffer", "file", ev.Name)
				continue
			}
			if err := handler(f); err != nil {
				c.log.Debug("frame handler", "frame", f.FrameID, "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.Error("watching for frame files", "err", err)
		}
	}
}

func isFrameFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	return ext == ".pgm" || ext == ".ppm"
}

// read decodes a frame file into a free frame of the pool. Read returns a nil
// frame if the pool is exhausted.
func (c *Camera) read(name string) (*vimba.Frame, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	ts := time.Now()
	if fi, err := fp.Stat(); err == nil {
		ts = fi.ModTime()
	}
	raw, err := decodeFrameFile(fp, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	var f *vimba.Frame
	select {
	case f = <-c.free:
	default:
		return nil, nil
	}
	*f = vimba.Frame{
		Buffer:      append(f.Buffer[:0], raw.pix...),
		Width:       raw.width,
		Height:      raw.height,
		PixelFormat: raw.format,
		FrameID:     c.nextID,
		Timestamp:   uint64(ts.UnixNano()),
		Status:      vimba.FrameComplete,
	}
	c.inflight[f] = true
	return f, nil
}
