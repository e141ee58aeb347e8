package vimba

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DefaultFrameCount is the number of frame buffers announced to the camera if
// RecorderOpts.FrameCount is zero.
const DefaultFrameCount = 3

// RecorderOpts has options for a new Recorder.
type RecorderOpts struct {
	Selector   Selector
	FrameCount int // Size of the frame buffer pool. If 0, DefaultFrameCount.

	// Start releases acquisition. The camera is opened right away, streaming
	// starts after the first value is received or Start is closed. If nil,
	// streaming starts immediately.
	Start <-chan struct{}

	System *System       // If nil, Default() is used.
	Logger *slog.Logger // If nil, slog.Default() is used.
}

// DataFrame is a converted frame with its identifying metadata.
type DataFrame struct {
	Image     *Image
	FrameID   uint64
	Timestamp uint64
}

// Event is a single frame (or error) coming from a Recorder.
type Event struct {
	// If set, the session failed and no further events follow.
	Err error

	DataFrame
}

// State is the lifecycle state of a Recorder session.
type State int32

// Session states. Failed is reachable from every state after Idle.
const (
	StateIdle State = iota
	StateResolving
	StateOpened
	StateStreaming
	StateStopping
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stats counts frames seen by the frame handler of a Recorder.
type Stats struct {
	Delivered         uint64 // Frames handed to the frame handler.
	Emitted           uint64 // Frames converted and sent on Events.
	Skipped           uint64 // Frames not complete.
	SwallowedRequeues uint64 // Requeue failures after camera access was revoked.
}

// Recorder is an acquisition session on a single camera. Converted frames are
// sent on the channel returned by Events. The channel is closed when the
// session ends, after an Event with Err set if it failed.
type Recorder struct {
	opts RecorderOpts
	sys  *System
	log  *slog.Logger
	id   uuid.UUID

	events chan Event
	fault  chan error

	// Frame handlers emit under a read lock. Once closing is set, no frame is
	// sent on events anymore.
	emitMu  sync.RWMutex
	closing bool

	// ctx is cancelled by the caller's context, by Close, or when streaming
	// stops. Frame handlers stop emitting once it is done.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	err       error // Terminal error, valid after done is closed.

	state      atomic.Int32
	converters *converterCache

	delivered, emitted, skipped, swallowed atomic.Uint64
}

// NewRecorder validates opts and starts an acquisition session in the
// background. The session ends when ctx is done, when Close is called, or when
// it fails.
//
// Callers must call Close to clean up.
func NewRecorder(ctx context.Context, opts RecorderOpts) (*Recorder, error) {
	if opts.FrameCount < 0 {
		return nil, errors.Errorf("frame count must be >= 0, got %d", opts.FrameCount)
	}
	if opts.FrameCount == 0 {
		opts.FrameCount = DefaultFrameCount
	}

	r := &Recorder{
		opts:       opts,
		sys:        opts.System,
		log:        opts.Logger,
		id:         uuid.New(),
		events:     make(chan Event, opts.FrameCount),
		fault:      make(chan error, 1),
		closed:     make(chan struct{}),
		done:       make(chan struct{}),
		converters: newConverterCache(),
	}
	if r.sys == nil {
		r.sys = Default()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("session", r.id.String(), "camera", opts.Selector.String())
	r.ctx, r.cancel = context.WithCancel(ctx)

	go r.run()
	return r, nil
}

// ID returns the unique id of this session, as used in its log lines.
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Events returns a channel on which Events can be received.
func (r *Recorder) Events() <-chan Event {
	return r.events
}

// Done returns a channel that is closed when the session has fully torn down.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Err returns the terminal error of the session, or nil if it was stopped
// without failing. Err blocks until the session has torn down.
func (r *Recorder) Err() error {
	<-r.done
	return r.err
}

// State returns the current state of the session.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Stats returns frame counters for the session so far.
func (r *Recorder) Stats() Stats {
	return Stats{
		Delivered:         r.delivered.Load(),
		Emitted:           r.emitted.Load(),
		Skipped:           r.skipped.Load(),
		SwallowedRequeues: r.swallowed.Load(),
	}
}

// Close stops the session and waits for teardown to finish. Close returns the
// terminal error of the session, if any. Frames already sent stay readable
// from Events until the channel is drained.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.cancel()
	})
	<-r.done
	return r.err
}

func (r *Recorder) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	r.log.Debug("session state", "from", old.String(), "to", s.String())
}

func (r *Recorder) run() {
	defer close(r.done)
	defer close(r.events)

	err := r.acquire()
	r.cancel()
	err = r.drainFault(err)
	if err != nil {
		r.setState(StateFailed)
		r.log.Error("acquisition failed", "err", err)
	} else {
		r.setState(StateClosed)
	}
	r.err = err

	r.emitMu.Lock()
	r.closing = true
	r.emitMu.Unlock()

	if err != nil {
		select {
		case r.events <- Event{Err: err}:
		case <-r.closed:
		}
	}
}

// acquire runs a session from startup to shutdown. Shutdown always runs,
// after the camera was stopped and closed.
func (r *Recorder) acquire() (rerr error) {
	defer func() {
		rerr = multierr.Append(rerr, r.sys.shutdown())
	}()

	r.setState(StateResolving)
	cam, err := r.sys.open(r.opts.Selector)
	if err != nil {
		return err
	}
	if r.ctx.Err() != nil {
		return nil
	}

	if err := cam.Open(AccessFull); err != nil {
		return errors.Wrapf(err, "opening camera %s", cam.ID())
	}
	r.setState(StateOpened)
	r.log.Info("opened camera", "id", cam.ID(), "serial", cam.SerialNumber())
	defer func() {
		if err := cam.Close(); err != nil {
			rerr = multierr.Append(rerr, errors.Wrapf(err, "closing camera %s", cam.ID()))
		}
	}()

	if err := cam.RegisterFrameHandler(func(f *Frame) error { return r.handleFrame(cam, f) }); err != nil {
		return errors.Wrap(err, "registering frame handler")
	}

	if r.opts.Start != nil {
		select {
		case <-r.opts.Start:
		case <-r.ctx.Done():
			return nil
		}
	}

	if err := cam.StartContinuousAcquisition(r.opts.FrameCount); err != nil {
		return errors.Wrap(err, "starting acquisition")
	}
	r.setState(StateStreaming)
	r.log.Info("streaming", "frames", r.opts.FrameCount)

	select {
	case <-r.ctx.Done():
	case err = <-r.fault:
	}
	r.cancel()
	r.setState(StateStopping)

	if serr := cam.StopContinuousAcquisition(); serr != nil {
		err = multierr.Append(err, errors.Wrap(serr, "stopping acquisition"))
	}
	// Handlers in flight during stop may still have failed.
	return r.drainFault(err)
}

// drainFault appends a fault raised since the last receive from the fault
// channel to err.
func (r *Recorder) drainFault(err error) error {
	select {
	case ferr := <-r.fault:
		return multierr.Append(err, ferr)
	default:
		return err
	}
}

// fail records the first fault of the session and wakes acquire.
func (r *Recorder) fail(err error) {
	select {
	case r.fault <- err:
	default:
	}
}

func (r *Recorder) handleFrame(cam Camera, f *Frame) (rerr error) {
	r.delivered.Add(1)

	defer func() {
		err := cam.QueueFrame(f)
		if err == nil {
			return
		}
		if cam.PermittedAccess() == AccessNone {
			r.swallowed.Add(1)
			r.log.Debug("requeue after access revoked", "frame", f.FrameID, "err", err)
			return
		}
		qerr := &RequeueError{FrameID: f.FrameID, Err: err}
		r.fail(qerr)
		rerr = multierr.Append(rerr, qerr)
	}()

	if f.Status != FrameComplete {
		r.skipped.Add(1)
		r.log.Debug("skipping frame", "frame", f.FrameID, "status", f.Status.String())
		return nil
	}

	df, err := r.convert(f)
	if err != nil {
		ferr := &FrameError{FrameID: f.FrameID, Err: err}
		r.fail(ferr)
		return ferr
	}

	r.emit(df)
	return nil
}

// emit sends df on events, unless the session is cancelled first. It reports
// whether df was sent.
func (r *Recorder) emit(df DataFrame) bool {
	r.emitMu.RLock()
	defer r.emitMu.RUnlock()
	if r.closing {
		return false
	}
	// Cancellation takes priority over a free slot in the buffer.
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.events <- Event{DataFrame: df}:
		r.emitted.Add(1)
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Recorder) convert(f *Frame) (df DataFrame, rerr error) {
	defer func() {
		if x := recover(); x != nil {
			rerr = errors.Errorf("converting frame: %v", x)
		}
	}()

	conv, err := r.converters.get(f.PixelFormat)
	if err != nil {
		return DataFrame{}, err
	}
	img, err := conv(f)
	if err != nil {
		return DataFrame{}, err
	}
	return DataFrame{Image: img, FrameID: f.FrameID, Timestamp: f.Timestamp}, nil
}
