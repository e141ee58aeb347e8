package vimba

import (
	"sync"

	"github.com/pkg/errors"
)

// System is the single entry point into an SDK. The SDK is created on first
// use and never destroyed; each session brackets its work with Startup and
// Shutdown.
//
// Startup, camera enumeration and Shutdown of all sessions sharing a System are
// serialized. Streaming is not, so sessions on different cameras can stream
// concurrently.
type System struct {
	newSDK func() SDK

	once sync.Once
	sdk  SDK

	// Held only around startup+enumeration and around shutdown.
	mu sync.Mutex
}

// NewSystem returns a System that creates its SDK with newSDK on first use.
func NewSystem(newSDK func() SDK) *System {
	return &System{newSDK: newSDK}
}

var (
	defaultMu     sync.Mutex
	defaultSystem *System
)

// SetDefaultSDK sets how the System returned by Default creates its SDK. It
// must be called before the first call to Default.
func SetDefaultSDK(newSDK func() SDK) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSystem = NewSystem(newSDK)
}

// Default returns the process-wide System. Sessions using it fail with
// ErrSDKUnavailable if no SDK was set with SetDefaultSDK.
func Default() *System {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSystem == nil {
		defaultSystem = NewSystem(nil)
	}
	return defaultSystem
}

func (s *System) handle() SDK {
	s.once.Do(func() {
		if s.newSDK != nil {
			s.sdk = s.newSDK()
		}
	})
	return s.sdk
}

// startup starts the SDK and returns its cameras, holding the system lock.
// The caller must call shutdown afterwards, also when startup fails.
func (s *System) startup() ([]Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startupLocked()
}

// open starts the SDK and resolves sel, holding the system lock for both.
func (s *System) open(sel Selector) (Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cameras, err := s.startupLocked()
	if err != nil {
		return nil, err
	}
	return Resolve(sel, cameras)
}

func (s *System) startupLocked() ([]Camera, error) {
	sdk := s.handle()
	if sdk == nil {
		return nil, errors.Wrap(ErrSDKUnavailable, "no sdk configured")
	}
	if err := sdk.Startup(); err != nil {
		return nil, errors.Wrapf(ErrSDKUnavailable, "starting sdk: %v", err)
	}
	cameras, err := sdk.Cameras()
	if err != nil {
		return nil, errors.Wrap(err, "listing cameras")
	}
	return cameras, nil
}

func (s *System) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sdk := s.handle()
	if sdk == nil {
		return nil
	}
	if err := sdk.Shutdown(); err != nil {
		return errors.Wrapf(ErrSDKUnavailable, "shutting down sdk: %v", err)
	}
	return nil
}
