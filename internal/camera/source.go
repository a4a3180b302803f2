package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Device is a single camera backend. Implementations need not be safe for
// concurrent use; Source serializes every call.
type Device interface {
	// Acquire returns the next frame or an error wrapping ErrUnavailable.
	// It must not block indefinitely.
	Acquire() (*Frame, error)
	Close() error
}

// SourceStats is a snapshot of acquire/release accounting.
type SourceStats struct {
	Acquired    uint64
	Released    uint64
	Outstanding uint64
	Closed      bool
	// LastError is the most recent acquisition failure, cleared by the next
	// successful Acquire.
	LastError error
	// Failures counts consecutive failed acquisitions.
	Failures uint64
}

// Source gives every streaming and capture request shared, serialized access
// to one Device. The hardware exposes a single active frame slot, so at most
// one acquisition is in flight at a time.
type Source struct {
	mu     sync.Mutex
	dev    Device
	logger *zap.Logger
	seq    uint64
	closed bool

	lastErr  error
	failures uint64

	acquired atomic.Uint64
	released atomic.Uint64
}

// NewSource wraps dev.
func NewSource(dev Device, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		dev:    dev,
		logger: logger.Named("camera"),
	}
}

// Acquire takes the next frame from the device. Failures are reported, not
// retried; the caller decides the retry policy.
func (s *Source) Acquire() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrClosed)
	}

	f, err := s.dev.Acquire()
	if err == nil && f == nil {
		err = ErrUnavailable
	}
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.lastErr = err
		s.failures++
		return nil, err
	}
	s.lastErr = nil
	s.failures = 0

	s.seq++
	f.Seq = s.seq
	s.acquired.Add(1)
	return f, nil
}

// Release hands f back to the device. Releasing the same frame twice returns
// ErrReleased and does not touch the device.
func (s *Source) Release(f *Frame) error {
	if f == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := f.release()
	if errors.Is(err, ErrReleased) {
		s.logger.Error("double release", zap.Uint64("seq", f.Seq))
		return err
	}
	s.released.Add(1)
	if err != nil {
		s.logger.Warn("device rejected frame release", zap.Uint64("seq", f.Seq), zap.Error(err))
		return fmt.Errorf("release frame %d: %w", f.Seq, err)
	}
	return nil
}

// Stats returns the current acquire/release counters.
func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	closed := s.closed
	lastErr, failures := s.lastErr, s.failures
	s.mu.Unlock()

	acquired := s.acquired.Load()
	released := s.released.Load()
	return SourceStats{
		Acquired:    acquired,
		Released:    released,
		Outstanding: acquired - released,
		Closed:      closed,
		LastError:   lastErr,
		Failures:    failures,
	}
}

// Close shuts the device down. Further acquisitions fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if out := s.acquired.Load() - s.released.Load(); out > 0 {
		s.logger.Warn("closing device with frames outstanding", zap.Uint64("outstanding", out))
	}
	return s.dev.Close()
}
