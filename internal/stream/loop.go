package stream

import (
	"context"
	"errors"
	"time"

	"camstream/internal/camera"
	"camstream/internal/codec"

	"go.uber.org/zap"
)

// allocWarnStreak is how many consecutive allocation failures count as
// resource exhaustion worth a warning.
const allocWarnStreak = 10

// FrameSource hands out frames that must each be released exactly once.
type FrameSource interface {
	Acquire() (*camera.Frame, error)
	Release(f *camera.Frame) error
}

// WireFormatter turns frames into sendable payloads.
type WireFormatter interface {
	EnsureWireFormat(f *camera.Frame) (*codec.Payload, error)
}

// FrameStats describes one delivered frame.
type FrameStats struct {
	SessionID string
	Seq       uint64
	Bytes     int
	Ownership codec.Ownership
	Interval  time.Duration
	Average   time.Duration
	SentAt    time.Time
}

// FPS converts a frame interval into a rate.
func FPS(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(interval)
}

// Observer receives stream telemetry. Callbacks run on the streaming
// goroutine and must not block.
type Observer interface {
	SessionOpened(info SessionInfo)
	FrameSent(info SessionInfo, frame FrameStats)
	SessionClosed(info SessionInfo, err error)
}

// Loop streams frames from Source to one client at a time per Run call.
type Loop struct {
	Source   FrameSource
	Codec    WireFormatter
	Observer Observer
	Logger   *zap.Logger
}

// Run streams until ctx is cancelled or the transport fails. It returns nil
// on cancellation and an error wrapping ErrTransportFailed otherwise. Every
// frame acquired during the run has been released when Run returns.
func (l *Loop) Run(ctx context.Context, s *Session, t Transport) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", s.ID))

	if s.state == StateIdle {
		s.Negotiate("")
	}

	if err := t.Begin(ContentType()); err != nil {
		s.state = StateClosed
		logger.Info("stream not started", zap.String("cause", disconnectCause(err)), zap.Error(err))
		return err
	}

	s.state = StateStreaming
	s.lastSent = time.Now()
	if l.Observer != nil {
		l.Observer.SessionOpened(s.Info())
	}
	logger.Info("stream started", zap.String("remote", s.RemoteAddr), zap.Int("fps", s.FPS), zap.Duration("interval", s.Interval))

	err := l.stream(ctx, s, t, logger)

	s.state = StateDraining
	if s.previous != nil {
		l.release(s.previous, logger)
		s.previous = nil
	}
	s.state = StateClosed

	if l.Observer != nil {
		l.Observer.SessionClosed(s.Info(), err)
	}
	logger.Info("stream closed",
		zap.Uint64("sent", s.stats.Sent),
		zap.Uint64("duplicates", s.stats.Duplicates),
		zap.Uint64("hardware_faults", s.stats.HardwareFaults),
		zap.Uint64("encode_failures", s.stats.EncodeFailures),
		zap.Uint64("allocation_failures", s.stats.AllocationFailures),
		zap.Duration("uptime", time.Since(s.Started)))
	return err
}

func (l *Loop) stream(ctx context.Context, s *Session, t Transport, logger *zap.Logger) error {
	for {
		if !sleep(ctx, s.Interval) {
			return nil
		}

		f, err := l.Source.Acquire()
		if err != nil {
			s.stats.HardwareFaults++
			s.faultStreak++
			if s.faultStreak == 1 {
				logger.Warn("camera capture failed", zap.Error(err))
			} else {
				logger.Debug("camera capture failed", zap.Int("streak", s.faultStreak), zap.Error(err))
			}
			continue
		}
		if s.faultStreak > 0 {
			logger.Info("camera recovered", zap.Int("failed_captures", s.faultStreak))
			s.faultStreak = 0
		}

		if IsDuplicate(f, s.previous) {
			l.release(f, logger)
			s.stats.Duplicates++
			continue
		}
		if s.previous != nil {
			l.release(s.previous, logger)
		}
		s.previous = f

		payload, err := l.Codec.EnsureWireFormat(f)
		if err != nil {
			// The frame was never sent, so it cannot be a baseline.
			s.previous = nil
			l.release(f, logger)
			l.recordCodecFailure(s, err, logger)
			continue
		}
		s.allocStreak = 0

		if ctx.Err() != nil {
			payload.Release()
			return nil
		}

		n := payload.Len()
		ownership := payload.Ownership()
		err = WriteFrame(t, payload.Bytes())
		payload.Release()
		if err != nil {
			logger.Info("client disconnected", zap.String("cause", disconnectCause(err)), zap.Error(err))
			return err
		}

		now := time.Now()
		interval := now.Sub(s.lastSent)
		s.lastSent = now
		avg := s.average.Sample(interval)

		s.stats.Sent++
		s.stats.Bytes += uint64(n)
		s.stats.LastInterval = interval
		s.stats.AverageInterval = avg

		logger.Debug("MJPG",
			zap.Uint64("seq", f.Seq),
			zap.Int("bytes", n),
			zap.Int64("ms", interval.Milliseconds()),
			zap.Float64("fps", FPS(interval)),
			zap.Int64("avg_ms", avg.Milliseconds()),
			zap.Float64("avg_fps", FPS(avg)))

		if l.Observer != nil {
			l.Observer.FrameSent(s.Info(), FrameStats{
				SessionID: s.ID,
				Seq:       f.Seq,
				Bytes:     n,
				Ownership: ownership,
				Interval:  interval,
				Average:   avg,
				SentAt:    now,
			})
		}
	}
}

func (l *Loop) recordCodecFailure(s *Session, err error, logger *zap.Logger) {
	if errors.Is(err, codec.ErrAllocationFailed) {
		s.stats.AllocationFailures++
		s.allocStreak++
		if s.allocStreak == allocWarnStreak {
			logger.Warn("sustained allocation failures, device may be out of memory", zap.Int("streak", s.allocStreak))
		}
		logger.Debug("frame skipped", zap.Error(err))
		return
	}
	s.stats.EncodeFailures++
	s.allocStreak = 0
	logger.Warn("JPEG compression failed", zap.Error(err))
}

func (l *Loop) release(f *camera.Frame, logger *zap.Logger) {
	if err := l.Source.Release(f); err != nil {
		logger.Error("frame release failed", zap.Uint64("seq", f.Seq), zap.Error(err))
	}
}

// sleep waits d, returning false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return ctx.Err() == nil
	}
}
