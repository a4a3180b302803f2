package stream

import (
	"time"

	"camstream/internal/camera"

	"github.com/google/uuid"
)

// State is where a session is in its lifetime.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionStats counts what happened to the frames of one session.
type SessionStats struct {
	Sent               uint64
	Bytes              uint64
	Duplicates         uint64
	HardwareFaults     uint64
	EncodeFailures     uint64
	AllocationFailures uint64
	LastInterval       time.Duration
	AverageInterval    time.Duration
}

// SessionInfo is a copy of a session's identity and counters, safe to hand
// to other goroutines.
type SessionInfo struct {
	ID         string
	RemoteAddr string
	FPS        int
	Interval   time.Duration
	Started    time.Time
	State      State
	Stats      SessionStats
}

// Session is the per-connection state of one stream. It belongs to the
// goroutine running the loop and is never shared.
type Session struct {
	ID         string
	RemoteAddr string
	FPS        int
	Interval   time.Duration
	Started    time.Time

	state       State
	previous    *camera.Frame
	lastSent    time.Time
	average     *RollingAverage
	stats       SessionStats
	faultStreak int
	allocStreak int
}

// NewSession creates an idle session averaging over window intervals.
func NewSession(remoteAddr string, window int) *Session {
	return &Session{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		Started:    time.Now(),
		average:    NewRollingAverage(window),
		state:      StateIdle,
	}
}

// Negotiate applies the client-requested rate (the raw fps query value).
func (s *Session) Negotiate(rawFPS string) {
	s.state = StateNegotiating
	s.FPS = RateFromQuery(rawFPS)
	s.Interval = Interval(s.FPS)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Stats returns the session counters.
func (s *Session) Stats() SessionStats {
	return s.stats
}

// Info snapshots the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		RemoteAddr: s.RemoteAddr,
		FPS:        s.FPS,
		Interval:   s.Interval,
		Started:    s.Started,
		State:      s.state,
		Stats:      s.stats,
	}
}
