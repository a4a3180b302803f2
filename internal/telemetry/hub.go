// Package telemetry tracks live stream sessions and pushes their progress to
// websocket subscribers.
package telemetry

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"camstream/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
)

// Event types sent on the feed.
const (
	EventSnapshot      = "snapshot"
	EventSessionOpened = "session/opened"
	EventFrameSent     = "frame/sent"
	EventSessionClosed = "session/closed"
)

// SessionView is the JSON form of a stream session.
type SessionView struct {
	ID                 string    `json:"id"`
	Remote             string    `json:"remote"`
	State              string    `json:"state"`
	FPS                int       `json:"fps"`
	IntervalMS         int64     `json:"interval_ms"`
	Started            time.Time `json:"started"`
	Sent               uint64    `json:"sent"`
	Bytes              uint64    `json:"bytes"`
	Duplicates         uint64    `json:"duplicates"`
	HardwareFaults     uint64    `json:"hardware_faults"`
	EncodeFailures     uint64    `json:"encode_failures"`
	AllocationFailures uint64    `json:"allocation_failures"`
	LastMS             float64   `json:"last_ms"`
	AverageMS          float64   `json:"avg_ms"`
	AverageFPS         float64   `json:"avg_fps"`
}

// FrameView is the JSON form of one delivered frame.
type FrameView struct {
	Seq       uint64 `json:"seq"`
	Bytes     int    `json:"bytes"`
	Ownership string `json:"ownership"`
}

// Event is one message on the feed.
type Event struct {
	Type     string        `json:"type"`
	Time     time.Time     `json:"time"`
	Session  *SessionView  `json:"session,omitempty"`
	Frame    *FrameView    `json:"frame,omitempty"`
	Error    string        `json:"error,omitempty"`
	Sessions []SessionView `json:"sessions,omitempty"`
}

// Totals counts sessions over the hub's lifetime.
type Totals struct {
	Opened  uint64 `json:"opened"`
	Closed  uint64 `json:"closed"`
	Dropped uint64 `json:"dropped_events"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// Hub implements stream.Observer.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]SessionView
	subs     map[*subscriber]struct{}
	closed   bool

	opened  atomic.Uint64
	ended   atomic.Uint64
	dropped atomic.Uint64
}

var _ stream.Observer = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("telemetry"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Viewers are served from other origins on the local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]SessionView),
		subs:     make(map[*subscriber]struct{}),
	}
}

func view(info stream.SessionInfo) SessionView {
	return SessionView{
		ID:                 info.ID,
		Remote:             info.RemoteAddr,
		State:              info.State.String(),
		FPS:                info.FPS,
		IntervalMS:         info.Interval.Milliseconds(),
		Started:            info.Started,
		Sent:               info.Stats.Sent,
		Bytes:              info.Stats.Bytes,
		Duplicates:         info.Stats.Duplicates,
		HardwareFaults:     info.Stats.HardwareFaults,
		EncodeFailures:     info.Stats.EncodeFailures,
		AllocationFailures: info.Stats.AllocationFailures,
		LastMS:             millis(info.Stats.LastInterval),
		AverageMS:          millis(info.Stats.AverageInterval),
		AverageFPS:         stream.FPS(info.Stats.AverageInterval),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// SessionOpened registers a session.
func (h *Hub) SessionOpened(info stream.SessionInfo) {
	h.opened.Add(1)
	v := view(info)

	h.mu.Lock()
	h.sessions[v.ID] = v
	h.broadcastLocked(Event{Type: EventSessionOpened, Time: time.Now(), Session: &v})
	h.mu.Unlock()
}

// FrameSent refreshes a session's counters.
func (h *Hub) FrameSent(info stream.SessionInfo, frame stream.FrameStats) {
	v := view(info)
	fv := FrameView{Seq: frame.Seq, Bytes: frame.Bytes, Ownership: frame.Ownership.String()}

	h.mu.Lock()
	h.sessions[v.ID] = v
	h.broadcastLocked(Event{Type: EventFrameSent, Time: frame.SentAt, Session: &v, Frame: &fv})
	h.mu.Unlock()
}

// SessionClosed forgets a session.
func (h *Hub) SessionClosed(info stream.SessionInfo, err error) {
	h.ended.Add(1)
	v := view(info)
	ev := Event{Type: EventSessionClosed, Time: time.Now(), Session: &v}
	if err != nil {
		ev.Error = err.Error()
	}

	h.mu.Lock()
	delete(h.sessions, v.ID)
	h.broadcastLocked(ev)
	h.mu.Unlock()
}

// broadcastLocked queues ev for every subscriber. Slow subscribers lose
// events rather than stall a stream.
func (h *Hub) broadcastLocked(ev Event) {
	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Sessions returns the live sessions, oldest first.
func (h *Hub) Sessions() []SessionView {
	h.mu.RLock()
	out := make([]SessionView, 0, len(h.sessions))
	for _, v := range h.sessions {
		out = append(out, v)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Totals returns lifetime counters.
func (h *Hub) Totals() Totals {
	return Totals{Opened: h.opened.Load(), Closed: h.ended.Load(), Dropped: h.dropped.Load()}
}

// Subscribers returns the number of connected feed clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades to a websocket and streams events until the client
// goes away. The first message is a snapshot of the live sessions.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := &subscriber{conn: conn, send: make(chan Event, sendBuffer)}
	snapshot := h.Sessions()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	sub.send <- Event{Type: EventSnapshot, Time: time.Now(), Sessions: snapshot}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("telemetry subscriber connected", zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writer(sub)
	}()

	// Drain reads so close frames and pongs are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("telemetry read error", zap.Error(err))
			}
			break
		}
	}

	h.remove(sub)
	<-done
	h.logger.Debug("telemetry subscriber disconnected", zap.String("remote", r.RemoteAddr))
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

// writer sends queued events and keeps the connection alive with pings.
func (h *Hub) writer(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.send:
			if !ok {
				sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sub.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("telemetry write failed", zap.Error(err))
				sub.conn.Close()
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				sub.conn.Close()
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}
