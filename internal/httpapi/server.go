// Package httpapi exposes the camera over HTTP: the MJPEG stream, single
// captures, sensor controls, drive actions, health and telemetry.
package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"camstream/internal/camera"
	"camstream/internal/control"
	"camstream/internal/stream"
	"camstream/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Camera is the shared frame source the handlers use.
type Camera interface {
	stream.FrameSource
	control.Sensor
	Stats() camera.SourceStats
}

// Config tunes the handlers.
type Config struct {
	Name          string
	MaxStreams    int
	AverageWindow int
}

// Deps are the collaborators behind the routes. Actuator and Hub are
// optional.
type Deps struct {
	Camera   Camera
	Codec    stream.WireFormatter
	Actuator *control.Actuator
	Hub      *telemetry.Hub
	Logger   *zap.Logger
}

// Server routes HTTP requests to the camera.
type Server struct {
	id      string
	cfg     Config
	cam     Camera
	codec   stream.WireFormatter
	params  *control.Params
	drive   *control.Actuator
	hub     *telemetry.Hub
	loop    *stream.Loop
	logger  *zap.Logger
	started time.Time
	mux     *http.ServeMux

	slots chan struct{}

	// ctx ends every open stream on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = 4
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		id:      uuid.New().String(),
		cfg:     cfg,
		cam:     deps.Camera,
		codec:   deps.Codec,
		params:  control.NewParams(deps.Camera, nil),
		drive:   deps.Actuator,
		hub:     deps.Hub,
		logger:  logger.Named("http"),
		started: time.Now(),
		mux:     http.NewServeMux(),
		slots:   make(chan struct{}, cfg.MaxStreams),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.loop = &stream.Loop{
		Source: deps.Camera,
		Codec:  deps.Codec,
		Logger: logger.Named("stream"),
	}
	if deps.Hub != nil {
		s.loop.Observer = deps.Hub
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	s.mux.HandleFunc("GET /capture", s.handleCapture)
	s.mux.HandleFunc("GET /control", s.handleControl)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /action", s.handleAction)
	s.mux.HandleFunc("GET /action_handler", s.handleAction)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Hub != nil {
		s.mux.Handle("GET /telemetry", deps.Hub)
	}
	return s
}

// ID identifies this server instance.
func (s *Server) ID() string {
	return s.id
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ActiveStreams returns the number of open streams.
func (s *Server) ActiveStreams() int {
	return len(s.slots)
}

// Shutdown ends every open stream and waits for their loops to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("streams still draining: %w", ctx.Err())
	}
}

func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.enter() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	select {
	case s.slots <- struct{}{}:
	default:
		s.logger.Warn("stream limit reached", zap.String("remote", r.RemoteAddr), zap.Int("limit", s.cfg.MaxStreams))
		http.Error(w, "too many streams", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-s.slots }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	sess := stream.NewSession(r.RemoteAddr, s.cfg.AverageWindow)
	sess.Negotiate(r.URL.Query().Get("fps"))

	if err := s.loop.Run(ctx, sess, stream.NewMultipartWriter(w)); err != nil {
		s.logger.Debug("stream ended", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	_ = stream.Capture(w, s.cam, s.codec, s.logger.Named("capture"))
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, raw := q.Get("var"), q.Get("val")
	if name == "" || raw == "" {
		http.NotFound(w, r)
		return
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	err = s.params.Apply(name, val)
	switch {
	case errors.Is(err, control.ErrInvalidValue):
		http.NotFound(w, r)
		return
	case err != nil:
		s.logger.Warn("control rejected", zap.String("var", name), zap.Int("val", val), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.logger.Info("control applied", zap.String("var", name), zap.Int("val", val))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.Status())
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		http.NotFound(w, r)
		return
	}
	if s.drive == nil {
		http.Error(w, "drive disabled", http.StatusServiceUnavailable)
		return
	}

	elapsed, err := s.drive.Run(r.Context(), action)
	switch {
	case errors.Is(err, control.ErrUnsupported):
		http.Error(w, "unsupported action", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Warn("action failed", zap.String("action", action), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.logger.Info("action", zap.String("action", action), zap.Duration("elapsed", elapsed))
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "%d", elapsed.Milliseconds())
}

type healthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Uptime      string `json:"uptime"`
	Sessions    int    `json:"sessions"`
	Acquired    uint64 `json:"acquired"`
	Released    uint64 `json:"released"`
	Outstanding uint64 `json:"outstanding"`
	Failures    uint64 `json:"failures,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.cam.Stats()
	resp := healthResponse{
		Status:      "ok",
		ID:          s.id,
		Name:        s.cfg.Name,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Sessions:    s.ActiveStreams(),
		Acquired:    st.Acquired,
		Released:    st.Released,
		Outstanding: st.Outstanding,
		Failures:    st.Failures,
	}

	code := http.StatusOK
	switch {
	case st.Closed:
		resp.Status = "error"
		resp.Message = "camera closed"
		code = http.StatusServiceUnavailable
	case st.LastError != nil:
		resp.Status = "error"
		resp.Message = st.LastError.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Name   string
		Params []string
	}{Name: s.cfg.Name, Params: s.params.Names()}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Debug("index not delivered", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// corsMiddleware adds CORS headers and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
