package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"camstream/internal/camera"
	"camstream/internal/codec"
	"camstream/internal/control"
	"camstream/internal/stream"
	"camstream/internal/telemetry"

	"github.com/gorilla/websocket"
)

type copyEncoder struct{}

func (copyEncoder) Encode(f *camera.Frame, quality int) (*codec.Payload, error) {
	return codec.Own(append([]byte(nil), f.Bytes()...), nil), nil
}

type nopMotor struct{}

func (nopMotor) Drive(lf, lb, rf, rb int) error { return nil }

func newTestServer(t *testing.T, cfg Config, withDrive bool) (*Server, *camera.Source) {
	t.Helper()
	src := camera.NewSource(camera.NewSynthetic(camera.SyntheticConfig{Width: 8, Height: 8}), nil)
	deps := Deps{
		Camera: src,
		Codec:  codec.NewConverter(copyEncoder{}, 80),
		Hub:    telemetry.NewHub(nil),
	}
	if withDrive {
		deps.Actuator = control.NewActuator(nopMotor{}, map[string]control.Script{
			"stop": {{}},
		}, nil)
	}
	s := New(cfg, deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, src
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestControlRoutes(t *testing.T) {
	s, _ := newTestServer(t, Config{}, false)
	h := s.Handler()

	tests := []struct {
		target string
		want   int
	}{
		{"/control", http.StatusNotFound},
		{"/control?var=brightness", http.StatusNotFound},
		{"/control?var=brightness&val=bright", http.StatusNotFound},
		{"/control?var=warp_drive&val=1", http.StatusInternalServerError},
		{"/control?var=contrast&val=1", http.StatusInternalServerError},
		{"/control?var=hmirror&val=2", http.StatusNotFound},
		{"/control?var=brightness&val=2", http.StatusOK},
		{"/control?var=colorbar&val=1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("missing CORS header")
			}
		})
	}

	rec := get(t, h, "/status")
	var status map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["brightness"] != 2 || status["colorbar"] != 1 {
		t.Errorf("status should reflect applied controls, got %v", status)
	}
}

func TestActionRoutes(t *testing.T) {
	disabled, _ := newTestServer(t, Config{}, false)
	if rec := get(t, disabled.Handler(), "/action?action=stop"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a drive, got %d", rec.Code)
	}

	s, _ := newTestServer(t, Config{}, true)
	h := s.Handler()

	if rec := get(t, h, "/action"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing action, got %d", rec.Code)
	}

	rec := get(t, h, "/action?action=moonwalk")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "unsupported action") {
		t.Errorf("expected 404 unsupported action, got %d %q", rec.Code, rec.Body.String())
	}

	rec = get(t, h, "/action_handler?action=stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("expected text/html, got %q", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != "0" {
		t.Errorf("expected elapsed 0 ms, got %q", rec.Body.String())
	}
}

func TestCaptureAndHealth(t *testing.T) {
	s, src := newTestServer(t, Config{Name: "bench"}, false)
	h := s.Handler()

	rec := get(t, h, "/capture")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 8*8*3 {
		t.Errorf("expected %d bytes, got %d", 8*8*3, rec.Body.Len())
	}

	rec = get(t, h, "/health")
	var health healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if rec.Code != http.StatusOK || health.Status != "ok" || health.Name != "bench" {
		t.Errorf("unexpected health %d %+v", rec.Code, health)
	}
	if health.Acquired != 1 || health.Outstanding != 0 {
		t.Errorf("capture should have released its frame: %+v", health)
	}

	src.Close()
	if rec := get(t, h, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 once the camera is closed, got %d", rec.Code)
	}
	if rec := get(t, h, "/capture"); rec.Code != http.StatusInternalServerError || rec.Body.Len() != 0 {
		t.Errorf("expected empty 500 from a closed camera, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

type deadDevice struct{}

func (deadDevice) Acquire() (*camera.Frame, error) { return nil, camera.ErrUnavailable }
func (deadDevice) Close() error                    { return nil }

func TestHealthReportsFailingCamera(t *testing.T) {
	s := New(Config{Name: "offline"}, Deps{
		Camera: camera.NewSource(deadDevice{}, nil),
		Codec:  codec.NewConverter(copyEncoder{}, 80),
	})
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	h := s.Handler()

	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 before any acquisition, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		if rec := get(t, h, "/capture"); rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 from a dead camera, got %d", rec.Code)
		}
	}

	rec := get(t, h, "/health")
	var health healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || health.Status != "error" {
		t.Errorf("expected 503 error, got %d %+v", rec.Code, health)
	}
	if health.Message == "" || health.Failures != 2 {
		t.Errorf("expected the failure streak to be reported, got %+v", health)
	}
}

func TestPreflight(t *testing.T) {
	s, _ := newTestServer(t, Config{}, false)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/control", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Errorf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, Config{Name: "porch"}, false)
	rec := get(t, s.Handler(), "/")
	body := rec.Body.String()
	if !strings.Contains(body, "<title>porch</title>") || !strings.Contains(body, "<option>brightness</option>") {
		t.Errorf("index missing name or controls:\n%s", body)
	}
	if rec := get(t, s.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestStreamLimitAndShutdown(t *testing.T) {
	s, src := newTestServer(t, Config{MaxStreams: 1, AverageWindow: 5}, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream?fps=60")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != stream.ContentType() {
		t.Fatalf("unexpected content type %q", ct)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != "--"+stream.Boundary+"\r\n" {
		t.Fatalf("expected opening boundary, got %q (%v)", line, err)
	}

	second, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get second stream: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 over the stream limit, got %d", second.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	io.Copy(io.Discard, resp.Body)

	if st := src.Stats(); st.Outstanding != 0 {
		t.Errorf("stream left %d frames outstanding", st.Outstanding)
	}
	if s.ActiveStreams() != 0 {
		t.Errorf("expected no active streams, got %d", s.ActiveStreams())
	}

	late, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("get after shutdown: %v", err)
	}
	late.Body.Close()
	if late.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after shutdown, got %d", late.StatusCode)
	}
}

func TestTelemetryRoute(t *testing.T) {
	s, _ := newTestServer(t, Config{}, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/telemetry", nil)
	if err != nil {
		t.Fatalf("dial telemetry: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev telemetry.Event
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != telemetry.EventSnapshot {
		t.Errorf("expected snapshot event, got %+v (%v)", ev, err)
	}
}
