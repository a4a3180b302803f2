package stream

import (
	"testing"
	"time"
)

func TestRateFromQuery(t *testing.T) {
	tests := []struct {
		raw       string
		wantFPS   int
		wantDelay time.Duration
	}{
		{raw: "10", wantFPS: 10, wantDelay: 100 * time.Millisecond},
		{raw: "1", wantFPS: 1, wantDelay: time.Second},
		{raw: "60", wantFPS: 60, wantDelay: 16 * time.Millisecond},
		{raw: "", wantFPS: 30, wantDelay: 33 * time.Millisecond},
		{raw: "0", wantFPS: 30, wantDelay: 33 * time.Millisecond},
		{raw: "-5", wantFPS: 30, wantDelay: 33 * time.Millisecond},
		{raw: "120", wantFPS: 30, wantDelay: 33 * time.Millisecond},
		{raw: "fast", wantFPS: 30, wantDelay: 33 * time.Millisecond},
		{raw: "12.5", wantFPS: 30, wantDelay: 33 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("fps="+tt.raw, func(t *testing.T) {
			fps := RateFromQuery(tt.raw)
			if fps != tt.wantFPS {
				t.Errorf("expected fps %d, got %d", tt.wantFPS, fps)
			}
			if d := Interval(fps); d != tt.wantDelay {
				t.Errorf("expected delay %v, got %v", tt.wantDelay, d)
			}
		})
	}
}

func TestSessionNegotiate(t *testing.T) {
	s := NewSession("127.0.0.1:1234", 0)
	if s.State() != StateIdle {
		t.Fatalf("new session should be idle, got %s", s.State())
	}

	s.Negotiate("10")
	if s.State() != StateNegotiating {
		t.Errorf("expected negotiating, got %s", s.State())
	}
	if s.FPS != 10 || s.Interval != 100*time.Millisecond {
		t.Errorf("unexpected rate: fps=%d interval=%v", s.FPS, s.Interval)
	}
	if s.ID == "" {
		t.Error("session should have an ID")
	}
}
