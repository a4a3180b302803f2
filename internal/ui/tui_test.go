package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func newModel() model {
	return model{startTime: time.Now(), quitChan: make(chan struct{}, 1)}
}

func TestStatusMsgUpdatesView(t *testing.T) {
	m := newModel()

	updated, cmd := m.Update(statusMsg(Status{
		Name:    "porch",
		Port:    8080,
		Backend: "synthetic",
		Limit:   4,
		Streams: []StreamRow{{ID: "0123456789abcdef", Remote: "10.0.0.9:4000", FPS: 30, AvgFPS: 29.5, Sent: 12, Faults: 2}},
	}))
	if cmd != nil {
		t.Error("status update should not schedule a command")
	}

	view := updated.View()
	for _, want := range []string{"porch", "Streams (1/4)", "01234567", "10.0.0.9:4000", "faults 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestEmptyStreams(t *testing.T) {
	m := newModel()
	if !strings.Contains(m.View(), "No viewers connected") {
		t.Error("expected empty stream notice")
	}
}

func TestQuitKeySignals(t *testing.T) {
	m := newModel()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-m.quitChan:
	default:
		t.Error("expected quit signal")
	}
	if !strings.Contains(updated.View(), "Shutting down") {
		t.Error("expected shutdown view")
	}
}

func TestUpdateAfterStopIsIgnored(t *testing.T) {
	tui := New()
	tui.Stop()
	tui.Stop()
	tui.Update(Status{Name: "late"})
}

func TestStartAfterStopReturns(t *testing.T) {
	tui := New()
	tui.Stop()

	done := make(chan error, 1)
	go func() { done <- tui.Start(Status{Name: "late"}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start should return once the TUI is stopped")
	}
}
