package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"camstream/internal/camera"
)

func TestParamsApply(t *testing.T) {
	src := camera.NewSource(camera.NewSynthetic(camera.SyntheticConfig{Width: 2, Height: 2}), nil)
	p := NewParams(src, nil)

	tests := []struct {
		name    string
		varName string
		value   int
		wantErr error
	}{
		{name: "supported", varName: "brightness", value: 3},
		{name: "switch", varName: "hmirror", value: 1},
		{name: "switch out of range", varName: "hmirror", value: 2, wantErr: ErrInvalidValue},
		{name: "unknown var", varName: "warp_drive", value: 1, wantErr: ErrUnsupported},
		{name: "no equivalent control", varName: "dcw", value: 1, wantErr: ErrUnsupported},
		{name: "device lacks control", varName: "contrast", value: 1, wantErr: ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Apply(tt.varName, tt.value)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}

	status := p.Status()
	if status["brightness"] != 3 || status["hmirror"] != 1 {
		t.Errorf("status should reflect applied values, got %v", status)
	}
	if _, ok := status["contrast"]; ok {
		t.Error("status should omit controls the device cannot read")
	}
}

func TestParamsNamesCoverTable(t *testing.T) {
	p := NewParams(nil, nil)
	if len(p.Names()) != len(DefaultParams) {
		t.Errorf("expected %d names, got %d", len(DefaultParams), len(p.Names()))
	}
}

type recordingMotor struct {
	calls [][4]int
	err   error
}

func (m *recordingMotor) Drive(lf, lb, rf, rb int) error {
	m.calls = append(m.calls, [4]int{lf, lb, rf, rb})
	return m.err
}

func TestActuatorRunsScript(t *testing.T) {
	m := &recordingMotor{}
	a := NewActuator(m, map[string]Script{
		"nudge": {move(RegularSpeed, 0, RegularSpeed, 0, 5), halt(0)},
	}, nil)

	elapsed, err := a.Run(context.Background(), "nudge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 5*time.Millisecond {
		t.Errorf("script should hold for 5ms, took %v", elapsed)
	}
	want := [][4]int{{RegularSpeed, 0, RegularSpeed, 0}, {0, 0, 0, 0}}
	if len(m.calls) != len(want) {
		t.Fatalf("expected %d motor calls, got %v", len(want), m.calls)
	}
	for i := range want {
		if m.calls[i] != want[i] {
			t.Errorf("call %d: expected %v, got %v", i, want[i], m.calls[i])
		}
	}
}

func TestActuatorUnknownAction(t *testing.T) {
	a := NewActuator(&recordingMotor{}, nil, nil)
	if _, err := a.Run(context.Background(), "fly"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestActuatorStopsOnCancel(t *testing.T) {
	m := &recordingMotor{}
	a := NewActuator(m, map[string]Script{
		"long": {move(HighSpeed, 0, HighSpeed, 0, 10_000), halt(0)},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := a.Run(ctx, "long"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	last := m.calls[len(m.calls)-1]
	if last != [4]int{0, 0, 0, 0} {
		t.Errorf("wheels should be stopped after cancellation, last command %v", last)
	}
}

func TestDefaultScriptsEndStopped(t *testing.T) {
	for name, script := range DefaultScripts {
		if len(script) == 0 {
			t.Errorf("%s: empty script", name)
			continue
		}
		if name == "cgo" {
			continue
		}
		last := script[len(script)-1]
		if last.LF != 0 || last.LB != 0 || last.RF != 0 || last.RB != 0 {
			t.Errorf("%s: should end with the wheels stopped", name)
		}
	}
}
