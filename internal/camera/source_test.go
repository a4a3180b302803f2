package camera

import (
	"bytes"
	"errors"
	"testing"
)

type failingDevice struct {
	err error
}

func (d *failingDevice) Acquire() (*Frame, error) { return nil, d.err }
func (d *failingDevice) Close() error             { return nil }

func TestSourceAcquireRelease(t *testing.T) {
	recycled := 0
	dev := &countingDevice{recycle: func() error { recycled++; return nil }}
	src := NewSource(dev, nil)

	f, err := src.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Seq != 1 {
		t.Errorf("expected seq 1, got %d", f.Seq)
	}
	if f.Len() != 4 {
		t.Errorf("expected 4 bytes, got %d", f.Len())
	}

	if err := src.Release(f); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !f.Released() {
		t.Error("frame should be marked released")
	}
	if f.Bytes() != nil {
		t.Error("released frame should not expose its bytes")
	}

	if err := src.Release(f); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased on double release, got %v", err)
	}
	if recycled != 1 {
		t.Errorf("device slot recycled %d times, want 1", recycled)
	}

	stats := src.Stats()
	if stats.Acquired != 1 || stats.Released != 1 || stats.Outstanding != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSourceWrapsDeviceErrors(t *testing.T) {
	src := NewSource(&failingDevice{err: errors.New("ioctl failed")}, nil)

	_, err := src.Acquire()
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if src.Stats().Acquired != 0 {
		t.Error("failed acquisition should not be counted")
	}
}

func TestSourceTracksFailureStreak(t *testing.T) {
	dev := &failingDevice{err: errors.New("ioctl failed")}
	src := NewSource(dev, nil)

	for i := 0; i < 3; i++ {
		src.Acquire()
	}
	stats := src.Stats()
	if stats.Failures != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", stats.Failures)
	}
	if !errors.Is(stats.LastError, ErrUnavailable) {
		t.Errorf("expected last error to wrap ErrUnavailable, got %v", stats.LastError)
	}

	src.dev = &countingDevice{recycle: func() error { return nil }}
	f, err := src.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src.Release(f)

	stats = src.Stats()
	if stats.Failures != 0 || stats.LastError != nil {
		t.Errorf("successful acquire should clear the streak, got %+v", stats)
	}
}

func TestSourceClosed(t *testing.T) {
	src := NewSource(NewSynthetic(SyntheticConfig{Width: 4, Height: 4}), nil)
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := src.Acquire()
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrUnavailable and ErrClosed, got %v", err)
	}
	if !src.Stats().Closed {
		t.Error("stats should report closed")
	}
}

func TestSyntheticHold(t *testing.T) {
	dev := NewSynthetic(SyntheticConfig{Width: 8, Height: 8, Hold: 2})

	a, _ := dev.Acquire()
	b, _ := dev.Acquire()
	c, _ := dev.Acquire()

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("frames within a hold window should be identical")
	}
	if bytes.Equal(b.Bytes(), c.Bytes()) {
		t.Error("pattern should change after the hold window")
	}
	if a.Format != FormatBGR24 || a.Len() != 8*8*3 {
		t.Errorf("unexpected frame shape: %s, %d bytes", a.Format, a.Len())
	}
}

func TestSyntheticFaultInjection(t *testing.T) {
	dev := NewSynthetic(SyntheticConfig{Width: 2, Height: 2, FailEvery: 3})

	for i := 1; i <= 6; i++ {
		_, err := dev.Acquire()
		if i%3 == 0 {
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("call %d: expected ErrUnavailable, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("call %d: unexpected error %v", i, err)
		}
	}
}

func TestSourceControls(t *testing.T) {
	src := NewSource(NewSynthetic(SyntheticConfig{Width: 2, Height: 2}), nil)

	if err := src.SetControl(ControlBrightness, 12); err != nil {
		t.Fatalf("set brightness: %v", err)
	}
	if err := src.SetControl(ControlGamma, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}

	values := src.ControlValues()
	if values[ControlBrightness] != 12 {
		t.Errorf("expected brightness 12, got %d", values[ControlBrightness])
	}

	noCtl := NewSource(&failingDevice{}, nil)
	if err := noCtl.SetControl(ControlBrightness, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("device without controls should be unsupported, got %v", err)
	}
}

type countingDevice struct {
	recycle func() error
}

func (d *countingDevice) Acquire() (*Frame, error) {
	return NewFrame([]byte{1, 2, 3, 4}, FormatJPEG, 2, 1, d.recycle), nil
}

func (d *countingDevice) Close() error { return nil }
