package camera

import (
	"fmt"
	"sync"
)

// SyntheticConfig configures the test-pattern device.
type SyntheticConfig struct {
	Width  int
	Height int
	// Hold is how many consecutive acquisitions return identical bytes
	// before the pattern moves on.
	Hold int
	// FailEvery makes every Nth acquisition report ErrUnavailable. Zero
	// disables fault injection.
	FailEvery int
}

// Synthetic is a hardware-free Device producing BGR24 test patterns.
type Synthetic struct {
	cfg SyntheticConfig

	mu       sync.Mutex
	calls    int
	frame    int
	controls map[Control]int
}

// NewSynthetic returns a test-pattern device.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 240
	}
	if cfg.Hold <= 0 {
		cfg.Hold = 1
	}
	return &Synthetic{
		cfg: cfg,
		controls: map[Control]int{
			ControlBrightness:  0,
			ControlHFlip:       0,
			ControlTestPattern: 0,
		},
	}
}

// Acquire renders the next pattern frame.
func (d *Synthetic) Acquire() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.cfg.FailEvery > 0 && d.calls%d.cfg.FailEvery == 0 {
		return nil, fmt.Errorf("synthetic fault on call %d: %w", d.calls, ErrUnavailable)
	}

	step := d.frame / d.cfg.Hold
	d.frame++

	w, h := d.cfg.Width, d.cfg.Height
	buf := make([]byte, w*h*3)
	bright := d.controls[ControlBrightness]
	flip := d.controls[ControlHFlip] != 0
	bars := d.controls[ControlTestPattern] != 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := x
			if flip {
				px = w - 1 - x
			}
			i := (y*w + x) * 3
			if bars {
				v := byte(255 * ((px * 8 / w) % 2))
				buf[i], buf[i+1], buf[i+2] = v, v, v
				continue
			}
			buf[i] = byte(px + step + bright)
			buf[i+1] = byte(y + step + bright)
			buf[i+2] = byte(step*4 + bright)
		}
	}
	return NewFrame(buf, FormatBGR24, w, h, nil), nil
}

// SetControl implements Controller.
func (d *Synthetic) SetControl(c Control, value int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.controls[c]; !ok {
		return fmt.Errorf("%s: %w", c, ErrUnsupported)
	}
	d.controls[c] = value
	return nil
}

// GetControl implements Controller.
func (d *Synthetic) GetControl(c Control) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.controls[c]
	if !ok {
		return 0, fmt.Errorf("%s: %w", c, ErrUnsupported)
	}
	return v, nil
}

// Controls implements Controller.
func (d *Synthetic) Controls() []Control {
	return []Control{ControlBrightness, ControlHFlip, ControlTestPattern}
}

// Close implements Device.
func (d *Synthetic) Close() error {
	return nil
}
