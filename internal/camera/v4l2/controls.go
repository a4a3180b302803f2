//go:build linux

package v4l2

import (
	"fmt"

	"camstream/internal/camera"

	"github.com/blackjack/webcam"
)

// V4L2 control IDs from linux/v4l2-controls.h.
var controlIDs = map[camera.Control]webcam.ControlID{
	camera.ControlBrightness:       0x00980900,
	camera.ControlContrast:         0x00980901,
	camera.ControlSaturation:       0x00980902,
	camera.ControlAutoWhiteBalance: 0x0098090c,
	camera.ControlGamma:            0x00980910,
	camera.ControlAutoGain:         0x00980912,
	camera.ControlGain:             0x00980913,
	camera.ControlHFlip:            0x00980914,
	camera.ControlVFlip:            0x00980915,
	camera.ControlWhiteBalanceMode: 0x0098091a,
	camera.ControlSharpness:        0x0098091b,
	camera.ControlAutoExposure:     0x009a0901,
	camera.ControlExposure:         0x009a0902,
	camera.ControlExposureLevel:    0x009a0913,
	camera.ControlQuality:          0x009d0903,
	camera.ControlTestPattern:      0x009f0903,
}

func (d *Device) lookup(c camera.Control) (webcam.ControlID, error) {
	id, ok := controlIDs[c]
	if !ok {
		return 0, fmt.Errorf("%s: %w", c, camera.ErrUnsupported)
	}
	if _, present := d.cam.GetControls()[id]; !present {
		return 0, fmt.Errorf("%s not exposed by driver: %w", c, camera.ErrUnsupported)
	}
	return id, nil
}

// SetControl implements camera.Controller.
func (d *Device) SetControl(c camera.Control, value int) error {
	id, err := d.lookup(c)
	if err != nil {
		return err
	}
	if err := d.cam.SetControl(id, int32(value)); err != nil {
		return fmt.Errorf("set %s=%d: %w", c, value, err)
	}
	return nil
}

// GetControl implements camera.Controller.
func (d *Device) GetControl(c camera.Control) (int, error) {
	id, err := d.lookup(c)
	if err != nil {
		return 0, err
	}
	v, err := d.cam.GetControl(id)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", c, err)
	}
	return int(v), nil
}

// Controls implements camera.Controller, listing only what the driver exposes.
func (d *Device) Controls() []camera.Control {
	exposed := d.cam.GetControls()
	var out []camera.Control
	for c, id := range controlIDs {
		if _, ok := exposed[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
