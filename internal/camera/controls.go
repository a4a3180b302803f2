package camera

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when a device has no such control.
var ErrUnsupported = errors.New("camera: control not supported")

// Control names a sensor setting.
type Control string

const (
	ControlFrameSize        Control = "framesize"
	ControlQuality          Control = "quality"
	ControlBrightness       Control = "brightness"
	ControlContrast         Control = "contrast"
	ControlSaturation       Control = "saturation"
	ControlSharpness        Control = "sharpness"
	ControlGain             Control = "gain"
	ControlGainCeiling      Control = "gainceiling"
	ControlAutoGain         Control = "autogain"
	ControlExposure         Control = "exposure"
	ControlAutoExposure     Control = "autoexposure"
	ControlExposureLevel    Control = "exposurelevel"
	ControlAutoWhiteBalance Control = "autowhitebalance"
	ControlWhiteBalanceMode Control = "whitebalancemode"
	ControlHFlip            Control = "hflip"
	ControlVFlip            Control = "vflip"
	ControlGamma            Control = "gamma"
	ControlTestPattern      Control = "testpattern"
)

// Controller is implemented by devices that expose adjustable settings.
// Parameter changes may land between any two frames of a running stream.
type Controller interface {
	SetControl(c Control, value int) error
	GetControl(c Control) (int, error)
	Controls() []Control
}

// SetControl applies a setting on the underlying device.
func (s *Source) SetControl(c Control, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctl, ok := s.dev.(Controller)
	if !ok {
		return fmt.Errorf("%s: %w", c, ErrUnsupported)
	}
	if s.closed {
		return ErrClosed
	}
	return ctl.SetControl(c, value)
}

// ControlValues reads every control the device reports.
func (s *Source) ControlValues() map[Control]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[Control]int)
	ctl, ok := s.dev.(Controller)
	if !ok || s.closed {
		return values
	}
	for _, c := range ctl.Controls() {
		v, err := ctl.GetControl(c)
		if err != nil {
			continue
		}
		values[c] = v
	}
	return values
}
