// Package control implements the sensor parameter and actuator command
// tables served next to the stream.
package control

import (
	"errors"
	"fmt"
	"sort"

	"camstream/internal/camera"
)

var (
	// ErrUnsupported is returned for names with no handler on this device.
	ErrUnsupported = errors.New("control: unsupported")
	// ErrInvalidValue is returned when a switch is set to anything but 0 or 1.
	ErrInvalidValue = errors.New("control: invalid value")
)

// Sensor is the camera surface the parameter table drives.
type Sensor interface {
	SetControl(c camera.Control, value int) error
	ControlValues() map[camera.Control]int
}

// Param maps a request variable to a camera control. An empty Control means
// the setting exists on some sensors but has no equivalent here.
type Param struct {
	Control camera.Control
	// Switch params accept only 0 or 1.
	Switch bool
}

// DefaultParams is the var name table of the /control endpoint.
var DefaultParams = map[string]Param{
	"framesize":      {Control: camera.ControlFrameSize},
	"quality":        {Control: camera.ControlQuality},
	"contrast":       {Control: camera.ControlContrast},
	"brightness":     {Control: camera.ControlBrightness},
	"saturation":     {Control: camera.ControlSaturation},
	"sharpness":      {Control: camera.ControlSharpness},
	"gainceiling":    {Control: camera.ControlGainCeiling},
	"colorbar":       {Control: camera.ControlTestPattern, Switch: true},
	"awb":            {Control: camera.ControlAutoWhiteBalance, Switch: true},
	"agc":            {Control: camera.ControlAutoGain, Switch: true},
	"aec":            {Control: camera.ControlAutoExposure, Switch: true},
	"hmirror":        {Control: camera.ControlHFlip, Switch: true},
	"vflip":          {Control: camera.ControlVFlip, Switch: true},
	"awb_gain":       {Switch: true},
	"agc_gain":       {Control: camera.ControlGain},
	"aec_value":      {Control: camera.ControlExposure},
	"aec2":           {Switch: true},
	"dcw":            {Switch: true},
	"bpc":            {Switch: true},
	"wpc":            {Switch: true},
	"raw_gma":        {Control: camera.ControlGamma},
	"lenc":           {Switch: true},
	"special_effect": {},
	"wb_mode":        {Control: camera.ControlWhiteBalanceMode},
	"ae_level":       {Control: camera.ControlExposureLevel},
}

// Params dispatches named settings to a Sensor.
type Params struct {
	sensor Sensor
	table  map[string]Param
}

// NewParams builds a dispatcher over table (DefaultParams if nil).
func NewParams(sensor Sensor, table map[string]Param) *Params {
	if table == nil {
		table = DefaultParams
	}
	return &Params{sensor: sensor, table: table}
}

// Apply sets name to value. Unknown names and settings the device lacks
// return ErrUnsupported; out of range switch values return ErrInvalidValue.
func (p *Params) Apply(name string, value int) error {
	param, ok := p.table[name]
	if !ok || param.Control == "" {
		return fmt.Errorf("%q: %w", name, ErrUnsupported)
	}
	if param.Switch && value != 0 && value != 1 {
		return fmt.Errorf("%q expects 0 or 1, got %d: %w", name, value, ErrInvalidValue)
	}

	if err := p.sensor.SetControl(param.Control, value); err != nil {
		if errors.Is(err, camera.ErrUnsupported) {
			return fmt.Errorf("%q: %w", name, ErrUnsupported)
		}
		return fmt.Errorf("set %q: %w", name, err)
	}
	return nil
}

// Names lists every var name in the table.
func (p *Params) Names() []string {
	names := make([]string, 0, len(p.table))
	for name := range p.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports the current value of every setting the device can read,
// keyed by var name.
func (p *Params) Status() map[string]int {
	values := p.sensor.ControlValues()
	out := make(map[string]int, len(values))
	for name, param := range p.table {
		if param.Control == "" {
			continue
		}
		if v, ok := values[param.Control]; ok {
			out[name] = v
		}
	}
	return out
}
