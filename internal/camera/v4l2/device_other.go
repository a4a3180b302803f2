//go:build !linux

package v4l2

import (
	"errors"

	"camstream/internal/camera"

	"go.uber.org/zap"
)

// Config selects the device and capture format.
type Config struct {
	Path    string
	Width   int
	Height  int
	FPS     int
	Buffers int
	Timeout int
	Format  string
}

// Device is unavailable off Linux.
type Device struct{}

// Open always fails: V4L2 exists only on Linux.
func Open(cfg Config, logger *zap.Logger) (*Device, error) {
	return nil, errors.New("v4l2: not supported on this platform")
}

func (d *Device) Acquire() (*camera.Frame, error) { return nil, camera.ErrUnavailable }
func (d *Device) Close() error                    { return nil }
