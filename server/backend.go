package main

import (
	"fmt"

	"camstream/internal/camera"
	"camstream/internal/camera/opencv"
	"camstream/internal/camera/v4l2"
	"camstream/internal/config"

	"go.uber.org/zap"
)

// openDevice builds the configured camera backend.
func openDevice(cfg *config.Config, logger *zap.Logger) (camera.Device, error) {
	c := cfg.Camera
	switch c.Backend {
	case "v4l2":
		return v4l2.Open(v4l2.Config{
			Path:    c.Device,
			Width:   c.Width,
			Height:  c.Height,
			FPS:     c.FPS,
			Buffers: c.Buffers,
			Timeout: c.Timeout,
			Format:  c.Format,
		}, logger)
	case "opencv":
		return opencv.Open(opencv.Config{
			Index:  c.Index,
			Width:  c.Width,
			Height: c.Height,
			FPS:    c.FPS,
		}, logger)
	case "synthetic":
		logger.Info("using synthetic test pattern", zap.Int("width", c.Width), zap.Int("height", c.Height))
		return camera.NewSynthetic(camera.SyntheticConfig{
			Width:     c.Width,
			Height:    c.Height,
			Hold:      c.Hold,
			FailEvery: c.FailEvery,
		}), nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q", c.Backend)
	}
}

// offlineDevice stands in for a camera that failed to open.
type offlineDevice struct {
	cause error
}

func (d offlineDevice) Acquire() (*camera.Frame, error) {
	return nil, fmt.Errorf("%w: %w", camera.ErrUnavailable, d.cause)
}

func (d offlineDevice) Close() error { return nil }
