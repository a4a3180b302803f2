//go:build linux

// Package v4l2 drives a Video4Linux2 camera through mmap'd driver buffers.
package v4l2

import (
	"errors"
	"fmt"
	"strings"

	"camstream/internal/camera"

	"github.com/blackjack/webcam"
	"go.uber.org/zap"
)

const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	pixFmtJPEG  webcam.PixelFormat = 0x4745504A // 'JPEG'
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'
)

// Config selects the device and capture format.
type Config struct {
	Path    string
	Width   int
	Height  int
	FPS     int
	Buffers int
	// Timeout is the longest Acquire waits for the driver, in seconds.
	Timeout int
	// Format is "auto", "mjpeg" or "yuyv". Auto prefers MJPEG so frames
	// go out without re-encoding.
	Format string
}

// Device is a V4L2 camera. Each acquired frame pins one driver buffer until
// it is released.
type Device struct {
	cam     *webcam.Webcam
	format  camera.PixelFormat
	width   int
	height  int
	timeout uint32
	logger  *zap.Logger
}

// Open configures and starts streaming on the device at cfg.Path.
func Open(cfg Config, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("v4l2")

	cam, err := webcam.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	pf, format, err := pickFormat(cam.GetSupportedFormats(), cfg.Format)
	if err != nil {
		cam.Close()
		return nil, err
	}

	pf, w, h, err := cam.SetImageFormat(pf, uint32(cfg.Width), uint32(cfg.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set image format: %w", err)
	}
	if cfg.Buffers > 0 {
		if err := cam.SetBufferCount(uint32(cfg.Buffers)); err != nil {
			cam.Close()
			return nil, fmt.Errorf("set buffer count: %w", err)
		}
	}
	if cfg.FPS > 0 {
		if err := cam.SetFramerate(float32(cfg.FPS)); err != nil {
			logger.Warn("driver rejected frame rate", zap.Int("fps", cfg.FPS), zap.Error(err))
		}
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 1
	}

	logger.Info("camera opened",
		zap.String("path", cfg.Path),
		zap.Stringer("format", format),
		zap.Uint32("fourcc", uint32(pf)),
		zap.Uint32("width", w),
		zap.Uint32("height", h))

	return &Device{
		cam:     cam,
		format:  format,
		width:   int(w),
		height:  int(h),
		timeout: uint32(timeout),
		logger:  logger,
	}, nil
}

func pickFormat(supported map[webcam.PixelFormat]string, want string) (webcam.PixelFormat, camera.PixelFormat, error) {
	has := func(pf webcam.PixelFormat) bool {
		_, ok := supported[pf]
		return ok
	}

	switch strings.ToLower(want) {
	case "mjpeg":
		if has(pixFmtMJPEG) {
			return pixFmtMJPEG, camera.FormatJPEG, nil
		}
		if has(pixFmtJPEG) {
			return pixFmtJPEG, camera.FormatJPEG, nil
		}
	case "yuyv":
		if has(pixFmtYUYV) {
			return pixFmtYUYV, camera.FormatYUYV, nil
		}
	case "", "auto":
		for _, pf := range []webcam.PixelFormat{pixFmtMJPEG, pixFmtJPEG} {
			if has(pf) {
				return pf, camera.FormatJPEG, nil
			}
		}
		if has(pixFmtYUYV) {
			return pixFmtYUYV, camera.FormatYUYV, nil
		}
	}

	names := make([]string, 0, len(supported))
	for _, name := range supported {
		names = append(names, name)
	}
	return 0, 0, fmt.Errorf("no usable pixel format for %q (device offers %s)", want, strings.Join(names, ", "))
}

// Acquire dequeues the next filled driver buffer.
func (d *Device) Acquire() (*camera.Frame, error) {
	err := d.cam.WaitForFrame(d.timeout)
	if err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("wait for frame: timed out: %w", camera.ErrUnavailable)
		}
		return nil, fmt.Errorf("wait for frame: %v: %w", err, camera.ErrUnavailable)
	}

	buf, index, err := d.cam.GetFrame()
	if err != nil {
		return nil, fmt.Errorf("get frame: %v: %w", err, camera.ErrUnavailable)
	}
	if len(buf) == 0 {
		if err := d.cam.ReleaseFrame(index); err != nil {
			d.logger.Warn("release of empty buffer failed", zap.Uint32("index", index), zap.Error(err))
		}
		return nil, fmt.Errorf("empty buffer %d: %w", index, camera.ErrUnavailable)
	}

	return camera.NewFrame(buf, d.format, d.width, d.height, func() error {
		return d.cam.ReleaseFrame(index)
	}), nil
}

// Close stops streaming and closes the device node.
func (d *Device) Close() error {
	if err := d.cam.StopStreaming(); err != nil {
		d.logger.Warn("stop streaming", zap.Error(err))
	}
	return d.cam.Close()
}
