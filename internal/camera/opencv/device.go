// Package opencv captures frames through an OpenCV VideoCapture.
package opencv

import (
	"fmt"

	"camstream/internal/camera"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Config selects the capture device.
type Config struct {
	Index  int
	Width  int
	Height int
	FPS    int
}

// Device reads BGR24 frames. Each frame keeps its Mat alive until released.
type Device struct {
	webcam *gocv.VideoCapture
	logger *zap.Logger
}

var properties = map[camera.Control]gocv.VideoCaptureProperties{
	camera.ControlBrightness:       gocv.VideoCaptureBrightness,
	camera.ControlContrast:         gocv.VideoCaptureContrast,
	camera.ControlSaturation:       gocv.VideoCaptureSaturation,
	camera.ControlGain:             gocv.VideoCaptureGain,
	camera.ControlExposure:         gocv.VideoCaptureExposure,
	camera.ControlAutoExposure:     gocv.VideoCaptureAutoExposure,
	camera.ControlSharpness:        gocv.VideoCaptureSharpness,
	camera.ControlGamma:            gocv.VideoCaptureGamma,
	camera.ControlAutoWhiteBalance: gocv.VideoCaptureAutoWB,
}

// Open opens the camera at cfg.Index.
func Open(cfg Config, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("opencv")

	webcam, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("error opening video capture device: %w", err)
	}
	if cfg.Width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}

	logger.Info("camera opened",
		zap.Int("index", cfg.Index),
		zap.Float64("width", webcam.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", webcam.Get(gocv.VideoCaptureFrameHeight)))

	return &Device{webcam: webcam, logger: logger}, nil
}

// Acquire reads one frame into a fresh Mat and exposes its pixels without
// copying.
func (d *Device) Acquire() (*camera.Frame, error) {
	img := gocv.NewMat()
	if ok := d.webcam.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, fmt.Errorf("failed to read frame from webcam: %w", camera.ErrUnavailable)
	}
	if img.Type() != gocv.MatTypeCV8UC3 || !img.IsContinuous() {
		img.Close()
		return nil, fmt.Errorf("unexpected mat layout %v: %w", img.Type(), camera.ErrUnavailable)
	}

	data, err := img.DataPtrUint8()
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("mat data: %v: %w", err, camera.ErrUnavailable)
	}
	return camera.NewFrame(data, camera.FormatBGR24, img.Cols(), img.Rows(), img.Close), nil
}

// SetControl implements camera.Controller.
func (d *Device) SetControl(c camera.Control, value int) error {
	prop, ok := properties[c]
	if !ok {
		return fmt.Errorf("%s: %w", c, camera.ErrUnsupported)
	}
	d.webcam.Set(prop, float64(value))
	return nil
}

// GetControl implements camera.Controller.
func (d *Device) GetControl(c camera.Control) (int, error) {
	prop, ok := properties[c]
	if !ok {
		return 0, fmt.Errorf("%s: %w", c, camera.ErrUnsupported)
	}
	return int(d.webcam.Get(prop)), nil
}

// Controls implements camera.Controller.
func (d *Device) Controls() []camera.Control {
	out := make([]camera.Control, 0, len(properties))
	for c := range properties {
		out = append(out, c)
	}
	return out
}

// Close releases the capture device.
func (d *Device) Close() error {
	return d.webcam.Close()
}
