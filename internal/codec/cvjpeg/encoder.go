// Package cvjpeg encodes raw camera frames to JPEG with OpenCV.
package cvjpeg

import (
	"fmt"

	"camstream/internal/camera"
	"camstream/internal/codec"

	"gocv.io/x/gocv"
)

// Encoder implements codec.Encoder for BGR24 and YUYV frames.
type Encoder struct{}

// New returns an OpenCV JPEG encoder.
func New() *Encoder {
	return &Encoder{}
}

// Encode builds a Mat over the frame bytes and compresses it. The returned
// payload owns the native buffer and closes it on Release.
func (e *Encoder) Encode(f *camera.Frame, quality int) (*codec.Payload, error) {
	img, err := e.toBGR(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %v: %w", err, codec.ErrEncodeFailed)
	}
	if buf == nil {
		return nil, fmt.Errorf("encoder returned no buffer: %w", codec.ErrAllocationFailed)
	}
	return codec.Own(buf.GetBytes(), buf.Close), nil
}

func (e *Encoder) toBGR(f *camera.Frame) (gocv.Mat, error) {
	switch f.Format {
	case camera.FormatBGR24:
		img, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Bytes())
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("wrap bgr24 frame: %v: %w", err, codec.ErrAllocationFailed)
		}
		return img, nil

	case camera.FormatYUYV:
		yuyv, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC2, f.Bytes())
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("wrap yuyv frame: %v: %w", err, codec.ErrAllocationFailed)
		}
		defer yuyv.Close()

		img := gocv.NewMat()
		gocv.CvtColor(yuyv, &img, gocv.ColorYUVToBGRYUY2)
		if img.Empty() {
			img.Close()
			return gocv.Mat{}, fmt.Errorf("yuyv conversion produced no pixels: %w", codec.ErrEncodeFailed)
		}
		return img, nil

	default:
		return gocv.Mat{}, fmt.Errorf("unsupported pixel format %s: %w", f.Format, codec.ErrEncodeFailed)
	}
}
