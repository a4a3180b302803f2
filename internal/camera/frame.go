package camera

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when the device has no frame ready or has faulted.
	ErrUnavailable = errors.New("camera: frame unavailable")

	// ErrReleased is returned when a frame is released a second time.
	ErrReleased = errors.New("camera: frame already released")

	// ErrClosed is returned by a source whose device has been closed.
	ErrClosed = errors.New("camera: source closed")
)

// PixelFormat tags the layout of a frame's bytes.
type PixelFormat int

const (
	// FormatJPEG frames are already in wire format.
	FormatJPEG PixelFormat = iota
	// FormatBGR24 is packed 8-bit blue, green, red.
	FormatBGR24
	// FormatYUYV is packed 4:2:2 YUYV (YUY2).
	FormatYUYV
)

// Encoded reports whether frames in this format can be sent as-is.
func (f PixelFormat) Encoded() bool {
	return f == FormatJPEG
}

func (f PixelFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatBGR24:
		return "bgr24"
	case FormatYUYV:
		return "yuyv"
	default:
		return "unknown"
	}
}

// Frame is one capture held in device-owned memory.
//
// A frame returned by Source.Acquire must be handed back with
// Source.Release exactly once. After release the underlying memory belongs
// to the device again and Bytes returns nil.
type Frame struct {
	Format    PixelFormat
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time

	data     []byte
	recycle  func() error
	released bool
}

// NewFrame wraps device memory. recycle hands the slot back to the device
// and may be nil for heap-backed frames.
func NewFrame(data []byte, format PixelFormat, width, height int, recycle func() error) *Frame {
	return &Frame{
		Format:    format,
		Width:     width,
		Height:    height,
		Timestamp: time.Now(),
		data:      data,
		recycle:   recycle,
	}
}

// Bytes returns the frame contents, or nil once the frame has been released.
func (f *Frame) Bytes() []byte {
	if f == nil || f.released {
		return nil
	}
	return f.data
}

// Len returns the number of bytes in the frame.
func (f *Frame) Len() int {
	return len(f.Bytes())
}

// Released reports whether the frame has been handed back to its device.
func (f *Frame) Released() bool {
	return f.released
}

func (f *Frame) release() error {
	if f.released {
		return ErrReleased
	}
	f.released = true
	f.data = nil
	if f.recycle == nil {
		return nil
	}
	return f.recycle()
}
