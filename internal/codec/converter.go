package codec

import (
	"errors"
	"fmt"

	"camstream/internal/camera"
)

var (
	// ErrEncodeFailed is returned when a raw frame cannot be converted.
	ErrEncodeFailed = errors.New("codec: encode failed")

	// ErrAllocationFailed is returned when no buffer could be obtained for
	// the converted image.
	ErrAllocationFailed = errors.New("codec: allocation failed")
)

// DefaultQuality is the JPEG quality used for raw frames.
const DefaultQuality = 80

// Encoder converts a raw frame into an Owned JPEG payload.
type Encoder interface {
	Encode(f *camera.Frame, quality int) (*Payload, error)
}

// Converter ensures frames are in wire format.
type Converter struct {
	Encoder Encoder
	Quality int
}

// NewConverter returns a Converter using enc at quality (DefaultQuality if
// out of 1..100).
func NewConverter(enc Encoder, quality int) *Converter {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Converter{Encoder: enc, Quality: quality}
}

// EnsureWireFormat returns a Borrowed alias for frames that are already JPEG
// and an Owned, freshly encoded payload otherwise.
func (c *Converter) EnsureWireFormat(f *camera.Frame) (*Payload, error) {
	if f.Format.Encoded() {
		return Borrow(f), nil
	}
	if c.Encoder == nil {
		return nil, fmt.Errorf("no encoder for %s frames: %w", f.Format, ErrEncodeFailed)
	}

	p, err := c.Encoder.Encode(f, c.Quality)
	if err != nil {
		if errors.Is(err, ErrEncodeFailed) || errors.Is(err, ErrAllocationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%s frame %d: %v: %w", f.Format, f.Seq, err, ErrEncodeFailed)
	}
	if p.Len() == 0 {
		p.Release()
		return nil, fmt.Errorf("%s frame %d: empty output: %w", f.Format, f.Seq, ErrAllocationFailed)
	}
	return p, nil
}
