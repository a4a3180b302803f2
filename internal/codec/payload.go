// Package codec turns camera frames into wire-format (JPEG) payloads.
package codec

import "camstream/internal/camera"

// Ownership says who frees a payload's bytes.
type Ownership int

const (
	// Borrowed payloads alias a frame already in wire format. The bytes
	// live until the frame is released; the payload frees nothing.
	Borrowed Ownership = iota
	// Owned payloads hold a buffer produced by an encoder and must be
	// released after transport, independently of the source frame.
	Owned
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case Owned:
		return "owned"
	default:
		return "unknown"
	}
}

// Payload is an encoded image ready to send.
type Payload struct {
	ownership Ownership
	data      []byte
	free      func()
	released  bool
}

// Borrow aliases f's bytes without copying.
func Borrow(f *camera.Frame) *Payload {
	return &Payload{ownership: Borrowed, data: f.Bytes()}
}

// Own wraps an encoder buffer. free may be nil for garbage-collected memory.
func Own(data []byte, free func()) *Payload {
	return &Payload{ownership: Owned, data: data, free: free}
}

// Bytes returns the encoded image, or nil after Release.
func (p *Payload) Bytes() []byte {
	if p == nil || p.released {
		return nil
	}
	return p.data
}

// Len returns the payload size in bytes.
func (p *Payload) Len() int {
	return len(p.Bytes())
}

// Ownership reports which variant p is.
func (p *Payload) Ownership() Ownership {
	return p.ownership
}

// Release frees an owned buffer. Borrowed payloads only drop their alias;
// the frame they point into is released by whoever holds it. Calling Release
// more than once is a no-op.
func (p *Payload) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true

	switch p.ownership {
	case Borrowed:
	case Owned:
		if p.free != nil {
			p.free()
		}
	}
	p.data = nil
	p.free = nil
}
