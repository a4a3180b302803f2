package stream

import (
	"bytes"

	"camstream/internal/camera"
)

// IsDuplicate reports whether current is byte-for-byte identical to
// previous. A nil previous is never a duplicate.
func IsDuplicate(current, previous *camera.Frame) bool {
	if previous == nil || current == nil {
		return false
	}
	if current.Len() != previous.Len() {
		return false
	}
	return bytes.Equal(current.Bytes(), previous.Bytes())
}
