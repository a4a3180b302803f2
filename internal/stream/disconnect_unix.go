//go:build unix

package stream

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// disconnectCause names why a transport write failed, for logging.
func disconnectCause(err error) string {
	switch {
	case errors.Is(err, unix.EPIPE):
		return "broken pipe"
	case errors.Is(err, unix.ECONNRESET):
		return "connection reset"
	case errors.Is(err, unix.ETIMEDOUT):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "client gone"
	default:
		return "write error"
	}
}
