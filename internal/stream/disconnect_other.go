//go:build !unix

package stream

import (
	"context"
	"errors"
)

func disconnectCause(err error) string {
	if errors.Is(err, context.Canceled) {
		return "client gone"
	}
	return "write error"
}
