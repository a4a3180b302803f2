package stream

import (
	"strconv"
	"time"
)

const (
	// DefaultFPS is used when the client asks for nothing or nonsense.
	DefaultFPS = 30
	// MaxFPS is the highest rate a client may request.
	MaxFPS = 60
)

// RateFromQuery parses the fps query value. Anything that is not an integer
// in (0, MaxFPS] yields DefaultFPS.
func RateFromQuery(raw string) int {
	fps, err := strconv.Atoi(raw)
	if err != nil || fps <= 0 || fps > MaxFPS {
		return DefaultFPS
	}
	return fps
}

// Interval is the delay between captures at fps, truncated to whole
// milliseconds.
func Interval(fps int) time.Duration {
	if fps <= 0 || fps > MaxFPS {
		fps = DefaultFPS
	}
	return time.Duration(1000/fps) * time.Millisecond
}
