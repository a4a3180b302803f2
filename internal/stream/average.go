package stream

import "time"

// DefaultAverageWindow is the number of frame intervals averaged.
const DefaultAverageWindow = 20

// RollingAverage is a fixed-capacity moving mean of frame intervals.
// sum always equals the total of the min(count, size) most recent samples.
type RollingAverage struct {
	values []time.Duration
	index  int
	count  int
	sum    time.Duration
}

// NewRollingAverage returns a filter over the last size samples.
func NewRollingAverage(size int) *RollingAverage {
	if size <= 0 {
		size = DefaultAverageWindow
	}
	return &RollingAverage{values: make([]time.Duration, size)}
}

// Sample records v and returns the current average.
func (r *RollingAverage) Sample(v time.Duration) time.Duration {
	r.sum -= r.values[r.index]
	r.values[r.index] = v
	r.sum += v
	r.index = (r.index + 1) % len(r.values)
	if r.count < len(r.values) {
		r.count++
	}
	return r.Average()
}

// Average returns the mean of the samples currently in the window.
func (r *RollingAverage) Average() time.Duration {
	return r.sum / time.Duration(max(r.count, 1))
}

// Count returns how many samples are in the window.
func (r *RollingAverage) Count() int {
	return r.count
}
