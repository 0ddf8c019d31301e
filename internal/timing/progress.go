// Package timing computes the progress animation of pending commands.
package timing

import "time"

// Progress describes how a renderer animates a pending command's progress
// indicator from Scale down to zero over Duration.
type Progress struct {
	// Duration is the time left before the command reaches its timeout
	Duration time.Duration
	// Scale is the remaining fraction of the timeout, in [0, 1]
	Scale float64
}

// Compute returns the progress of a command that started at startedAt with
// the given timeout, as seen at now. It is pure: callers recompute it every
// time a node is displayed instead of interpolating a stored value.
func Compute(now, startedAt time.Time, timeout time.Duration) Progress {
	if timeout <= 0 {
		return Progress{}
	}
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > timeout {
		elapsed = timeout
	}
	remaining := timeout - elapsed
	return Progress{
		Duration: remaining,
		Scale:    clamp01(float64(remaining) / float64(timeout)),
	}
}

// Elapsed returns the elapsed fraction of the timeout
func (p Progress) Elapsed() float64 {
	return clamp01(1 - p.Scale)
}

// Done reports whether the timeout has been reached
func (p Progress) Done() bool {
	return p.Duration <= 0
}

// At returns the scale the animation shows d after the node was displayed
func (p Progress) At(d time.Duration) float64 {
	if p.Duration <= 0 || d >= p.Duration {
		return 0
	}
	if d <= 0 {
		return p.Scale
	}
	return clamp01(p.Scale * float64(p.Duration-d) / float64(p.Duration))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
