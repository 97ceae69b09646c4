package graph

import (
	"time"

	"github.com/Faultbox/roomtone/pkg/math"
)

// OpennessTween is a time-stamped linear transition of a portal's openness.
type OpennessTween struct {
	Start     float32
	Target    float32
	StartTime time.Duration
	Duration  time.Duration
}

// Value returns the interpolated openness at now.
func (t OpennessTween) Value(now time.Duration) float32 {
	if t.Duration <= 0 || now >= t.StartTime+t.Duration {
		return math.Clamp01(t.Target)
	}
	if now <= t.StartTime {
		return math.Clamp01(t.Start)
	}
	frac := float32(now-t.StartTime) / float32(t.Duration)
	return math.Clamp01(math.Lerp(t.Start, t.Target, frac))
}

// Done reports whether the transition has finished at now.
func (t OpennessTween) Done(now time.Duration) bool {
	return now >= t.StartTime+t.Duration
}
