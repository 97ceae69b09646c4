package propagation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/roomtone/pkg/math"
)

// ErrInvalidCurve is returned for keyframes that do not describe a falloff.
var ErrInvalidCurve = errors.New("propagation: invalid falloff curve")

// Curve maps a normalised distance in [0,1] to a gain in [0,1]. Curves must
// be monotonic non-increasing.
type Curve interface {
	Evaluate(t float32) float32
}

// CurveFunc adapts a function to Curve.
type CurveFunc func(t float32) float32

// Evaluate calls f.
func (f CurveFunc) Evaluate(t float32) float32 {
	return f(t)
}

// LinearFalloff drops from full gain at the source to silence at max distance.
var LinearFalloff Curve = CurveFunc(func(t float32) float32 {
	return 1 - math.Clamp01(t)
})

// Keyframe is one point of a KeyframeCurve.
type Keyframe struct {
	Time  float32
	Value float32
}

// KeyframeCurve is a piecewise linear falloff authored as keyframes.
// Outside the first and last keys the curve holds their values.
type KeyframeCurve struct {
	keys []Keyframe
}

// NewKeyframeCurve validates keys and builds a curve. Keys are sorted by
// time; times must lie in [0,1] and be distinct, values must lie in [0,1]
// and never increase.
func NewKeyframeCurve(keys ...Keyframe) (*KeyframeCurve, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keyframes", ErrInvalidCurve)
	}
	sorted := make([]Keyframe, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	for i, k := range sorted {
		if !math.IsFinite(k.Time) || !math.IsFinite(k.Value) {
			return nil, fmt.Errorf("%w: key %d is not finite", ErrInvalidCurve, i)
		}
		if k.Time < 0 || k.Time > 1 {
			return nil, fmt.Errorf("%w: key time %v outside [0,1]", ErrInvalidCurve, k.Time)
		}
		if k.Value < 0 || k.Value > 1 {
			return nil, fmt.Errorf("%w: key value %v outside [0,1]", ErrInvalidCurve, k.Value)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if k.Time == prev.Time {
			return nil, fmt.Errorf("%w: duplicate key time %v", ErrInvalidCurve, k.Time)
		}
		if k.Value > prev.Value {
			return nil, fmt.Errorf("%w: gain rises from %v to %v at t=%v", ErrInvalidCurve, prev.Value, k.Value, k.Time)
		}
	}
	return &KeyframeCurve{keys: sorted}, nil
}

// Keys returns a copy of the keyframes in time order.
func (c *KeyframeCurve) Keys() []Keyframe {
	out := make([]Keyframe, len(c.keys))
	copy(out, c.keys)
	return out
}

// Evaluate interpolates the curve at t.
func (c *KeyframeCurve) Evaluate(t float32) float32 {
	keys := c.keys
	if t <= keys[0].Time {
		return keys[0].Value
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return last.Value
	}
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time >= t })
	a, b := keys[i-1], keys[i]
	return math.Lerp(a.Value, b.Value, (t-a.Time)/(b.Time-a.Time))
}
