package math

import "github.com/chewxy/math32"

// Number is the set of scalar types Clamp accepts.
type Number interface {
	~int | ~int64 | ~float32 | ~float64
}

// Clamp limits val to [lo, hi].
func Clamp[K Number](val, lo, hi K) K {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// Lerp interpolates from a towards b by t (unclamped).
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// DampFactor is the fraction of the remaining gap closed by exponential
// easing at the given rate (1/s) over dt seconds. Always in [0, 1].
func DampFactor(rate, dt float32) float32 {
	if rate <= 0 || dt <= 0 {
		return 0
	}
	return 1 - math32.Exp(-rate*dt)
}

// Damp eases current towards target with exponential smoothing.
func Damp(current, target, rate, dt float32) float32 {
	return Lerp(current, target, DampFactor(rate, dt))
}

// DampVec3 eases current towards target with exponential smoothing.
func DampVec3(current, target Vec3, rate, dt float32) Vec3 {
	return current.Lerp(target, DampFactor(rate, dt))
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
