package audio

import (
	gomath "math"

	"github.com/gopxl/beep/v2"
)

const (
	butterworthQ = 0.7071067811865476
	minCutoff    = 20
)

// biquad is a second-order IIR section in direct form I.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

func (b *biquad) process(in float64) float64 {
	out := b.b0*in + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, in
	b.y2, b.y1 = b.y1, out
	return out
}

// LowPass filters both channels of a streamer. The cutoff can be moved
// between Stream calls; filter state carries over so there is no click.
type LowPass struct {
	Streamer beep.Streamer

	rate   beep.SampleRate
	cutoff float64
	ch     [2]biquad
}

// NewLowPass creates a Butterworth low-pass at cutoff Hz.
func NewLowPass(s beep.Streamer, rate beep.SampleRate, cutoff float64) *LowPass {
	lp := &LowPass{Streamer: s, rate: rate}
	lp.design(cutoff)
	return lp
}

// Cutoff returns the current cutoff in Hz.
func (lp *LowPass) Cutoff() float64 {
	return lp.cutoff
}

// SetCutoff moves the cutoff. Changes under 1 Hz are ignored.
func (lp *LowPass) SetCutoff(hz float64) {
	if gomath.Abs(hz-lp.cutoff) < 1 {
		return
	}
	lp.design(hz)
}

func (lp *LowPass) design(hz float64) {
	nyquist := float64(lp.rate) / 2
	hz = clamp(hz, minCutoff, nyquist*0.99)
	lp.cutoff = hz

	w0 := 2 * gomath.Pi * hz / float64(lp.rate)
	alpha := gomath.Sin(w0) / (2 * butterworthQ)
	cosw0 := gomath.Cos(w0)

	a0 := 1 + alpha
	b0 := (1 - cosw0) / 2 / a0
	b1 := (1 - cosw0) / a0
	a1 := -2 * cosw0 / a0
	a2 := (1 - alpha) / a0
	for i := range lp.ch {
		c := &lp.ch[i]
		c.b0, c.b1, c.b2 = b0, b1, b0
		c.a1, c.a2 = a1, a2
	}
}

func (lp *LowPass) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = lp.Streamer.Stream(samples)
	for i := range samples[:n] {
		samples[i][0] = lp.ch[0].process(samples[i][0])
		samples[i][1] = lp.ch[1].process(samples[i][1])
	}
	return n, ok
}

func (lp *LowPass) Err() error {
	return lp.Streamer.Err()
}
