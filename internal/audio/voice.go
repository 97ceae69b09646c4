package audio

import (
	gomath "math"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/Faultbox/roomtone/internal/propagation"
	"github.com/Faultbox/roomtone/pkg/math"
)

const (
	// panWidth keeps hard-left and hard-right sources slightly in both ears
	panWidth = 0.8
	panRate  = 10
)

// dbBase makes effects.Volume take its Volume field in decibels.
var dbBase = gomath.Pow(10, 1.0/20)

// tone is a sine oscillator that never ends.
type tone struct {
	freq  float64
	phase float64
	rate  beep.SampleRate
}

// Tone returns an endless sine wave at hz.
func Tone(rate beep.SampleRate, hz float64) beep.Streamer {
	return &tone{freq: hz, rate: rate}
}

func (o *tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		val := gomath.Sin(2 * gomath.Pi * o.phase)
		samples[i][0] = val
		samples[i][1] = val

		o.phase += o.freq / float64(o.rate)
		o.phase -= gomath.Floor(o.phase) // Keep in [0, 1)
	}
	return len(samples), true
}

func (o *tone) Err() error { return nil }

// Voice is one emitter's signal chain: source, low-pass, gain, pan.
type Voice struct {
	lowpass *LowPass
	volume  *effects.Volume
	pan     *effects.Pan
}

// NewVoice wraps source in a voice chain starting silent and unfiltered.
func NewVoice(rate beep.SampleRate, source beep.Streamer) *Voice {
	lp := NewLowPass(source, rate, float64(rate)/2*0.9)
	vol := &effects.Volume{
		Streamer: lp,
		Base:     dbBase,
		Volume:   0,
		Silent:   true,
	}
	return &Voice{
		lowpass: lp,
		volume:  vol,
		pan:     &effects.Pan{Streamer: vol, Pan: 0},
	}
}

// Streamer returns the end of the chain.
func (v *Voice) Streamer() beep.Streamer {
	return v.pan
}

// Apply steers the chain towards p as heard by a listener at listenerPos
// whose right-hand axis is listenerRight. gain scales p.Volume.
func (v *Voice) Apply(p propagation.Params, gain float64, listenerPos, listenerRight math.Vec3, dt float32) {
	v.lowpass.SetCutoff(float64(p.LowPassCutoff))

	vol := clamp(float64(p.Volume)*gain, 0, 1)
	v.volume.Silent = vol <= 0
	v.volume.Volume = volumeToDb(vol)

	dir := p.Position.Sub(listenerPos).Normalize()
	target := panWidth * listenerRight.Dot(dir)
	v.pan.Pan = float64(math.Damp(float32(v.pan.Pan), target, panRate, dt))
}

// Cutoff returns the current low-pass frequency.
func (v *Voice) Cutoff() float64 {
	return v.lowpass.Cutoff()
}

// Gain returns the current linear gain.
func (v *Voice) Gain() float64 {
	if v.volume.Silent {
		return 0
	}
	return gomath.Pow(dbBase, v.volume.Volume)
}

// Pan returns the current stereo position in [-1, 1].
func (v *Voice) Pan() float64 {
	return v.pan.Pan
}
