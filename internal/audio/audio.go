// Package audio renders propagation output through a beep voice chain per
// emitter and mixes the result down to a WAV file.
package audio

import (
	"fmt"
	"io"
	gomath "math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/Faultbox/roomtone/internal/propagation"
	"github.com/Faultbox/roomtone/pkg/math"
)

// DefaultSampleRate is the default sample rate for rendering.
const DefaultSampleRate = beep.SampleRate(44100)

// Mixer owns one voice per emitter and records their sum.
type Mixer struct {
	mu sync.Mutex

	format beep.Format
	master float64

	mixer  *beep.Mixer
	voices map[uuid.UUID]*Voice
	buffer *beep.Buffer
}

// New creates a stereo 16-bit mixer. A non-positive rate uses the default.
func New(rate beep.SampleRate) *Mixer {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	return &Mixer{
		format: format,
		master: 1.0,
		mixer:  &beep.Mixer{},
		voices: make(map[uuid.UUID]*Voice),
		buffer: beep.NewBuffer(format),
	}
}

// Format returns the output format.
func (m *Mixer) Format() beep.Format {
	return m.format
}

// SetMasterVolume sets the master volume (0.0 to 1.0).
func (m *Mixer) SetMasterVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master = clamp(vol, 0, 1)
}

// MasterVolume returns the master volume.
func (m *Mixer) MasterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// AddTone creates a voice for id playing a sine at hz. Adding an existing id
// returns its voice.
func (m *Mixer) AddTone(id uuid.UUID, hz float64) *Voice {
	return m.AddVoice(id, Tone(m.format.SampleRate, hz))
}

// AddVoice creates a voice for id fed by source.
func (m *Mixer) AddVoice(id uuid.UUID, source beep.Streamer) *Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.voices[id]; ok {
		return v
	}
	v := NewVoice(m.format.SampleRate, source)
	m.voices[id] = v
	m.mixer.Add(v.Streamer())
	return v
}

// Voice returns the voice for id, or nil.
func (m *Mixer) Voice(id uuid.UUID) *Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voices[id]
}

// Apply pushes one emitter's parameters into its voice.
func (m *Mixer) Apply(e *propagation.Emitter, l *propagation.Listener, dt time.Duration) {
	m.mu.Lock()
	v, master := m.voices[e.ID], m.master
	m.mu.Unlock()
	if v == nil {
		return
	}
	v.Apply(e.Output(), master, l.Position(), l.Right(), float32(dt.Seconds()))
}

// Render records d of the current mix.
func (m *Mixer) Render(d time.Duration) {
	n := m.format.SampleRate.N(d)
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer.Append(beep.Take(n, m.mixer))
}

// Recorded returns the length of the recording.
func (m *Mixer) Recorded() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format.SampleRate.D(m.buffer.Len())
}

// WriteWAV encodes the recording.
func (m *Mixer) WriteWAV(w io.WriteSeeker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := wav.Encode(w, m.buffer.Streamer(0, m.buffer.Len()), m.format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// SaveWAV writes the recording to path.
func (m *Mixer) SaveWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := m.WriteWAV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// volumeToDb converts a 0-1 volume to decibel scale.
func volumeToDb(vol float64) float64 {
	if vol <= 0 {
		return -100 // Effectively silent
	}
	// vol=1 -> 0dB, vol=0.5 -> -6dB, vol=0.25 -> -12dB
	return 20 * gomath.Log10(vol)
}

func clamp(v, min, max float64) float64 {
	return math.Clamp(v, min, max)
}
