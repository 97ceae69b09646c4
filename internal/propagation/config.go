package propagation

import (
	"time"

	"github.com/Faultbox/roomtone/internal/pathfind"
)

// Rates are exponential smoothing rates, in 1/s.
type Rates struct {
	Volume   float32
	Cutoff   float32
	Position float32
}

// Config tunes the engine.
type Config struct {
	// Low-pass cutoff at full and zero obstruction, Hz
	MinCutoff float32
	MaxCutoff float32

	// Extra distance charged per unit of a crossed portal's raw obstruction
	PortalDistancePenalty float32
	// Distance between the last portal and the listener at which the
	// apparent position sits fully on the last portal
	PullRadius float32

	Blend BlendPolicy
	Mode  pathfind.Mode

	PathRefresh time.Duration
	PathJitter  time.Duration

	// Sources beyond FarFraction of their max distance are evaluated only
	// every FarInterval ticks
	FarFraction float32
	FarInterval int

	// Near applies when emitter and listener share a room, Far otherwise
	Near Rates
	Far  Rates

	// Workers > 1 evaluates emitters in parallel
	Workers int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MinCutoff:             300,
		MaxCutoff:             5000,
		PortalDistancePenalty: 15,
		PullRadius:            20,
		Blend:                 BlendAverage,
		Mode:                  pathfind.Optimal,
		PathRefresh:           time.Second,
		PathJitter:            250 * time.Millisecond,
		FarFraction:           0.8,
		FarInterval:           5,
		Near:                  Rates{Volume: 5, Cutoff: 5, Position: 15},
		Far:                   Rates{Volume: 5, Cutoff: 2, Position: 5},
		Workers:               1,
	}
}

// normalize replaces unusable values with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxCutoff <= 0 {
		c.MaxCutoff = d.MaxCutoff
	}
	if c.MinCutoff < 0 || c.MinCutoff > c.MaxCutoff {
		c.MinCutoff = min(d.MinCutoff, c.MaxCutoff)
	}
	if c.PortalDistancePenalty < 0 {
		c.PortalDistancePenalty = 0
	}
	if c.PullRadius <= 0 {
		c.PullRadius = d.PullRadius
	}
	if c.PathRefresh <= 0 {
		c.PathRefresh = d.PathRefresh
	}
	if c.PathJitter < 0 {
		c.PathJitter = 0
	}
	if c.FarFraction <= 0 {
		c.FarFraction = d.FarFraction
	}
	if c.FarInterval < 1 {
		c.FarInterval = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

// cutoff maps a combined obstruction fraction to a low-pass frequency.
func (c Config) cutoff(obstruction float32) float32 {
	return c.MaxCutoff - (c.MaxCutoff-c.MinCutoff)*obstruction
}
