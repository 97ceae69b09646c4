// Package config handles roomtone configuration loading and management.
package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/Faultbox/roomtone/internal/pathfind"
	"github.com/Faultbox/roomtone/internal/propagation"
)

// Config holds all roomtone settings.
type Config struct {
	Propagation PropagationConfig `yaml:"propagation"`
	Pathfinding PathfindingConfig `yaml:"pathfinding"`
	Occlusion   OcclusionConfig   `yaml:"occlusion"`
	Smoothing   SmoothingConfig   `yaml:"smoothing"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	Render      RenderConfig      `yaml:"render"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PropagationConfig holds the geometry to audio mapping.
type PropagationConfig struct {
	MinCutoff             float32 `yaml:"min_cutoff"` // Hz at full obstruction
	MaxCutoff             float32 `yaml:"max_cutoff"` // Hz with a clear line
	PortalDistancePenalty float32 `yaml:"portal_distance_penalty"`
	PullRadius            float32 `yaml:"pull_radius"`
	Blend                 string  `yaml:"blend"` // average, max or min
	Workers               int     `yaml:"workers"`
}

// PathfindingConfig holds route search settings.
type PathfindingConfig struct {
	Mode              string        `yaml:"mode"` // optimal or shortest
	ObstructionWeight float32       `yaml:"obstruction_weight"`
	Refresh           time.Duration `yaml:"refresh"`
	Jitter            time.Duration `yaml:"jitter"`
}

// OcclusionConfig holds line-of-sight probe settings.
type OcclusionConfig struct {
	Offset float32 `yaml:"offset"`
}

// RatesConfig holds exponential smoothing rates in 1/s.
type RatesConfig struct {
	Volume   float32 `yaml:"volume"`
	Cutoff   float32 `yaml:"cutoff"`
	Position float32 `yaml:"position"`
}

// SmoothingConfig holds output smoothing for same-room and cross-room sources.
type SmoothingConfig struct {
	Near RatesConfig `yaml:"near"`
	Far  RatesConfig `yaml:"far"`
}

// ThrottleConfig holds the far-source update policy.
type ThrottleConfig struct {
	FarFraction float32 `yaml:"far_fraction"`
	FarInterval int     `yaml:"far_interval"`
}

// RenderConfig holds the headless runner settings.
type RenderConfig struct {
	Scene       string        `yaml:"scene"`
	Ticks       int           `yaml:"ticks"`
	TickRate    int           `yaml:"tick_rate"` // ticks per second
	SampleRate  int           `yaml:"sample_rate"`
	Out         string        `yaml:"out"` // WAV path, empty to skip
	ReportEvery time.Duration `yaml:"report_every"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	p := propagation.DefaultConfig()
	return &Config{
		Propagation: PropagationConfig{
			MinCutoff:             p.MinCutoff,
			MaxCutoff:             p.MaxCutoff,
			PortalDistancePenalty: p.PortalDistancePenalty,
			PullRadius:            p.PullRadius,
			Blend:                 p.Blend.String(),
			Workers:               p.Workers,
		},
		Pathfinding: PathfindingConfig{
			Mode:              p.Mode.String(),
			ObstructionWeight: pathfind.DefaultObstructionWeight,
			Refresh:           p.PathRefresh,
			Jitter:            p.PathJitter,
		},
		Occlusion: OcclusionConfig{
			Offset: 0.25,
		},
		Smoothing: SmoothingConfig{
			Near: RatesConfig(p.Near),
			Far:  RatesConfig(p.Far),
		},
		Throttle: ThrottleConfig{
			FarFraction: p.FarFraction,
			FarInterval: p.FarInterval,
		},
		Render: RenderConfig{
			Ticks:       600,
			TickRate:    60,
			SampleRate:  44100,
			ReportEvery: time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var err error
	if _, e := propagation.ParseBlendPolicy(c.Propagation.Blend); e != nil {
		err = multierr.Append(err, fmt.Errorf("propagation.blend: %w", e))
	}
	if _, e := pathfind.ParseMode(c.Pathfinding.Mode); e != nil {
		err = multierr.Append(err, fmt.Errorf("pathfinding.mode: %w", e))
	}
	if c.Propagation.MinCutoff < 0 || c.Propagation.MaxCutoff <= c.Propagation.MinCutoff {
		err = multierr.Append(err, fmt.Errorf("propagation: cutoff range %v..%v is empty",
			c.Propagation.MinCutoff, c.Propagation.MaxCutoff))
	}
	if c.Pathfinding.ObstructionWeight < 0 {
		err = multierr.Append(err, fmt.Errorf("pathfinding.obstruction_weight: %v is negative", c.Pathfinding.ObstructionWeight))
	}
	if c.Occlusion.Offset < 0 {
		err = multierr.Append(err, fmt.Errorf("occlusion.offset: %v is negative", c.Occlusion.Offset))
	}
	if c.Render.TickRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("render.tick_rate: %d must be positive", c.Render.TickRate))
	}
	if c.Render.SampleRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("render.sample_rate: %d must be positive", c.Render.SampleRate))
	}
	return err
}

// Engine converts the settings into an engine configuration.
func (c *Config) Engine() (propagation.Config, error) {
	blend, err := propagation.ParseBlendPolicy(c.Propagation.Blend)
	if err != nil {
		return propagation.Config{}, fmt.Errorf("propagation.blend: %w", err)
	}
	mode, err := pathfind.ParseMode(c.Pathfinding.Mode)
	if err != nil {
		return propagation.Config{}, fmt.Errorf("pathfinding.mode: %w", err)
	}
	return propagation.Config{
		MinCutoff:             c.Propagation.MinCutoff,
		MaxCutoff:             c.Propagation.MaxCutoff,
		PortalDistancePenalty: c.Propagation.PortalDistancePenalty,
		PullRadius:            c.Propagation.PullRadius,
		Blend:                 blend,
		Mode:                  mode,
		PathRefresh:           c.Pathfinding.Refresh,
		PathJitter:            c.Pathfinding.Jitter,
		FarFraction:           c.Throttle.FarFraction,
		FarInterval:           c.Throttle.FarInterval,
		Near:                  propagation.Rates(c.Smoothing.Near),
		Far:                   propagation.Rates(c.Smoothing.Far),
		Workers:               c.Propagation.Workers,
	}, nil
}

// TickInterval returns the simulated time per tick.
func (c *Config) TickInterval() time.Duration {
	if c.Render.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Render.TickRate)
}
