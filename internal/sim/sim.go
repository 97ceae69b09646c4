// Package sim runs a scene headlessly: it steps the world and the propagation
// engine at a fixed rate and records each emitter's voice into a mixdown.
package sim

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/roomtone/internal/audio"
	"github.com/Faultbox/roomtone/internal/config"
	"github.com/Faultbox/roomtone/internal/logger"
	"github.com/Faultbox/roomtone/internal/occlusion"
	"github.com/Faultbox/roomtone/internal/pathfind"
	"github.com/Faultbox/roomtone/internal/propagation"
	"github.com/Faultbox/roomtone/internal/scene"
	"github.com/Faultbox/roomtone/pkg/math"
)

// Report is one emitter's state at a point in simulated time.
type Report struct {
	Tick        uint64
	Time        time.Duration
	Emitter     string
	Room        string
	Params      propagation.Params
	Distance    float32
	Obstruction float32
	Path        []string
}

// Sim is a headless scene run.
type Sim struct {
	config  *config.Config
	world   *scene.World
	engine  *propagation.Engine
	mixer   *audio.Mixer
	step    time.Duration
	now     time.Duration
	reports []Report
	log     *zap.Logger
}

// New loads the configured scene and wires it to an engine and mixer.
func New(cfg *config.Config) (*Sim, error) {
	logger.Named("sim").Info("initializing simulation",
		zap.String("scene", cfg.Render.Scene),
		zap.Int("ticks", cfg.Render.Ticks),
		zap.Int("tick_rate", cfg.Render.TickRate),
	)

	desc, err := scene.Load(cfg.Render.Scene)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	world, err := desc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scene: %w", err)
	}
	return NewWorld(cfg, world)
}

// NewWorld wires an already built world.
func NewWorld(cfg *config.Config, world *scene.World) (*Sim, error) {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	finder := pathfind.New(world.Graph, pathfind.WithObstructionWeight(cfg.Pathfinding.ObstructionWeight))
	probe := occlusion.New(world.Walls, occlusion.WithOffset(cfg.Occlusion.Offset))

	en, err := propagation.New(world.Graph, finder, probe, world.Listener, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := en.Init(); err != nil {
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}

	s := &Sim{
		config: cfg,
		world:  world,
		engine: en,
		mixer:  audio.New(beep.SampleRate(cfg.Render.SampleRate)),
		step:   cfg.TickInterval(),
		log:    logger.Named("sim"),
	}
	for _, src := range world.Sources {
		if err := en.Add(src.Emitter); err != nil {
			en.Teardown()
			return nil, fmt.Errorf("failed to add %s: %w", src.Emitter.Name, err)
		}
		s.mixer.AddTone(src.Emitter.ID, src.ToneHz)
	}

	s.log.Info("simulation initialized", zap.Int("emitters", len(world.Sources)))
	return s, nil
}

// Run steps the configured number of ticks and writes the mixdown if an
// output path is set.
func (s *Sim) Run() error {
	every := s.reportTicks()
	s.log.Info("starting simulation")

	for i := 0; i < s.config.Render.Ticks; i++ {
		if err := s.Step(); err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
		if every > 0 && s.engine.Ticks()%uint64(every) == 0 {
			s.report()
		}
	}

	s.log.Info("simulation finished",
		zap.Uint64("ticks", s.engine.Ticks()),
		zap.Duration("recorded", s.mixer.Recorded()),
	)

	if out := s.config.Render.Out; out != "" {
		if err := s.mixer.SaveWAV(out); err != nil {
			return fmt.Errorf("failed to write mixdown: %w", err)
		}
		s.log.Info("wrote mixdown", zap.String("path", out))
	}
	return nil
}

// Step advances the scene, the engine and the mixer by one tick.
func (s *Sim) Step() error {
	s.now += s.step
	s.world.Advance(s.now)
	if err := s.engine.Tick(s.step); err != nil {
		return err
	}
	l := s.engine.Listener()
	for _, e := range s.engine.Emitters() {
		s.mixer.Apply(e, l, s.step)
	}
	s.mixer.Render(s.step)
	return nil
}

// Now returns the simulated time.
func (s *Sim) Now() time.Duration {
	return s.now
}

// Engine returns the propagation engine.
func (s *Sim) Engine() *propagation.Engine {
	return s.engine
}

// Mixer returns the audio mixer.
func (s *Sim) Mixer() *audio.Mixer {
	return s.mixer
}

// Reports returns the snapshots taken so far.
func (s *Sim) Reports() []Report {
	return s.reports
}

// Close tears the engine down.
func (s *Sim) Close() {
	s.log.Info("closing simulation")
	s.engine.Teardown()
}

func (s *Sim) reportTicks() int {
	d := s.config.Render.ReportEvery
	if d <= 0 || s.step <= 0 {
		return 0
	}
	n := int(d / s.step)
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Sim) report() {
	tick := s.engine.Ticks()
	for _, e := range s.engine.Emitters() {
		r := Report{
			Tick:        tick,
			Time:        s.now,
			Emitter:     e.Name,
			Params:      e.Output(),
			Distance:    e.Distance(),
			Obstruction: e.Obstruction(),
		}
		if room := e.Room(); room != nil {
			r.Room = room.Name
		}
		for _, room := range e.Path().Rooms {
			r.Path = append(r.Path, room.Name)
		}
		s.reports = append(s.reports, r)

		s.log.Debug("emitter",
			zap.Uint64("tick", tick),
			zap.String("emitter", r.Emitter),
			zap.String("room", r.Room),
			zap.Strings("path", r.Path),
			zap.Float32("volume", r.Params.Volume),
			zap.Float32("cutoff", r.Params.LowPassCutoff),
			zap.Stringer("position", vecLabel(r.Params.Position)),
			zap.Float32("obstruction", r.Obstruction),
		)
	}
}

type vecLabel math.Vec3

func (v vecLabel) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
