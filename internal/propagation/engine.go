// Package propagation turns room paths, portal state and line-of-sight
// obstruction into per-emitter gain, low-pass cutoff and apparent position.
package propagation

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/internal/logger"
	"github.com/Faultbox/roomtone/internal/occlusion"
	"github.com/Faultbox/roomtone/internal/pathfind"
	"github.com/Faultbox/roomtone/pkg/math"
)

var (
	ErrNoListener     = errors.New("propagation: engine needs a listener")
	ErrNoGraph        = errors.New("propagation: engine needs a graph")
	ErrNotInitialized = errors.New("propagation: engine not initialized")
	ErrTornDown       = errors.New("propagation: engine torn down")
	ErrNegativeStep   = errors.New("propagation: negative time step")
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateRunning
	stateTornDown
)

// Engine evaluates every active emitter once per tick.
//
// Host calls must follow Init, Tick..., Teardown. The graph must not be
// mutated while Tick runs.
type Engine struct {
	graph    *graph.Graph
	finder   *pathfind.Finder
	probe    *occlusion.Probe
	listener *Listener
	cfg      Config
	log      *zap.Logger

	mu       sync.Mutex
	state    lifecycle
	emitters []*Emitter
	ticks    uint64
	now      time.Duration
}

// New creates an engine. A nil finder or probe gets a default one.
func New(g *graph.Graph, finder *pathfind.Finder, probe *occlusion.Probe, l *Listener, cfg Config) (*Engine, error) {
	if g == nil {
		return nil, ErrNoGraph
	}
	if l == nil {
		return nil, ErrNoListener
	}
	if finder == nil {
		finder = pathfind.New(g)
	}
	if probe == nil {
		probe = occlusion.New(nil)
	}
	return &Engine{
		graph:    g,
		finder:   finder,
		probe:    probe,
		listener: l,
		cfg:      cfg.normalize(),
		log:      logger.Named("propagation"),
	}, nil
}

// Config returns the effective configuration.
func (en *Engine) Config() Config {
	return en.cfg
}

// Listener returns the engine's listener.
func (en *Engine) Listener() *Listener {
	return en.listener
}

// Init starts the engine. Calling it again while running is a no-op.
func (en *Engine) Init() error {
	en.mu.Lock()
	defer en.mu.Unlock()

	switch en.state {
	case stateTornDown:
		return ErrTornDown
	case stateRunning:
		return nil
	}
	en.state = stateRunning
	en.ticks = 0
	en.now = 0
	en.listener.setRoom(nil)

	en.log.Info("propagation engine started",
		zap.Int("rooms", en.graph.Len()),
		zap.Int("emitters", len(en.emitters)),
		zap.Stringer("blend", en.cfg.Blend),
		zap.Stringer("mode", en.cfg.Mode),
		zap.Int("workers", en.cfg.Workers))
	return nil
}

// Teardown stops the engine and deactivates its emitters.
func (en *Engine) Teardown() {
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.state == stateTornDown {
		return
	}
	for _, e := range en.emitters {
		e.Deactivate()
	}
	en.state = stateTornDown
	en.log.Info("propagation engine stopped", zap.Uint64("ticks", en.ticks))
}

// Add registers and activates an emitter. Adding one twice is a no-op.
func (en *Engine) Add(e *Emitter) error {
	if e == nil {
		return fmt.Errorf("%w: nil emitter", ErrInvalidEmitter)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.state == stateTornDown {
		return ErrTornDown
	}
	if slices.Contains(en.emitters, e) {
		return nil
	}
	en.emitters = append(en.emitters, e)
	e.Activate()
	en.log.Debug("emitter added", zap.String("name", e.Name), zap.Stringer("id", e.ID))
	return nil
}

// Remove deactivates and forgets an emitter.
func (en *Engine) Remove(e *Emitter) {
	en.mu.Lock()
	defer en.mu.Unlock()

	i := slices.Index(en.emitters, e)
	if i < 0 {
		return
	}
	en.emitters = slices.Delete(en.emitters, i, i+1)
	e.Deactivate()
	en.log.Debug("emitter removed", zap.String("name", e.Name), zap.Stringer("id", e.ID))
}

// Emitters returns the registered emitters.
func (en *Engine) Emitters() []*Emitter {
	en.mu.Lock()
	defer en.mu.Unlock()
	return slices.Clone(en.emitters)
}

// Ticks returns the number of completed ticks.
func (en *Engine) Ticks() uint64 {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.ticks
}

// Tick advances the engine by dt and re-evaluates the emitters.
func (en *Engine) Tick(dt time.Duration) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	switch en.state {
	case stateNew:
		return ErrNotInitialized
	case stateTornDown:
		return ErrTornDown
	}
	if dt < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeStep, dt)
	}

	en.now += dt
	f := frame{
		tick:     en.ticks,
		now:      en.now,
		step:     float32(dt.Seconds()),
		listener: en.listener.Position(),
		room:     en.updateListenerRoom(),
	}

	if en.cfg.Workers > 1 && len(en.emitters) > 1 {
		var g errgroup.Group
		g.SetLimit(en.cfg.Workers)
		for _, e := range en.emitters {
			g.Go(func() error {
				en.evaluate(e, f)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, e := range en.emitters {
			en.evaluate(e, f)
		}
	}

	en.ticks++
	return nil
}

// frame is the listener-side state shared by every emitter in one tick.
type frame struct {
	tick     uint64
	now      time.Duration
	step     float32
	listener math.Vec3
	room     *graph.Room
}

func (en *Engine) updateListenerRoom() *graph.Room {
	prev := en.listener.Room()
	fallback := prev
	if fallback != nil && !en.graph.IsRegistered(fallback) {
		fallback = nil
	}
	room := en.graph.Locate(en.listener.Position(), fallback)
	if room != prev {
		en.listener.setRoom(room)
		en.log.Debug("listener room changed", zap.Stringer("from", roomName(prev)), zap.Stringer("to", roomName(room)))
	}
	return room
}

// target is what one evaluation wants the smoothed outputs to reach.
type target struct {
	volume   float32
	apparent math.Vec3
	distance float32
	portal   float32
	far      bool
}

func (en *Engine) evaluate(e *Emitter, f frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}
	s := e.settings
	first := e.fresh
	if !first && e.distance > en.cfg.FarFraction*s.MaxDistance && f.tick%uint64(en.cfg.FarInterval) != 0 {
		return
	}

	if s.Dynamic || e.room == nil || !en.graph.IsRegistered(e.room) {
		fallback := e.room
		if fallback != nil && !en.graph.IsRegistered(fallback) {
			fallback = nil
		}
		e.room = en.graph.Locate(e.position, fallback)
	}

	var ray float32
	if s.Directivity {
		ray = en.probe.SampleDirectional(e.position, e.forward, f.listener, s.ObstructionMask)
	} else {
		ray = en.probe.Sample(e.position, f.listener, s.ObstructionMask)
	}

	var t target
	if e.room == nil || f.room == nil || e.room == f.room {
		t = en.direct(e, f)
	} else if chain, ok := en.portalChain(e, f); ok {
		t = en.fold(e, f, chain)
	} else {
		t = en.direct(e, f)
		t.far = true
	}

	combined := en.cfg.Blend.Blend(ray, t.portal)
	cutoff := en.cfg.cutoff(combined)

	e.distance = t.distance
	e.rayFraction = ray
	e.portalFraction = t.portal
	e.obstruction = combined

	if first {
		e.volume = t.volume
		e.cutoff = cutoff
		e.apparent = t.apparent
		e.fresh = false
		return
	}

	rates := en.cfg.Near
	if t.far {
		rates = en.cfg.Far
	}
	e.volume = math.Damp(e.volume, t.volume, rates.Volume, f.step)
	e.cutoff = math.Damp(e.cutoff, cutoff, rates.Cutoff, f.step)
	e.apparent = math.DampVec3(e.apparent, t.apparent, rates.Position, f.step)
}

// direct is the line-of-sight model used inside one room and whenever no
// route is available.
func (en *Engine) direct(e *Emitter, f frame) target {
	d := e.position.Distance(f.listener)
	return target{
		volume:   en.gain(e.settings, d),
		apparent: e.position,
		distance: math.Clamp(d, 0, e.settings.MaxDistance),
	}
}

func (en *Engine) gain(s Settings, distance float32) float32 {
	v := s.MaxVolume * math.Clamp01(s.Falloff.Evaluate(math.Clamp01(distance/s.MaxDistance)))
	if !math.IsFinite(v) || v < 0 {
		return 0
	}
	return v
}

// portalChain refreshes the cached path when needed and picks the best
// portal between each pair of consecutive rooms.
func (en *Engine) portalChain(e *Emitter, f frame) ([]*graph.Portal, bool) {
	if en.pathStale(e, f) {
		q := pathfind.Query{
			From:      e.room,
			To:        f.room,
			FromPoint: e.position,
			ToPoint:   f.listener,
			Mode:      en.cfg.Mode,
		}
		e.path = en.finder.Find(q)
		e.pathFrom = e.room
		e.pathTo = f.room
		e.nextRefresh = f.now + en.cfg.PathRefresh + e.jitter(en.cfg.PathJitter)
		en.log.Debug("path refreshed",
			zap.String("emitter", e.Name),
			zap.Int("rooms", len(e.path.Rooms)),
			zap.Bool("found", e.path.Found),
			zap.Float32("cost", e.path.Cost))
	}

	if !e.path.Found || len(e.path.Rooms) < 2 {
		if !e.noPath {
			e.noPath = true
			en.log.Warn("no route to listener, using direct model",
				zap.String("emitter", e.Name),
				zap.Stringer("from", roomName(e.room)),
				zap.Stringer("to", roomName(f.room)))
		}
		return nil, false
	}

	chain := make([]*graph.Portal, 0, len(e.path.Rooms)-1)
	for i := 0; i+1 < len(e.path.Rooms); i++ {
		p := bestPortal(e.path.Rooms[i], e.path.Rooms[i+1], f.listener)
		if p == nil {
			return nil, false
		}
		chain = append(chain, p)
	}
	if e.noPath {
		e.noPath = false
		en.log.Info("route to listener restored", zap.String("emitter", e.Name))
	}
	return chain, true
}

func (en *Engine) pathStale(e *Emitter, f frame) bool {
	if e.path.Empty() || e.pathTo != f.room || e.pathFrom != e.room || f.now >= e.nextRefresh {
		return true
	}
	for _, r := range e.path.Rooms {
		if !en.graph.IsRegistered(r) {
			return true
		}
	}
	return false
}

// bestPortal picks the least obstructed portal joining from and to, breaking
// ties by distance to the listener.
func bestPortal(from, to *graph.Room, listener math.Vec3) *graph.Portal {
	var best *graph.Portal
	var bestObs, bestDist float32
	for _, p := range from.PortalsTo(to) {
		obs := p.EffectiveObstruction()
		d := p.Position.Distance(listener)
		if best == nil || obs < bestObs || (obs == bestObs && d < bestDist) {
			best, bestObs, bestDist = p, obs, d
		}
	}
	return best
}

// fold walks the portal chain from the emitter to the listener.
func (en *Engine) fold(e *Emitter, f frame, chain []*graph.Portal) target {
	cursor := e.position
	var distance, portal float32
	for _, p := range chain {
		closest := p.ClosestPoint(cursor)
		distance += cursor.Distance(closest) + en.cfg.PortalDistancePenalty*p.RawObstruction()
		cursor = closest
		portal += p.EffectiveObstruction()
	}
	distance += cursor.Distance(f.listener)
	distance = math.Clamp(distance, 0, e.settings.MaxDistance)

	last := chain[len(chain)-1].Position
	first := e.position
	if len(chain) > 1 {
		first = chain[len(chain)-2].Position
	}
	pull := math.Clamp01(last.Distance(f.listener) / en.cfg.PullRadius)

	return target{
		volume:   en.gain(e.settings, distance),
		apparent: first.Lerp(last, pull),
		distance: distance,
		portal:   math.Clamp01(portal),
		far:      true,
	}
}

type roomLabel struct{ r *graph.Room }

func (l roomLabel) String() string {
	if l.r == nil {
		return "<none>"
	}
	return l.r.Name
}

func roomName(r *graph.Room) fmt.Stringer {
	return roomLabel{r}
}
