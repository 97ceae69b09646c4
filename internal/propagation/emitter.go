package propagation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/internal/occlusion"
	"github.com/Faultbox/roomtone/internal/pathfind"
	"github.com/Faultbox/roomtone/pkg/math"
)

// ErrInvalidEmitter is returned for emitter settings that cannot produce
// output.
var ErrInvalidEmitter = errors.New("propagation: invalid emitter")

// Params is the per-tick output for one emitter.
type Params struct {
	Volume        float32
	LowPassCutoff float32 // Hz
	Position      math.Vec3
	Room          graph.Handle
}

// Settings are the authored properties of an emitter.
type Settings struct {
	MaxDistance     float32
	MaxVolume       float32
	Falloff         Curve
	ObstructionMask occlusion.LayerMask
	// Directivity biases obstruction when the emitter faces away
	Directivity bool
	// Dynamic emitters re-locate their room every tick
	Dynamic bool
}

// DefaultSettings returns settings for a plain omnidirectional source.
func DefaultSettings() Settings {
	return Settings{
		MaxDistance:     30,
		MaxVolume:       1,
		Falloff:         LinearFalloff,
		ObstructionMask: occlusion.AllLayers,
	}
}

// Emitter is an audio source in the scene.
//
// Position and forward may be set by the host between ticks. All other
// state is owned by the engine.
type Emitter struct {
	ID   uuid.UUID
	Name string

	mu       sync.RWMutex
	settings Settings
	position math.Vec3
	forward  math.Vec3

	// Smoothed outputs
	apparent math.Vec3
	volume   float32
	cutoff   float32

	// Last evaluation
	distance       float32
	obstruction    float32
	rayFraction    float32
	portalFraction float32
	room           *graph.Room

	// Path cache
	path        pathfind.Path
	pathTo      *graph.Room
	pathFrom    *graph.Room
	nextRefresh time.Duration
	noPath      bool

	active bool
	fresh  bool
	rng    *rand.Rand
}

// NewEmitter creates an inactive emitter at position.
func NewEmitter(name string, position math.Vec3, s Settings) (*Emitter, error) {
	if s.Falloff == nil {
		s.Falloff = LinearFalloff
	}
	if !(s.MaxDistance > 0) || !math.IsFinite(s.MaxDistance) {
		return nil, fmt.Errorf("%w: %q max distance %v", ErrInvalidEmitter, name, s.MaxDistance)
	}
	if !(s.MaxVolume >= 0) || !math.IsFinite(s.MaxVolume) {
		return nil, fmt.Errorf("%w: %q max volume %v", ErrInvalidEmitter, name, s.MaxVolume)
	}
	if !position.IsFinite() {
		return nil, fmt.Errorf("%w: %q position %v", ErrInvalidEmitter, name, position)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("emitter id: %w", err)
	}
	seed := id[:]
	return &Emitter{
		ID:       id,
		Name:     name,
		settings: s,
		position: position,
		forward:  math.Vec3{Z: 1},
		apparent: position,
		fresh:    true,
		rng:      rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}, nil
}

// Settings returns the emitter's authored properties.
func (e *Emitter) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Position returns the true position.
func (e *Emitter) Position() math.Vec3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// SetPosition moves the emitter. Non-finite positions are ignored.
func (e *Emitter) SetPosition(p math.Vec3) {
	if !p.IsFinite() {
		return
	}
	e.mu.Lock()
	e.position = p
	e.mu.Unlock()
}

// Forward returns the facing axis used for directivity.
func (e *Emitter) Forward() math.Vec3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forward
}

// SetForward sets the facing axis. Zero or non-finite axes are ignored.
func (e *Emitter) SetForward(f math.Vec3) {
	f = f.Normalize()
	if !f.IsFinite() || f.Length() == 0 {
		return
	}
	e.mu.Lock()
	e.forward = f
	e.mu.Unlock()
}

// Output returns the current smoothed parameters.
func (e *Emitter) Output() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	room := graph.NoHandle
	if e.room != nil {
		room = e.room.Handle()
	}
	return Params{
		Volume:        e.volume,
		LowPassCutoff: e.cutoff,
		Position:      e.apparent,
		Room:          room,
	}
}

// Room returns the room the emitter was last located in, or nil.
func (e *Emitter) Room() *graph.Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.room
}

// Distance returns the last propagation distance.
func (e *Emitter) Distance() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.distance
}

// Obstruction returns the last blended obstruction fraction.
func (e *Emitter) Obstruction() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.obstruction
}

// RayObstruction returns the last direct-ray obstruction fraction.
func (e *Emitter) RayObstruction() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rayFraction
}

// PortalObstruction returns the last accumulated portal obstruction.
func (e *Emitter) PortalObstruction() float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.portalFraction
}

// Path returns the cached room path.
func (e *Emitter) Path() pathfind.Path {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := e.path
	p.Rooms = append([]*graph.Room(nil), p.Rooms...)
	p.Portals = append([]*graph.Portal(nil), p.Portals...)
	return p
}

// IsActive reports whether the engine evaluates this emitter.
func (e *Emitter) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Activate resumes evaluation. The next evaluation applies its targets
// without smoothing.
func (e *Emitter) Activate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		e.active = true
		e.fresh = true
	}
}

// Deactivate stops evaluation and snaps the apparent position back to the
// true position.
func (e *Emitter) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.fresh = true
	e.apparent = e.position
	e.path = pathfind.Path{}
	e.pathTo, e.pathFrom = nil, nil
	e.noPath = false
}

func (e *Emitter) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.ID)
}

// jitter returns a uniform delay in [0, d).
func (e *Emitter) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int64N(int64(d)))
}
