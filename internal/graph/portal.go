package graph

import (
	"errors"
	"fmt"
	gomath "math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Faultbox/roomtone/pkg/math"
)

// ObstructionFloor is the minimum effective obstruction of any portal, so a
// route's cost always grows with the number of portals crossed.
const ObstructionFloor = 0.1

// ErrInvalidPortal is returned when a portal's rooms are missing or equal.
var ErrInvalidPortal = errors.New("graph: invalid portal")

// Portal is an opening connecting two distinct rooms.
type Portal struct {
	Name string
	// Position is the portal centre.
	Position math.Vec3
	// BaseObstruction is the material obstruction when fully closed, in [0,1].
	BaseObstruction float32

	first, second *Room
	bounds        Bounds

	openness atomic.Uint32 // float32 bits

	tweenMu sync.Mutex
	tween   *OpennessTween
	opened  bool
}

// NewPortal creates a portal between first and second and registers it in
// both rooms' adjacency lists.
func NewPortal(name string, first, second *Room, position math.Vec3, bounds Bounds, baseObstruction float32) (*Portal, error) {
	if first == nil || second == nil {
		return nil, fmt.Errorf("%w: %q is missing a room", ErrInvalidPortal, name)
	}
	if first == second {
		return nil, fmt.Errorf("%w: %q connects room %q to itself", ErrInvalidPortal, name, first.Name)
	}
	if bounds == nil {
		return nil, fmt.Errorf("%w: %q has no bounds", ErrInvalidPortal, name)
	}

	p := &Portal{
		Name:            name,
		Position:        position,
		BaseObstruction: math.Clamp01(baseObstruction),
		first:           first,
		second:          second,
		bounds:          bounds,
		opened:          true,
	}
	first.AddConnection(p, second)
	second.AddConnection(p, first)
	return p, nil
}

// Rooms returns the two rooms the portal connects.
func (p *Portal) Rooms() (*Room, *Room) {
	return p.first, p.second
}

// Other returns the room on the opposite side of r, or nil if r is not
// one of the portal's rooms.
func (p *Portal) Other(r *Room) *Room {
	switch r {
	case p.first:
		return p.second
	case p.second:
		return p.first
	}
	return nil
}

// Openness returns how closed the portal is: 0 open, 1 closed.
func (p *Portal) Openness() float32 {
	return gomath.Float32frombits(p.openness.Load())
}

// SetOpenness sets the closed fraction, clamped to [0,1]. Safe to call from
// an animation driver between ticks.
func (p *Portal) SetOpenness(v float32) {
	p.openness.Store(gomath.Float32bits(math.Clamp01(v)))
}

// RawObstruction is openness × base obstruction without the floor.
func (p *Portal) RawObstruction() float32 {
	return p.Openness() * p.BaseObstruction
}

// EffectiveObstruction is the acoustic opacity of the portal, never below
// ObstructionFloor and never above 1.
func (p *Portal) EffectiveObstruction() float32 {
	o := p.RawObstruction()
	if o < ObstructionFloor {
		return ObstructionFloor
	}
	return math.Clamp01(o)
}

// ClosestPoint returns the point of the portal bounds nearest to q.
func (p *Portal) ClosestPoint(q math.Vec3) math.Vec3 {
	return p.bounds.ClosestPoint(q)
}

// Bounds returns the portal's bounding volume.
func (p *Portal) Bounds() Bounds {
	return p.bounds
}

// IsOpen reports whether the last requested transition was an opening.
func (p *Portal) IsOpen() bool {
	p.tweenMu.Lock()
	defer p.tweenMu.Unlock()
	return p.opened
}

// Open starts easing the portal to fully open over d.
func (p *Portal) Open(now, d time.Duration) {
	p.animate(now, d, 0, true)
}

// Close starts easing the portal to fully closed over d.
func (p *Portal) Close(now, d time.Duration) {
	p.animate(now, d, 1, false)
}

// Toggle opens a closed portal or closes an open one.
func (p *Portal) Toggle(now, d time.Duration) {
	if p.IsOpen() {
		p.Close(now, d)
	} else {
		p.Open(now, d)
	}
}

// Advance evaluates any running transition at now and stores the result.
// Returns true while a transition is still in progress.
func (p *Portal) Advance(now time.Duration) bool {
	p.tweenMu.Lock()
	defer p.tweenMu.Unlock()
	if p.tween == nil {
		return false
	}
	p.SetOpenness(p.tween.Value(now))
	if p.tween.Done(now) {
		p.tween = nil
		return false
	}
	return true
}

func (p *Portal) animate(now, d time.Duration, target float32, opened bool) {
	p.tweenMu.Lock()
	defer p.tweenMu.Unlock()
	p.opened = opened
	// A new transition starts from wherever the previous one left off
	p.tween = &OpennessTween{
		Start:     p.Openness(),
		Target:    target,
		StartTime: now,
		Duration:  d,
	}
	p.SetOpenness(p.tween.Value(now))
}

func (p *Portal) String() string {
	return fmt.Sprintf("%s(%s<->%s)", p.Name, p.first.Name, p.second.Name)
}
