// Package occlusion estimates how much of the direct line of sight between
// an emitter and the listener is blocked, by casting a small fan of line
// tests through the geometry backend.
package occlusion

import "github.com/Faultbox/roomtone/pkg/math"

// RayCount is the number of line tests in one sample.
const RayCount = 9

// DefaultOffset is the lateral spread of the fan, in world units.
const DefaultOffset = 0.25

// facingAwayAngle is the emitter-forward to listener angle, in degrees,
// beyond which a directional emitter counts as facing away.
const facingAwayAngle = 90

// LayerMask selects which obstruction layers a line test considers.
type LayerMask uint32

// AllLayers matches every layer.
const AllLayers LayerMask = ^LayerMask(0)

// Obstructor answers line-of-sight queries. Implementations must ignore
// trigger-only geometry.
type Obstructor interface {
	LineObstructed(start, end math.Vec3, mask LayerMask) bool
}

// ObstructorFunc adapts a function to Obstructor.
type ObstructorFunc func(start, end math.Vec3, mask LayerMask) bool

// LineObstructed calls f.
func (f ObstructorFunc) LineObstructed(start, end math.Vec3, mask LayerMask) bool {
	return f(start, end, mask)
}

// Ray is one line test of the fan.
type Ray struct {
	Start, End math.Vec3
}

// Probe samples obstruction between two points.
type Probe struct {
	backend Obstructor
	offset  float32
}

// Option configures a Probe.
type Option func(*Probe)

// WithOffset sets the lateral spread of the fan.
func WithOffset(offset float32) Option {
	return func(p *Probe) {
		if offset >= 0 {
			p.offset = offset
		}
	}
}

// New creates a Probe backed by o. A nil backend never reports ray hits;
// SampleDirectional still applies its facing bias.
func New(o Obstructor, opts ...Option) *Probe {
	p := &Probe{backend: o, offset: DefaultOffset}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offset returns the lateral spread of the fan.
func (p *Probe) Offset() float32 {
	return p.offset
}

// Rays returns the fan between emitter and listener: the direct line, the
// four pairings of offset emitter and offset listener points, and the four
// pairings of one centre point with the other end's offsets.
func (p *Probe) Rays(emitter, listener math.Vec3) [RayCount]Ray {
	// Each end offsets sideways relative to its own view of the other end
	listenerLeft := emitter.Sub(listener).Cross(math.Up).Normalize().Scale(p.offset)
	emitterLeft := listenerLeft.Neg()

	eL := emitter.Add(emitterLeft)
	eR := emitter.Sub(emitterLeft)
	lL := listener.Add(listenerLeft)
	lR := listener.Sub(listenerLeft)

	return [RayCount]Ray{
		{emitter, listener},
		{eL, lL},
		{eR, lL},
		{eL, lR},
		{eR, lR},
		{emitter, lL},
		{emitter, lR},
		{eL, listener},
		{eR, listener},
	}
}

// Sample returns the fraction of the fan that is obstructed, in [0,1].
func (p *Probe) Sample(emitter, listener math.Vec3, mask LayerMask) float32 {
	if p.backend == nil {
		return 0
	}
	hits := 0
	for _, r := range p.Rays(emitter, listener) {
		if p.backend.LineObstructed(r.Start, r.End, mask) {
			hits++
		}
	}
	return float32(hits) / RayCount
}

// SampleDirectional is Sample with a facing bias: an emitter pointing more
// than 90° away from the listener gains one extra ray's worth of
// obstruction, capped at 1.
func (p *Probe) SampleDirectional(emitter, forward, listener math.Vec3, mask LayerMask) float32 {
	fraction := p.Sample(emitter, listener, mask)
	if forward.Angle(listener.Sub(emitter)) > facingAwayAngle && fraction < 1 {
		fraction = math.Clamp01(fraction + 1.0/RayCount)
	}
	return fraction
}
