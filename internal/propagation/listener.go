package propagation

import (
	"sync"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/pkg/math"
)

// Listener is the single point of audition an engine renders for.
type Listener struct {
	mu       sync.RWMutex
	position math.Vec3
	forward  math.Vec3
	room     *graph.Room
}

// NewListener creates a listener at position facing +Z.
func NewListener(position math.Vec3) *Listener {
	return &Listener{position: position, forward: math.Vec3{Z: 1}}
}

// Position returns the listener position.
func (l *Listener) Position() math.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

// SetPosition moves the listener. Non-finite positions are ignored.
func (l *Listener) SetPosition(p math.Vec3) {
	if !p.IsFinite() {
		return
	}
	l.mu.Lock()
	l.position = p
	l.mu.Unlock()
}

// Forward returns the facing axis.
func (l *Listener) Forward() math.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.forward
}

// SetForward sets the facing axis. Zero or non-finite axes are ignored.
func (l *Listener) SetForward(f math.Vec3) {
	f = f.Normalize()
	if !f.IsFinite() || f.Length() == 0 {
		return
	}
	l.mu.Lock()
	l.forward = f
	l.mu.Unlock()
}

// Right returns the horizontal axis to the listener's right.
func (l *Listener) Right() math.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return math.Up.Cross(l.forward).Normalize()
}

// Room returns the room found on the last tick, or nil.
func (l *Listener) Room() *graph.Room {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.room
}

func (l *Listener) setRoom(r *graph.Room) {
	l.mu.Lock()
	l.room = r
	l.mu.Unlock()
}
