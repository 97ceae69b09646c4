package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Faultbox/roomtone/pkg/math"
)

// ErrForeignRoom is returned when registering a room owned by another graph.
var ErrForeignRoom = errors.New("graph: room belongs to another graph")

// Graph is the registry of live rooms.
//
// Registration is reference counted: registering a room that is already
// live only bumps its count, and the room leaves the live set when the
// count drops to zero. Unregistering a room that is not live is a no-op.
//
// Reads are safe from multiple goroutines; mutations must not overlap a
// parallel propagation tick.
type Graph struct {
	mu      sync.RWMutex
	live    []*Room // registration order
	refs    map[*Room]int
	handles []*Room // index = Handle; nil once unregistered
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{refs: make(map[*Room]int)}
}

// Register adds room to the live set.
func (g *Graph) Register(room *Room) error {
	if room == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if room.owner != nil && room.owner != g {
		return fmt.Errorf("%w: %q", ErrForeignRoom, room.Name)
	}
	if g.refs[room] > 0 {
		g.refs[room]++
		return nil
	}

	if room.handle == NoHandle {
		room.handle = Handle(len(g.handles))
		room.owner = g
		g.handles = append(g.handles, room)
	} else {
		g.handles[room.handle] = room
	}
	g.refs[room] = 1
	g.live = append(g.live, room)
	return nil
}

// Unregister releases one registration of room.
func (g *Graph) Unregister(room *Room) {
	if room == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.refs[room]
	if n == 0 {
		return
	}
	if n > 1 {
		g.refs[room] = n - 1
		return
	}
	g.drop(room)
}

// Clear unregisters every room regardless of its count.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.live {
		delete(g.refs, r)
		g.handles[r.handle] = nil
	}
	g.live = nil
}

func (g *Graph) drop(room *Room) {
	delete(g.refs, room)
	g.handles[room.handle] = nil
	for i, r := range g.live {
		if r == room {
			g.live = append(g.live[:i], g.live[i+1:]...)
			break
		}
	}
}

// IsRegistered reports whether room is in the live set.
func (g *Graph) IsRegistered(room *Room) bool {
	if room == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refs[room] > 0
}

// Len returns the number of live rooms.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.live)
}

// HandleCount returns one past the largest handle ever assigned.
func (g *Graph) HandleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// Room returns the live room with handle h, or nil.
func (g *Graph) Room(h Handle) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if h < 0 || int(h) >= len(g.handles) {
		return nil
	}
	return g.handles[h]
}

// Rooms returns a snapshot of the live rooms in registration order.
func (g *Graph) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, len(g.live))
	copy(out, g.live)
	return out
}

// Locate returns the first live room containing p. When none does it
// returns fallback if fallback is still live, otherwise nil.
func (g *Graph) Locate(p math.Vec3, fallback *Room) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, r := range g.live {
		if r.Contains(p) {
			return r
		}
	}
	if fallback != nil && g.refs[fallback] > 0 {
		return fallback
	}
	return nil
}
