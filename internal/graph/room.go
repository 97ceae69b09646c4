// Package graph holds the acoustic room/portal graph: rooms are nodes,
// portals are undirected edges, and the Graph registry answers which room a
// world point lies in.
package graph

import (
	"sync"

	"github.com/Faultbox/roomtone/pkg/math"
)

// Handle identifies a room within a Graph. It is assigned on first
// registration and never reused by another room.
type Handle int

// NoHandle marks a room that has never been registered.
const NoHandle Handle = -1

// Volume is a region of space supplied by the geometry backend.
type Volume interface {
	Contains(p math.Vec3) bool
}

// Bounds is a volume that can also answer closest-point queries.
type Bounds interface {
	Volume
	ClosestPoint(p math.Vec3) math.Vec3
}

// Connection is one directed adjacency entry of a room.
type Connection struct {
	Portal *Portal
	Room   *Room
}

// Room is a node of the acoustic graph.
type Room struct {
	Name string
	// Center is the representative point used by path costs.
	Center math.Vec3

	volumes []Volume

	mu          sync.RWMutex
	connections []Connection

	handle Handle
	owner  *Graph
}

// NewRoom creates an unregistered room.
func NewRoom(name string, center math.Vec3, volumes ...Volume) *Room {
	return &Room{
		Name:    name,
		Center:  center,
		volumes: volumes,
		handle:  NoHandle,
	}
}

// Handle returns the room's graph handle, or NoHandle.
func (r *Room) Handle() Handle {
	return r.handle
}

// Volumes returns the room's containment volumes.
func (r *Room) Volumes() []Volume {
	return r.volumes
}

// Contains reports whether p lies in any of the room's volumes.
func (r *Room) Contains(p math.Vec3) bool {
	for _, v := range r.volumes {
		if v.Contains(p) {
			return true
		}
	}
	return false
}

// AddConnection records that portal leads from this room to other.
func (r *Room) AddConnection(portal *Portal, other *Room) {
	r.mu.Lock()
	r.connections = append(r.connections, Connection{Portal: portal, Room: other})
	r.mu.Unlock()
}

// Connections returns the adjacency entries in insertion order.
// The returned slice must not be modified.
func (r *Room) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connections
}

// PortalsTo returns every portal connecting this room to other, in
// insertion order.
func (r *Room) PortalsTo(other *Room) []*Portal {
	var out []*Portal
	for _, c := range r.Connections() {
		if c.Room == other {
			out = append(out, c.Portal)
		}
	}
	return out
}

func (r *Room) String() string {
	if r == nil {
		return "<nil>"
	}
	return r.Name
}
