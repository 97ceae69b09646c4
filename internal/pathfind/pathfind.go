// Package pathfind finds the best route through the acoustic graph from an
// emitter's room to the listener's room using A*.
package pathfind

import (
	"cmp"
	"fmt"
	"strings"
	"sync"

	"github.com/zyedidia/generic/mapset"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/internal/pqueue"
	"github.com/Faultbox/roomtone/pkg/math"
)

// DefaultObstructionWeight scales a portal's effective obstruction into
// path cost, in distance units.
const DefaultObstructionWeight = 10

// Mode selects how portal state contributes to path cost.
type Mode int

const (
	// Optimal adds each crossed portal's obstruction weight.
	Optimal Mode = iota
	// Shortest uses geometric distance only.
	Shortest
)

func (m Mode) String() string {
	if m == Shortest {
		return "shortest"
	}
	return "optimal"
}

// ParseMode accepts "optimal" or "shortest". Empty means optimal.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimal":
		return Optimal, nil
	case "shortest":
		return Shortest, nil
	}
	return Optimal, fmt.Errorf("unknown path mode %q", s)
}

// Query describes one search.
type Query struct {
	From, To *graph.Room
	// FromPoint stands in for the start room's centre (the emitter position).
	FromPoint math.Vec3
	// ToPoint stands in for the goal room's centre (the listener position).
	ToPoint math.Vec3
	Mode    Mode
}

// Path is an ordered route of rooms. Portals[i] joins Rooms[i] and
// Rooms[i+1]. When Found is false the path is the partial trace to the last
// room the search settled, or empty if the query was invalid.
type Path struct {
	Rooms   []*graph.Room
	Portals []*graph.Portal
	Cost    float32
	Found   bool
}

// Empty reports whether the path holds no rooms.
func (p Path) Empty() bool {
	return len(p.Rooms) == 0
}

// Start returns the first room, or nil.
func (p Path) Start() *graph.Room {
	if len(p.Rooms) == 0 {
		return nil
	}
	return p.Rooms[0]
}

// End returns the last room, or nil.
func (p Path) End() *graph.Room {
	if len(p.Rooms) == 0 {
		return nil
	}
	return p.Rooms[len(p.Rooms)-1]
}

// node is the per-search state of one room.
type node struct {
	room   *graph.Room
	point  math.Vec3
	g, h   float32
	parent *node
	via    *graph.Portal
	index  int
	seen   bool
}

func (n *node) f() float32 { return n.g + n.h }

// Compare orders lower f first, then lower h.
func (n *node) Compare(other *node) int {
	c := cmp.Compare(n.f(), other.f())
	if c == 0 {
		c = cmp.Compare(n.h, other.h)
	}
	return -c
}

func (n *node) HeapIndex() int     { return n.index }
func (n *node) SetHeapIndex(i int) { n.index = i }

// scratch is a search arena indexed by room handle.
type scratch struct {
	nodes []node
}

func (s *scratch) reset(n int) {
	if cap(s.nodes) < n {
		s.nodes = make([]node, n)
	}
	s.nodes = s.nodes[:n]
	for i := range s.nodes {
		s.nodes[i] = node{index: -1}
	}
}

// Finder runs searches over a graph. Find is safe for concurrent use; each
// call works in its own pooled arena.
type Finder struct {
	graph  *graph.Graph
	weight float32
	pool   sync.Pool
}

// Option configures a Finder.
type Option func(*Finder)

// WithObstructionWeight sets the multiplier applied to portal obstruction.
func WithObstructionWeight(w float32) Option {
	return func(f *Finder) {
		if w >= 0 {
			f.weight = w
		}
	}
}

// New creates a Finder for g.
func New(g *graph.Graph, opts ...Option) *Finder {
	f := &Finder{
		graph:  g,
		weight: DefaultObstructionWeight,
	}
	f.pool.New = func() any { return &scratch{} }
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ObstructionWeight returns the portal weight multiplier.
func (f *Finder) ObstructionWeight() float32 {
	return f.weight
}

// Find returns the cheapest route for q.
func (f *Finder) Find(q Query) Path {
	if q.From == nil || q.To == nil || !f.graph.IsRegistered(q.From) || !f.graph.IsRegistered(q.To) {
		return Path{}
	}
	if q.From == q.To {
		return Path{Rooms: []*graph.Room{q.From}, Found: true}
	}

	s := f.pool.Get().(*scratch)
	defer f.pool.Put(s)
	s.reset(f.graph.HandleCount())

	open := pqueue.New[*node](f.graph.Len())
	closed := mapset.New[graph.Handle]()

	start := f.visit(s, q.From, q)
	if start == nil {
		return Path{}
	}
	if err := open.Push(start); err != nil {
		return Path{}
	}

	var last *node
	for open.Len() > 0 {
		current, err := open.Pop()
		if err != nil {
			break
		}
		closed.Put(current.room.Handle())
		last = current

		if current.room == q.To {
			return trace(current, true)
		}

		for _, c := range current.room.Connections() {
			nb := c.Room
			if nb == nil || !f.graph.IsRegistered(nb) || closed.Has(nb.Handle()) {
				continue
			}
			n := f.visit(s, nb, q)
			if n == nil {
				continue
			}
			g := current.g + f.edgeCost(current.point, c.Portal, n.point, q.Mode)

			if open.Contains(n) {
				if g < n.g {
					n.g = g
					n.parent = current
					n.via = c.Portal
					_ = open.Fix(n)
				}
				continue
			}

			n.g = g
			n.parent = current
			n.via = c.Portal
			if err := open.Push(n); err != nil {
				// More live neighbours than the graph reported: the registry
				// changed under the search.
				return trace(last, false)
			}
		}
	}

	return trace(last, false)
}

// visit returns the arena node for room, initialising it on first touch.
// Rooms registered after the arena was sized are not searchable and yield nil.
func (f *Finder) visit(s *scratch, room *graph.Room, q Query) *node {
	h := room.Handle()
	if h < 0 || int(h) >= len(s.nodes) {
		return nil
	}
	n := &s.nodes[h]
	if n.seen {
		return n
	}
	*n = node{
		room:  room,
		point: representative(room, q),
		index: -1,
		seen:  true,
	}
	n.h = n.point.Distance(q.ToPoint)
	return n
}

func representative(room *graph.Room, q Query) math.Vec3 {
	switch room {
	case q.To:
		return q.ToPoint
	case q.From:
		return q.FromPoint
	}
	return room.Center
}

// edgeCost is the cost of walking from a room's representative point through
// portal p to the next room's representative point.
func (f *Finder) edgeCost(from math.Vec3, p *graph.Portal, to math.Vec3, mode Mode) float32 {
	c := from.Distance(p.Position) + p.Position.Distance(to)
	if mode == Optimal {
		c += f.weight * p.EffectiveObstruction()
	}
	return c
}

// Cost re-evaluates path under the current portal state.
func (f *Finder) Cost(path Path, q Query) float32 {
	var total float32
	for i, p := range path.Portals {
		if i+1 >= len(path.Rooms) {
			break
		}
		from := representative(path.Rooms[i], q)
		to := representative(path.Rooms[i+1], q)
		total += f.edgeCost(from, p, to, q.Mode)
	}
	return total
}

func trace(end *node, found bool) Path {
	if end == nil {
		return Path{}
	}
	var rooms []*graph.Room
	var portals []*graph.Portal
	for n := end; n != nil; n = n.parent {
		rooms = append(rooms, n.room)
		if n.parent != nil {
			portals = append(portals, n.via)
		}
	}
	// Built goal to start
	for i, j := 0, len(rooms)-1; i < j; i, j = i+1, j-1 {
		rooms[i], rooms[j] = rooms[j], rooms[i]
	}
	for i, j := 0, len(portals)-1; i < j; i, j = i+1, j-1 {
		portals[i], portals[j] = portals[j], portals[i]
	}
	return Path{Rooms: rooms, Portals: portals, Cost: end.g, Found: found}
}
