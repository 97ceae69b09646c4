package pathfind

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/pkg/math"
)

func vec(x, y, z float32) math.Vec3 { return math.Vec3{X: x, Y: y, Z: z} }

// addRoom registers a 4x3x4 room centred on (x, 1.5, z).
func addRoom(t testing.TB, g *graph.Graph, name string, x, z float32) *graph.Room {
	t.Helper()
	b := math.BoxAt(vec(x, 1.5, z), vec(4, 3, 4))
	r := graph.NewRoom(name, b.Center(), b)
	if err := g.Register(r); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return r
}

// connect creates a small portal halfway between the two room centres.
func connect(t testing.TB, name string, a, b *graph.Room, base, openness float32) *graph.Portal {
	t.Helper()
	mid := a.Center.Lerp(b.Center, 0.5)
	return connectAt(t, name, a, b, mid, base, openness)
}

func connectAt(t testing.TB, name string, a, b *graph.Room, at math.Vec3, base, openness float32) *graph.Portal {
	t.Helper()
	bounds := math.BoxAt(at, vec(0.4, 2, 1.2))
	p, err := graph.NewPortal(name, a, b, at, bounds, base)
	if err != nil {
		t.Fatalf("NewPortal(%s): %v", name, err)
	}
	p.SetOpenness(openness)
	return p
}

func roomNames(rooms []*graph.Room) []string {
	out := make([]string, len(rooms))
	for i, r := range rooms {
		out[i] = r.Name
	}
	return out
}

func sameNames(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func approx(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	scale := b
	if scale < 0 {
		scale = -scale
	}
	return d <= 1e-3*(1+scale)
}

func TestFinder_Chain(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	c := addRoom(t, g, "C", 8, 0)
	p1 := connect(t, "P1", a, b, 1, 0)
	p2 := connect(t, "P2", b, c, 1, 0)

	f := New(g)
	q := Query{From: a, To: c, FromPoint: a.Center, ToPoint: c.Center}
	path := f.Find(q)

	if !path.Found {
		t.Fatal("expected path to be found")
	}
	if names := roomNames(path.Rooms); !sameNames(names, "A", "B", "C") {
		t.Errorf("path rooms = %v, want [A B C]", names)
	}
	if len(path.Portals) != 2 || path.Portals[0] != p1 || path.Portals[1] != p2 {
		t.Errorf("path portals = %v, want [P1 P2]", path.Portals)
	}
	if path.Start() != a || path.End() != c {
		t.Errorf("Start/End = %v/%v, want A/C", path.Start(), path.End())
	}

	// 8 units of corridor plus two floored portals at weight 10
	want := float32(8 + 2*DefaultObstructionWeight*graph.ObstructionFloor)
	if !approx(path.Cost, want) {
		t.Errorf("path cost = %v, want %v", path.Cost, want)
	}
	if got := f.Cost(path, q); !approx(got, path.Cost) {
		t.Errorf("Cost() = %v, want %v", got, path.Cost)
	}
}

func TestFinder_SameRoom(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	path := New(g).Find(Query{From: a, To: a})
	if !path.Found || len(path.Rooms) != 1 || path.Rooms[0] != a || len(path.Portals) != 0 {
		t.Errorf("same-room path = %+v, want [A] found", path)
	}
}

func TestFinder_InvalidQuery(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	stray := graph.NewRoom("stray", vec(0, 0, 0))

	f := New(g)
	for _, q := range []Query{
		{From: nil, To: a},
		{From: a, To: nil},
		{From: a, To: stray},
	} {
		if path := f.Find(q); !path.Empty() || path.Found {
			t.Errorf("Find(%v -> %v) = %+v, want empty", q.From, q.To, path)
		}
	}
}

func TestFinder_Disconnected(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	island := addRoom(t, g, "Island", 40, 0)
	connect(t, "P1", a, b, 1, 0)

	path := New(g).Find(Query{From: a, To: island, FromPoint: a.Center, ToPoint: island.Center})
	if path.Found {
		t.Fatal("expected no path to isolated room")
	}
	if path.Empty() || path.Start() != a {
		t.Errorf("partial path = %v, want a trace starting at A", roomNames(path.Rooms))
	}
	if path.End() == island {
		t.Error("partial path must not claim to reach the goal")
	}
}

func TestFinder_SkipsUnregisteredRooms(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	c := addRoom(t, g, "C", 8, 0)
	d := addRoom(t, g, "D", 4, 8)
	connect(t, "AB", a, b, 1, 0)
	connect(t, "BC", b, c, 1, 0)
	connect(t, "AD", a, d, 1, 0)
	connect(t, "DC", d, c, 1, 0)

	g.Unregister(b)
	path := New(g).Find(Query{From: a, To: c, FromPoint: a.Center, ToPoint: c.Center})
	if names := roomNames(path.Rooms); !sameNames(names, "A", "D", "C") {
		t.Errorf("path = %v, want detour [A D C] once B leaves", names)
	}
}

func TestFinder_PrefersOpenRoute(t *testing.T) {
	// Two routes from A to C: straight through B (door closed) or around via D.
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	c := addRoom(t, g, "C", 8, 0)
	d := addRoom(t, g, "D", 4, 4)
	connect(t, "AB", a, b, 1, 1) // closed, heavy
	connect(t, "BC", b, c, 1, 0)
	connect(t, "AD", a, d, 1, 0)
	connect(t, "DC", d, c, 1, 0)

	f := New(g)
	q := Query{From: a, To: c, FromPoint: a.Center, ToPoint: c.Center}

	q.Mode = Shortest
	if names := roomNames(f.Find(q).Rooms); !sameNames(names, "A", "B", "C") {
		t.Errorf("shortest path = %v, want [A B C]", names)
	}

	q.Mode = Optimal
	if names := roomNames(f.Find(q).Rooms); !sameNames(names, "A", "D", "C") {
		t.Errorf("optimal path = %v, want [A D C] around the closed door", names)
	}
}

func TestFinder_ParallelPortalsPickCheapest(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	connectAt(t, "heavy", a, b, vec(2, 1, 0), 1, 1)
	light := connectAt(t, "light", a, b, vec(2, 1, 1), 1, 0)

	path := New(g).Find(Query{From: a, To: b, FromPoint: a.Center, ToPoint: b.Center})
	if len(path.Portals) != 1 || path.Portals[0] != light {
		t.Errorf("portals = %v, want [light]", path.Portals)
	}
}

func TestFinder_ClosingPortalRaisesCost(t *testing.T) {
	g := graph.New()
	a := addRoom(t, g, "A", 0, 0)
	b := addRoom(t, g, "B", 4, 0)
	c := addRoom(t, g, "C", 8, 0)
	p1 := connect(t, "P1", a, b, 1, 0)
	connect(t, "P2", b, c, 1, 0)

	f := New(g)
	q := Query{From: a, To: c, FromPoint: a.Center, ToPoint: c.Center}
	open := f.Find(q)

	p1.SetOpenness(1)
	closed := f.Find(q)

	if !(closed.Cost > open.Cost) {
		t.Errorf("cost with P1 closed = %v, want > %v", closed.Cost, open.Cost)
	}
	if names := roomNames(closed.Rooms); !sameNames(names, "A", "B", "C") {
		t.Errorf("path = %v, want [A B C] (only route)", names)
	}
}

// randomGraph builds n rooms scattered on a plane with a spanning chain and
// a few extra random portals.
func randomGraph(t testing.TB, rng *rand.Rand, n int) (*graph.Graph, []*graph.Room, []*graph.Portal) {
	t.Helper()
	g := graph.New()
	rooms := make([]*graph.Room, n)
	for i := range rooms {
		rooms[i] = addRoom(t, g, fmt.Sprintf("R%d", i), rng.Float32()*60, rng.Float32()*60)
	}

	var portals []*graph.Portal
	perm := rng.Perm(n)
	for i := 1; i < n; i++ {
		a, b := rooms[perm[i-1]], rooms[perm[i]]
		portals = append(portals, randomPortal(t, rng, len(portals), a, b))
	}
	extra := n / 2
	for i := 0; i < extra; i++ {
		a, b := rooms[rng.IntN(n)], rooms[rng.IntN(n)]
		if a == b {
			continue
		}
		portals = append(portals, randomPortal(t, rng, len(portals), a, b))
	}
	return g, rooms, portals
}

func randomPortal(t testing.TB, rng *rand.Rand, id int, a, b *graph.Room) *graph.Portal {
	at := a.Center.Lerp(b.Center, 0.2+0.6*rng.Float32()).Add(vec(rng.Float32()*4-2, 0, rng.Float32()*4-2))
	return connectAt(t, fmt.Sprintf("P%d", id), a, b, at, rng.Float32(), rng.Float32())
}

// dijkstra is a plain O(V^2) reference over the same cost model.
func dijkstra(rooms []*graph.Room, q Query, weight float32) (float32, bool) {
	point := func(r *graph.Room) math.Vec3 {
		switch r {
		case q.To:
			return q.ToPoint
		case q.From:
			return q.FromPoint
		}
		return r.Center
	}

	const inf = float32(1e30)
	dist := make(map[*graph.Room]float32, len(rooms))
	done := make(map[*graph.Room]bool, len(rooms))
	for _, r := range rooms {
		dist[r] = inf
	}
	dist[q.From] = 0

	for {
		var best *graph.Room
		for _, r := range rooms {
			if !done[r] && dist[r] < inf && (best == nil || dist[r] < dist[best]) {
				best = r
			}
		}
		if best == nil {
			return 0, false
		}
		if best == q.To {
			return dist[best], true
		}
		done[best] = true
		for _, c := range best.Connections() {
			p := c.Portal
			cost := point(best).Distance(p.Position) + p.Position.Distance(point(c.Room))
			if q.Mode == Optimal {
				cost += weight * p.EffectiveObstruction()
			}
			if d := dist[best] + cost; d < dist[c.Room] {
				dist[c.Room] = d
			}
		}
	}
}

func TestFinder_MatchesDijkstra(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	for trial := 0; trial < 25; trial++ {
		n := 5 + rng.IntN(11)
		g, rooms, _ := randomGraph(t, rng, n)
		f := New(g)

		from, to := rooms[rng.IntN(n)], rooms[rng.IntN(n)]
		q := Query{
			From:      from,
			To:        to,
			FromPoint: from.Center.Add(vec(rng.Float32()-0.5, 0, rng.Float32()-0.5)),
			ToPoint:   to.Center.Add(vec(rng.Float32()-0.5, 0, rng.Float32()-0.5)),
		}

		for _, mode := range []Mode{Shortest, Optimal} {
			q.Mode = mode
			path := f.Find(q)
			want, ok := dijkstra(rooms, q, f.ObstructionWeight())
			if !ok {
				t.Fatalf("trial %d: reference found no path in a connected graph", trial)
			}
			if !path.Found {
				t.Fatalf("trial %d (%v): no path found", trial, mode)
			}
			if from != to && !approx(path.Cost, want) {
				t.Errorf("trial %d (%v, %d rooms): cost = %v, dijkstra = %v", trial, mode, n, path.Cost, want)
			}
			if path.Start() != from || path.End() != to {
				t.Errorf("trial %d: path runs %v -> %v, want %v -> %v", trial, path.Start(), path.End(), from, to)
			}
			if got := f.Cost(path, q); from != to && !approx(got, path.Cost) {
				t.Errorf("trial %d: Cost(path) = %v, search reported %v", trial, got, path.Cost)
			}
		}
	}
}

func TestFinder_ObstructionMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.IntN(11)
		g, rooms, portals := randomGraph(t, rng, n)
		f := New(g)
		from, to := rooms[0], rooms[n-1]
		q := Query{From: from, To: to, FromPoint: from.Center, ToPoint: to.Center, Mode: Optimal}

		before := f.Find(q).Cost
		p := portals[rng.IntN(len(portals))]
		p.BaseObstruction = 1
		p.SetOpenness(p.Openness() + rng.Float32()*(1-p.Openness()))
		after := f.Find(q).Cost

		if after < before-1e-3 {
			t.Errorf("trial %d: raising %s obstruction lowered cost %v -> %v", trial, p.Name, before, after)
		}
	}
}

func TestFinder_ConcurrentSearches(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	g, rooms, _ := randomGraph(t, rng, 12)
	f := New(g)
	q := Query{From: rooms[0], To: rooms[11], FromPoint: rooms[0].Center, ToPoint: rooms[11].Center}
	want := f.Find(q)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got := f.Find(q)
				if got.Cost != want.Cost || len(got.Rooms) != len(want.Rooms) {
					errs <- fmt.Sprintf("got cost %v over %d rooms, want %v over %d", got.Cost, len(got.Rooms), want.Cost, len(want.Rooms))
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Optimal, false},
		{"optimal", Optimal, false},
		{"Shortest", Shortest, false},
		{"fastest", Optimal, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
