package scene

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/roomtone/internal/graph"
	"github.com/Faultbox/roomtone/internal/logger"
	"github.com/Faultbox/roomtone/internal/occlusion"
	"github.com/Faultbox/roomtone/internal/propagation"
	"github.com/Faultbox/roomtone/pkg/math"
)

// Source pairs an emitter with the test tone it plays.
type Source struct {
	Emitter *propagation.Emitter
	ToneHz  float64
}

// Event is a scheduled portal transition.
type Event struct {
	At       time.Duration
	Portal   *graph.Portal
	Action   Action
	Duration time.Duration
}

// World is a built scene.
type World struct {
	Graph    *graph.Graph
	Rooms    []*graph.Room
	Portals  []*graph.Portal
	Walls    Walls
	Listener *propagation.Listener
	Sources  []Source

	route  []math.Vec3
	speed  float32
	events []Event
	next   int
	log    *zap.Logger
}

// Build creates the runtime objects for d. Rooms are registered in file
// order.
func (d *Description) Build() (*World, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	w := &World{Graph: graph.New(), log: logger.Named("scene")}
	byName := make(map[string]*graph.Room, len(d.Rooms))
	for _, rd := range d.Rooms {
		volumes := make([]graph.Volume, len(rd.Boxes))
		for i, b := range rd.Boxes {
			volumes[i] = b.AABB()
		}
		center := rd.Boxes[0].AABB().Center()
		if rd.Center != nil {
			center = rd.Center.Vec3()
		}
		r := graph.NewRoom(rd.Name, center, volumes...)
		if err := w.Graph.Register(r); err != nil {
			return nil, errors.Wrapf(err, "room %q", rd.Name)
		}
		byName[rd.Name] = r
		w.Rooms = append(w.Rooms, r)
	}

	portals := make(map[string]*graph.Portal, len(d.Portals))
	for _, pd := range d.Portals {
		bounds := math.BoxAt(pd.Center.Vec3(), pd.Size.Vec3())
		p, err := graph.NewPortal(pd.Name, byName[pd.Rooms[0]], byName[pd.Rooms[1]], pd.Center.Vec3(), bounds, pd.BaseObstruction)
		if err != nil {
			return nil, errors.Wrapf(err, "portal %q", pd.Name)
		}
		p.SetOpenness(pd.Openness)
		portals[pd.Name] = p
		w.Portals = append(w.Portals, p)
	}

	for _, wd := range d.Walls {
		w.Walls = append(w.Walls, Wall{
			Box:     math.NewAABB(wd.Min.Vec3(), wd.Max.Vec3()),
			Layer:   wd.Layer,
			Trigger: wd.Trigger,
		})
	}

	w.Listener = propagation.NewListener(d.Listener.Position.Vec3())
	w.Listener.SetForward(d.Listener.Forward.Vec3())
	for _, p := range d.Listener.Path {
		w.route = append(w.route, p.Vec3())
	}
	w.speed = d.Listener.Speed

	for _, ed := range d.Emitters {
		s, err := ed.settings()
		if err != nil {
			return nil, errors.Wrapf(err, "emitter %q", ed.Name)
		}
		e, err := propagation.NewEmitter(ed.Name, ed.Position.Vec3(), s)
		if err != nil {
			return nil, errors.Wrapf(err, "emitter %q", ed.Name)
		}
		if f := ed.Forward.Vec3(); f.Length() > 0 {
			e.SetForward(f)
		}
		w.Sources = append(w.Sources, Source{Emitter: e, ToneHz: ed.ToneHz})
	}

	for _, ev := range d.Events {
		w.events = append(w.events, Event{
			At:       ev.At,
			Portal:   portals[ev.Portal],
			Action:   ev.Action,
			Duration: ev.Duration,
		})
	}
	sort.SliceStable(w.events, func(i, j int) bool { return w.events[i].At < w.events[j].At })

	w.log.Info("scene built",
		zap.Int("rooms", len(w.Rooms)),
		zap.Int("portals", len(w.Portals)),
		zap.Int("walls", len(w.Walls)),
		zap.Int("emitters", len(w.Sources)),
		zap.Int("events", len(w.events)))
	return w, nil
}

func (ed EmitterDesc) settings() (propagation.Settings, error) {
	s := propagation.DefaultSettings()
	s.MaxDistance = ed.MaxDistance
	if ed.MaxVolume != nil {
		s.MaxVolume = *ed.MaxVolume
	}
	curve, err := falloff(ed.Falloff)
	if err != nil {
		return s, err
	}
	s.Falloff = curve
	if ed.ObstructionMask != 0 {
		s.ObstructionMask = occlusion.LayerMask(ed.ObstructionMask)
	}
	s.Directivity = ed.Directivity
	s.Dynamic = ed.Dynamic
	return s, nil
}

// Emitters returns the scene's emitters.
func (w *World) Emitters() []*propagation.Emitter {
	out := make([]*propagation.Emitter, len(w.Sources))
	for i, s := range w.Sources {
		out[i] = s.Emitter
	}
	return out
}

// Pending returns the number of events not yet fired.
func (w *World) Pending() int {
	return len(w.events) - w.next
}

// Advance fires due events, steps portal transitions and moves the listener
// along its route to where it is at now.
func (w *World) Advance(now time.Duration) {
	for w.next < len(w.events) && w.events[w.next].At <= now {
		ev := w.events[w.next]
		w.next++
		switch ev.Action {
		case ActionOpen:
			ev.Portal.Open(ev.At, ev.Duration)
		case ActionClose:
			ev.Portal.Close(ev.At, ev.Duration)
		case ActionToggle:
			ev.Portal.Toggle(ev.At, ev.Duration)
		}
		w.log.Debug("portal event",
			zap.String("portal", ev.Portal.Name),
			zap.String("action", string(ev.Action)),
			zap.Duration("at", ev.At))
	}
	for _, p := range w.Portals {
		p.Advance(now)
	}

	if len(w.route) > 0 {
		w.Listener.SetPosition(w.RoutePosition(now))
	}
}

// RoutePosition returns where the listener is on its route at now. The
// listener stops at the last point.
func (w *World) RoutePosition(now time.Duration) math.Vec3 {
	if len(w.route) == 0 {
		return w.Listener.Position()
	}
	remaining := w.speed * float32(now.Seconds())
	for i := 0; i+1 < len(w.route); i++ {
		a, b := w.route[i], w.route[i+1]
		seg := a.Distance(b)
		if remaining <= seg {
			if seg == 0 {
				return a
			}
			return a.Lerp(b, remaining/seg)
		}
		remaining -= seg
	}
	return w.route[len(w.route)-1]
}
