// Package scene loads YAML scene descriptions and builds the rooms, portals,
// obstruction geometry, listener and emitters they describe.
package scene

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/roomtone/internal/propagation"
	"github.com/Faultbox/roomtone/pkg/math"
)

// Vec is a point or extent written as [x, y, z].
type Vec [3]float32

// Vec3 converts to the math type.
func (v Vec) Vec3() math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Box is an axis-aligned box written by its corners.
type Box struct {
	Min Vec `yaml:"min"`
	Max Vec `yaml:"max"`
}

// AABB converts to the math type.
func (b Box) AABB() math.AABB {
	return math.NewAABB(b.Min.Vec3(), b.Max.Vec3())
}

// RoomDesc describes one room.
type RoomDesc struct {
	Name   string `yaml:"name"`
	Center *Vec   `yaml:"center,omitempty"` // defaults to the first box's centre
	Boxes  []Box  `yaml:"boxes"`
}

// PortalDesc describes an opening between two rooms.
type PortalDesc struct {
	Name            string   `yaml:"name"`
	Rooms           []string `yaml:"rooms"`
	Center          Vec      `yaml:"center"`
	Size            Vec      `yaml:"size"`
	BaseObstruction float32  `yaml:"base_obstruction"`
	Openness        float32  `yaml:"openness"`
}

// WallDesc describes a piece of obstruction geometry.
type WallDesc struct {
	Min     Vec   `yaml:"min"`
	Max     Vec   `yaml:"max"`
	Layer   uint8 `yaml:"layer"`   // 0..31
	Trigger bool  `yaml:"trigger"` // triggers never obstruct
}

// ListenerDesc places the listener and optionally walks it along a path.
type ListenerDesc struct {
	Position Vec     `yaml:"position"`
	Forward  Vec     `yaml:"forward"`
	Path     []Vec   `yaml:"path,omitempty"`
	Speed    float32 `yaml:"speed,omitempty"` // units per second along Path
}

// EmitterDesc describes one sound source.
type EmitterDesc struct {
	Name            string       `yaml:"name"`
	Position        Vec          `yaml:"position"`
	Forward         Vec          `yaml:"forward"`
	MaxDistance     float32      `yaml:"max_distance"`
	MaxVolume       *float32     `yaml:"max_volume,omitempty"` // defaults to 1
	Falloff         [][2]float32 `yaml:"falloff,omitempty"`    // [distance fraction, gain] keys
	ObstructionMask uint32       `yaml:"obstruction_mask"`     // 0 means every layer
	Directivity     bool         `yaml:"directivity"`
	Dynamic         bool         `yaml:"dynamic"`
	ToneHz          float64      `yaml:"tone_hz"`
}

// Action is what an event does to a portal.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionToggle Action = "toggle"
)

// EventDesc schedules a portal transition.
type EventDesc struct {
	At       time.Duration `yaml:"at"`
	Portal   string        `yaml:"portal"`
	Action   Action        `yaml:"action"`
	Duration time.Duration `yaml:"duration"`
}

// Description is a parsed scene file.
type Description struct {
	Rooms    []RoomDesc    `yaml:"rooms"`
	Portals  []PortalDesc  `yaml:"portals"`
	Walls    []WallDesc    `yaml:"walls"`
	Listener ListenerDesc  `yaml:"listener"`
	Emitters []EmitterDesc `yaml:"emitters"`
	Events   []EventDesc   `yaml:"events"`
}

// Load reads and parses a scene file.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scene %s", path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scene %s", path)
	}
	return d, nil
}

// Parse decodes a scene and validates it.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "decode scene")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate reports every problem in the description.
func (d *Description) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, errors.Errorf(format, args...))
	}

	rooms := make(map[string]bool, len(d.Rooms))
	for i, r := range d.Rooms {
		switch {
		case r.Name == "":
			add("room %d: missing name", i)
		case rooms[r.Name]:
			add("room %q: duplicate name", r.Name)
		}
		rooms[r.Name] = true
		if len(r.Boxes) == 0 {
			add("room %q: no boxes", r.Name)
		}
	}

	portals := make(map[string]bool, len(d.Portals))
	for i, p := range d.Portals {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if portals[p.Name] && p.Name != "" {
			add("portal %q: duplicate name", name)
		}
		portals[p.Name] = true
		if len(p.Rooms) != 2 {
			add("portal %s: needs exactly two rooms, got %d", name, len(p.Rooms))
		} else {
			for _, r := range p.Rooms {
				if !rooms[r] {
					add("portal %s: unknown room %q", name, r)
				}
			}
			if p.Rooms[0] == p.Rooms[1] {
				add("portal %s: connects %q to itself", name, p.Rooms[0])
			}
		}
		if p.BaseObstruction < 0 || p.BaseObstruction > 1 {
			add("portal %s: base_obstruction %v outside [0,1]", name, p.BaseObstruction)
		}
		if p.Openness < 0 || p.Openness > 1 {
			add("portal %s: openness %v outside [0,1]", name, p.Openness)
		}
	}

	for i, w := range d.Walls {
		if w.Layer > 31 {
			add("wall %d: layer %d above 31", i, w.Layer)
		}
	}

	if d.Listener.Speed < 0 {
		add("listener: negative speed %v", d.Listener.Speed)
	}

	for i, e := range d.Emitters {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if e.MaxDistance <= 0 {
			add("emitter %s: max_distance must be positive", name)
		}
		if e.MaxVolume != nil && *e.MaxVolume < 0 {
			add("emitter %s: negative max_volume", name)
		}
		if e.ToneHz < 0 {
			add("emitter %s: negative tone_hz", name)
		}
		if len(e.Falloff) > 0 {
			if _, ferr := falloff(e.Falloff); ferr != nil {
				err = multierr.Append(err, errors.Wrapf(ferr, "emitter %s", name))
			}
		}
	}

	for i, ev := range d.Events {
		if !portals[ev.Portal] || ev.Portal == "" {
			add("event %d: unknown portal %q", i, ev.Portal)
		}
		switch ev.Action {
		case ActionOpen, ActionClose, ActionToggle:
		default:
			add("event %d: unknown action %q", i, ev.Action)
		}
		if ev.At < 0 || ev.Duration < 0 {
			add("event %d: negative time", i)
		}
	}
	return err
}

func falloff(keys [][2]float32) (propagation.Curve, error) {
	if len(keys) == 0 {
		return propagation.LinearFalloff, nil
	}
	frames := make([]propagation.Keyframe, len(keys))
	for i, k := range keys {
		frames[i] = propagation.Keyframe{Time: k[0], Value: k[1]}
	}
	return propagation.NewKeyframeCurve(frames...)
}
