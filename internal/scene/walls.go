package scene

import (
	"github.com/Faultbox/roomtone/internal/occlusion"
	"github.com/Faultbox/roomtone/pkg/math"
)

// Wall is a box of obstruction geometry on one layer.
type Wall struct {
	Box     math.AABB
	Layer   uint8
	Trigger bool
}

// Walls is a brute-force line-of-sight backend.
type Walls []Wall

// LineObstructed reports whether any non-trigger wall on a layer in mask
// crosses the segment.
func (ws Walls) LineObstructed(start, end math.Vec3, mask occlusion.LayerMask) bool {
	for _, w := range ws {
		if w.Trigger || mask&(1<<w.Layer) == 0 {
			continue
		}
		if w.Box.IntersectsSegment(start, end) {
			return true
		}
	}
	return false
}
