package math

import "github.com/chewxy/math32"

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min Vec3
	Max Vec3
}

// NewAABB creates an AABB from two corners, handling swapped components.
func NewAABB(a, b Vec3) AABB {
	return AABB{
		Min: Vec3{math32.Min(a.X, b.X), math32.Min(a.Y, b.Y), math32.Min(a.Z, b.Z)},
		Max: Vec3{math32.Max(a.X, b.X), math32.Max(a.Y, b.Y), math32.Max(a.Z, b.Z)},
	}
}

// BoxAt creates an AABB centred on center with the given full extents.
func BoxAt(center, size Vec3) AABB {
	half := size.Scale(0.5)
	return NewAABB(center.Sub(half), center.Add(half))
}

// Center returns the box centre.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the full extents.
func (b AABB) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ClosestPoint returns the point on or in the box nearest to p.
func (b AABB) ClosestPoint(p Vec3) Vec3 {
	return Vec3{
		Clamp(p.X, b.Min.X, b.Max.X),
		Clamp(p.Y, b.Min.Y, b.Max.Y),
		Clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// IntersectsSegment reports whether the segment from start to end touches
// the box. Uses the slab method over the segment parameter t in [0, 1].
func (b AABB) IntersectsSegment(start, end Vec3) bool {
	dir := end.Sub(start)
	tmin, tmax := float32(0), float32(1)

	origin := [3]float32{start.X, start.Y, start.Z}
	delta := [3]float32{dir.X, dir.Y, dir.Z}
	lo := [3]float32{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float32{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if math32.Abs(delta[i]) < 1e-8 {
			// Parallel to this slab: must already be inside it
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return false
			}
			continue
		}
		inv := 1 / delta[i]
		t1 := (lo[i] - origin[i]) * inv
		t2 := (hi[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}
