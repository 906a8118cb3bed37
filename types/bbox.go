package types

import "math"

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

// An axis-aligned bounding box. The empty box has Min = +MaxFloat32 and
// Max = -MaxFloat32 so that merging it with any real box yields that box.
type BBox struct {
	Min Vec3
	Max Vec3
}

// Create an empty bounding box.
func EmptyBBox() BBox {
	return BBox{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Create the bounding box of a triangle.
func TriangleBBox(v0, v1, v2 Vec3) BBox {
	return BBox{
		Min: MinVec3(MinVec3(v0, v1), v2),
		Max: MaxVec3(MaxVec3(v0, v1), v2),
	}
}

// Return true if the box has Min > Max along any axis.
func (b BBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Merge two boxes.
func (b BBox) Merge(other BBox) BBox {
	return BBox{
		Min: MinVec3(b.Min, other.Min),
		Max: MaxVec3(b.Max, other.Max),
	}
}

// Extend box to include point p.
func (b BBox) Extend(p Vec3) BBox {
	return BBox{
		Min: MinVec3(b.Min, p),
		Max: MaxVec3(b.Max, p),
	}
}

// Check whether other lies inside b. The empty box is contained by every box.
func (b BBox) Contains(other BBox) bool {
	if other.IsEmpty() {
		return true
	}
	for axis := 0; axis < 3; axis++ {
		if other.Min[axis] < b.Min[axis] || other.Max[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}

// Get box center.
func (b BBox) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get box extents.
func (b BBox) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// Get the axis with the largest extent. Ties resolve towards the lowest axis
// index as the comparisons are strict.
func (b BBox) LargestAxis() Axis {
	ext := b.Extent()
	axis := XAxis
	if ext[1] > ext[axis] {
		axis = YAxis
	}
	if ext[2] > ext[axis] {
		axis = ZAxis
	}
	return axis
}
