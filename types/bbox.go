package types

import "math"

// An axis-aligned bounding box. The zero value is not empty; use EmptyBBox
// to get a box that can be grown with Extend/Union.
type BBox struct {
	Min Vec3
	Max Vec3
}

// Create an empty (inverted) bounding box.
func EmptyBBox() BBox {
	return BBox{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Create a bounding box that encloses the given points.
func BBoxFromPoints(points ...Vec3) BBox {
	b := EmptyBBox()
	for _, p := range points {
		b = b.Extend(p)
	}
	return b
}

// Returns true if the box does not enclose any point.
func (b BBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Grow box to include point p.
func (b BBox) Extend(p Vec3) BBox {
	return BBox{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Grow box to include another box.
func (b BBox) Union(o BBox) BBox {
	return BBox{Min: MinVec3(b.Min, o.Min), Max: MaxVec3(b.Max, o.Max)}
}

// Get box center.
func (b BBox) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get box extent along each axis. Empty boxes have zero extent.
func (b BBox) Extent() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Calculate the box surface area. Flat boxes still report the area of
// their non-degenerate faces.
func (b BBox) SurfaceArea() float32 {
	side := b.Extent()
	return 2 * (side[0]*side[1] + side[1]*side[2] + side[0]*side[2])
}

// Calculate the radius of the sphere centered at the box center that encloses it.
func (b BBox) BoundingSphereRadius() float32 {
	return b.Extent().Len() * 0.5
}

// Returns true if o is fully contained in b.
func (b BBox) Contains(o BBox) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Returns true if p lies inside or on the boundary of b.
func (b BBox) ContainsPoint(p Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}
