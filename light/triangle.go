package light

import (
	"math"

	"github.com/achilleasa/lightbvh/types"
)

// Rec.709 luminance weights used to reduce RGB radiance to a scalar flux.
var luminanceWeights = types.Vec3{0.2126, 0.7152, 0.0722}

// An emissive triangle in world space.
type Triangle struct {
	Vertices [3]types.Vec3

	// Unit geometric normal. Emission happens on the front face.
	Normal types.Vec3

	Area float32

	// Radiant power emitted by the triangle.
	Flux float32
}

// Create a triangle from its world-space vertices and average emitted radiance.
// The normal follows the counter-clockwise winding of the vertices.
func NewTriangle(v0, v1, v2 types.Vec3, radiance types.Vec3) Triangle {
	cross := v1.Sub(v0).Cross(v2.Sub(v0))
	area := 0.5 * cross.Len()
	return Triangle{
		Vertices: [3]types.Vec3{v0, v1, v2},
		Normal:   cross.Normalize(),
		Area:     area,
		Flux:     Luminance(radiance) * area * math.Pi,
	}
}

// Get the triangle centroid.
func (t Triangle) Centroid() types.Vec3 {
	return t.Vertices[0].Add(t.Vertices[1]).Add(t.Vertices[2]).Mul(1.0 / 3.0)
}

// Get the triangle bounding box.
func (t Triangle) BBox() types.BBox {
	return types.BBoxFromPoints(t.Vertices[0], t.Vertices[1], t.Vertices[2])
}

// Calculate the luminance of a linear RGB color.
func Luminance(rgb types.Vec3) float32 {
	return rgb.Dot(luminanceWeights)
}
