package lightbvh

import (
	"math"

	"github.com/achilleasa/lightbvh/types"
	"github.com/go-gl/mathgl/mgl32"
)

// A cone of directions around Axis with half-angle acos(CosTheta).
type Cone struct {
	Axis     types.Vec3
	CosTheta float32
}

// A cone that contains every direction.
func UnboundedCone() Cone {
	return Cone{Axis: types.Vec3{0, 0, 1}, CosTheta: -1}
}

// A zero-width cone around a single direction.
func DirectionCone(dir types.Vec3) Cone {
	return Cone{Axis: dir.Normalize(), CosTheta: 1}
}

// Returns true if the cone contains every direction.
func (c Cone) IsUnbounded() bool {
	return c.CosTheta <= -1
}

// Half-angle in radians.
func (c Cone) Angle() float32 {
	return float32(math.Acos(float64(clamp(c.CosTheta, -1, 1))))
}

// Returns true if dir lies within the cone, allowing for a small angular
// tolerance (cosine units).
func (c Cone) Contains(dir types.Vec3, tolerance float32) bool {
	if c.IsUnbounded() {
		return true
	}
	return c.Axis.Dot(dir.Normalize()) >= c.CosTheta-tolerance
}

// Returns true if every direction of other lies within the cone, allowing for
// a small angular tolerance (radians).
func (c Cone) ContainsCone(other Cone, tolerance float32) bool {
	if c.IsUnbounded() {
		return true
	}
	if other.IsUnbounded() {
		return false
	}
	axisAngle := angleBetween(c.Axis, other.Axis.Normalize())
	return axisAngle+float64(other.Angle()) <= float64(c.Angle()+tolerance)
}

// Compute the smallest cone (among those sharing the plane of the two axes)
// that contains both a and b. Merging is not associative; callers that need
// reproducible bounds must merge in a fixed order.
func MergeCones(a, b Cone) Cone {
	if a.IsUnbounded() || b.IsUnbounded() {
		return UnboundedCone()
	}

	thetaA := float64(a.Angle())
	thetaB := float64(b.Angle())
	thetaD := math.Acos(float64(clamp(a.Axis.Dot(b.Axis), -1, 1)))

	// One cone already contains the other
	if math.Min(thetaD+thetaB, math.Pi) <= thetaA {
		return a
	}
	if math.Min(thetaD+thetaA, math.Pi) <= thetaB {
		return b
	}

	thetaO := (thetaA + thetaD + thetaB) * 0.5
	if thetaO >= math.Pi {
		return UnboundedCone()
	}

	// Rotate a's axis towards b's axis so that the new cone touches the far
	// edges of both inputs.
	rotAxis := mgl32.Vec3(a.Axis).Cross(mgl32.Vec3(b.Axis))
	if rotAxis.Len() < 1e-6 {
		// Axes are (anti-)parallel; any perpendicular works.
		rotAxis = perpendicular(mgl32.Vec3(a.Axis))
	}
	rot := mgl32.QuatRotate(float32(thetaO-thetaA), rotAxis.Normalize())
	axis := types.Vec3(rot.Rotate(mgl32.Vec3(a.Axis)).Normalize())

	return Cone{Axis: axis, CosTheta: float32(math.Cos(thetaO))}
}

func perpendicular(v mgl32.Vec3) mgl32.Vec3 {
	if math.Abs(float64(v.X())) < 0.9 {
		return v.Cross(mgl32.Vec3{1, 0, 0})
	}
	return v.Cross(mgl32.Vec3{0, 1, 0})
}

// Orientation cost of a normal cone for diffuse emitters. Tight cones cost
// less; a single direction costs π and the full sphere 4π.
func orientationCost(c Cone) float32 {
	thetaO := float64(c.Angle())
	thetaE := math.Pi / 2
	thetaW := math.Min(thetaO+thetaE, math.Pi)
	sinO, cosO := math.Sin(thetaO), math.Cos(thetaO)

	cost := 2*math.Pi*(1-cosO) +
		math.Pi/2*(2*thetaW*sinO-math.Cos(thetaO-2*thetaW)-2*thetaO*sinO+cosO)
	return float32(cost)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
