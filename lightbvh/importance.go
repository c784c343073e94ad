package lightbvh

import (
	"math"

	"github.com/achilleasa/lightbvh/types"
)

const (
	// Squared distances are clamped to this value to avoid blowing up the
	// importance of nodes that touch the shading point.
	minDistanceSq = 1e-6
)

// Estimate the importance of a node for shading point p with normal n. The
// estimate mirrors the node weighting performed by the sampling kernel for
// the given options. A zero normal disables the receiver cosine bound.
//
// The importance is zero only when no triangle in the node can illuminate p.
func NodeImportance(node *Node, p, n types.Vec3, opts Options) float32 {
	if node.Flux <= 0 {
		return 0
	}

	bbox := node.BBox()
	toCenter := bbox.Center().Sub(p)
	distSq := toCenter.LenSq()
	radius := bbox.BoundingSphereRadius()
	inside := distSq <= radius*radius

	var distTerm float32
	switch opts.SolidAngleBoundMethod {
	case BoxToCenter:
		distTerm = 1 / float32(math.Max(float64(distSq), minDistanceSq))
	case BoxToAverage:
		// Mean squared distance to the points of the box
		extent := bbox.Extent()
		distTerm = 1 / float32(math.Max(float64(distSq+extent.LenSq()/12), minDistanceSq))
	default:
		distTerm = sphereSolidAngle(distSq, radius)
	}

	// Angle subtended by the bounding sphere
	var thetaB float64
	if !inside {
		thetaB = math.Asin(math.Min(float64(radius)/math.Sqrt(float64(distSq)), 1))
	}

	cosTerm := float32(1)
	if opts.UseBoundingCone && !inside && n.LenSq() > 0 {
		thetaN := angleBetween(n.Normalize(), toCenter.Normalize())
		cosTerm = cosBound(thetaN - thetaB)
	}

	emitTerm := float32(1)
	if opts.UseLightingCone && !inside && !node.Cone().IsUnbounded() {
		// Direction from the node towards p
		thetaW := angleBetween(node.ConeAxis, toCenter.Mul(-1).Normalize())
		emitTerm = cosBound(thetaW - float64(node.ConeAngle()) - thetaB)
	}

	return node.Flux * distTerm * cosTerm * emitTerm
}

// Solid angle of a sphere as seen from a point at squared distance distSq from
// its center.
func sphereSolidAngle(distSq, radius float32) float32 {
	if distSq <= radius*radius {
		return 4 * math.Pi
	}
	sinThetaSq := float64(radius*radius) / float64(distSq)
	cosTheta := math.Sqrt(math.Max(0, 1-sinThetaSq))
	solidAngle := 2 * math.Pi * (1 - cosTheta)

	// Fall back to the small-angle approximation when the subtraction
	// above loses all precision.
	if solidAngle <= 0 {
		solidAngle = math.Pi * sinThetaSq
	}
	return float32(solidAngle)
}

// Cosine of the smallest angle that can remain after bounding; zero once the
// angle reaches the horizon.
func cosBound(angle float64) float32 {
	if angle <= 0 {
		return 1
	}
	if angle >= math.Pi/2 {
		return 0
	}
	return float32(math.Cos(angle))
}

func angleBetween(a, b types.Vec3) float64 {
	return math.Acos(float64(clamp(a.Dot(b), -1, 1)))
}
