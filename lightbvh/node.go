package lightbvh

import (
	"math"

	"github.com/achilleasa/lightbvh/types"
)

// Light BVH nodes are laid out for direct upload to the GPU (64 bytes, 16-byte
// aligned rows). LData and RData are multipurpose:
//
// - For internal nodes they are both > 0 and point to the L/R child nodes.
//   The root always lives at index 0 so a child index is never 0.
// - For leaves LData is <= 0 and holds the negated offset of the first
//   triangle in the triangle index list; RData > 0 holds the triangle count.
type Node struct {
	Min   types.Vec3
	LData int32

	Max   types.Vec3
	RData int32

	// Cone bounding the emitter normals below this node. A CosConeAngle
	// of -1 bounds all directions.
	ConeAxis     types.Vec3
	CosConeAngle float32

	// Aggregate flux, or the triangle count when node flux is disabled.
	Flux          float32
	TriangleCount uint32

	padding [2]uint32
}

// Which bounds and weights the tree maintains.
type BoundsMode struct {
	// Compute emitter normal cones. When false every node stores an
	// unbounded cone.
	ComputeCones bool

	// Weight nodes by triangle count instead of flux.
	UniformWeights bool
}

// Returns true if this is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.LData <= 0
}

// Set left and right child node indices.
func (n *Node) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Get left and right child node indices.
func (n *Node) ChildNodes() (left, right uint32) {
	return uint32(n.LData), uint32(n.RData)
}

// Set first triangle offset and count.
func (n *Node) SetTriangles(firstTriOffset, count uint32) {
	n.LData = -int32(firstTriOffset)
	n.RData = int32(count)
}

// Get first triangle offset and count.
func (n *Node) Triangles() (firstTriOffset, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// Set bounding box.
func (n *Node) SetBBox(bbox types.BBox) {
	n.Min = bbox.Min
	n.Max = bbox.Max
}

// Get bounding box.
func (n *Node) BBox() types.BBox {
	return types.BBox{Min: n.Min, Max: n.Max}
}

// Set normal bounding cone.
func (n *Node) SetCone(c Cone) {
	n.ConeAxis = c.Axis
	n.CosConeAngle = c.CosTheta
}

// Get normal bounding cone.
func (n *Node) Cone() Cone {
	return Cone{Axis: n.ConeAxis, CosTheta: n.CosConeAngle}
}

// Get the cone half-angle in radians.
func (n *Node) ConeAngle() float32 {
	return float32(math.Acos(float64(clamp(n.CosConeAngle, -1, 1))))
}
