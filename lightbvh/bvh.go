package lightbvh

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/types"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

const (
	// Index of the root node in the node list.
	rootNodeIndex = 0

	// Tolerance used when checking flux conservation.
	fluxTolerance = 1e-3

	// Tolerance (cosine units) used when checking normal containment.
	coneTolerance = 1e-3

	// Tolerance (radians) used when checking that a cone contains the
	// cones of its children.
	coneAngleTolerance = 2e-3
)

// A LightBVH stores a binary tree over the emissive triangles of a light
// collection. Nodes are stored in pre-order so the root is at index 0 and every
// child has a larger index than its parent.
type LightBVH struct {
	nodes []Node

	// Permutation of the collection's triangle indices; leaves reference
	// contiguous ranges of this list.
	triangleIndices []uint32

	// Root-to-leaf path for each triangle (indexed by collection triangle
	// index). Bit d is set when the path takes the right child at depth d.
	triangleBitmasks []uint64

	mode BoundsMode

	// Topology signature recorded at build time.
	topologyGeneration uint64
	triangleCount      int

	maxDepth  int
	leafCount int
}

// Returns true if the tree contains at least one node with nonzero weight.
func (bvh *LightBVH) IsValid() bool {
	if bvh == nil || len(bvh.nodes) == 0 {
		return false
	}
	return bvh.mode.UniformWeights || bvh.nodes[rootNodeIndex].Flux > 0
}

// Get the number of nodes.
func (bvh *LightBVH) NodeCount() int {
	return len(bvh.nodes)
}

// Get the node list. Callers must not modify it.
func (bvh *LightBVH) Nodes() []Node {
	return bvh.nodes
}

// Get the triangle index permutation. Callers must not modify it.
func (bvh *LightBVH) TriangleIndices() []uint32 {
	return bvh.triangleIndices
}

// Get the per-triangle root-to-leaf paths. Callers must not modify them.
func (bvh *LightBVH) TriangleBitmasks() []uint64 {
	return bvh.triangleBitmasks
}

// Get the root node index.
func (bvh *LightBVH) RootIndex() uint32 {
	return rootNodeIndex
}

// Get the bounds mode the tree was built with.
func (bvh *LightBVH) BoundsMode() BoundsMode {
	return bvh.mode
}

// Get the depth of the deepest leaf (the root is at depth 0).
func (bvh *LightBVH) MaxDepth() int {
	return bvh.maxDepth
}

// Get the number of leaves.
func (bvh *LightBVH) LeafCount() int {
	return bvh.leafCount
}

// Recompute bounds and flux from the current triangle data without changing
// the tree topology. The collection must still hold the same triangles (in
// the same order) the tree was built from.
func (bvh *LightBVH) Refit(lights light.Collection) error {
	tris := lights.ActiveTriangles()
	if len(tris) != bvh.triangleCount || lights.TopologyGeneration() != bvh.topologyGeneration {
		if debugAssertions {
			panic(fmt.Sprintf(
				"lightbvh: refit on incompatible topology (tree: %d triangles, gen %d; collection: %d triangles, gen %d)",
				bvh.triangleCount, bvh.topologyGeneration, len(tris), lights.TopologyGeneration(),
			))
		}
		return ErrIncompatibleTopology
	}
	if err := checkTriangles(tris); err != nil {
		return err
	}

	// Children always follow their parents so a reverse scan visits
	// them first.
	for nodeIndex := len(bvh.nodes) - 1; nodeIndex >= 0; nodeIndex-- {
		node := &bvh.nodes[nodeIndex]
		if node.IsLeaf() {
			first, count := node.Triangles()
			fitLeaf(node, tris, bvh.triangleIndices[first:first+count], bvh.mode)
			continue
		}
		left, right := node.ChildNodes()
		fitInternal(node, &bvh.nodes[left], &bvh.nodes[right], bvh.mode)
	}
	return nil
}

// Export the tree to a GPU parameter surface.
func (bvh *LightBVH) SetShaderData(v gpu.ShaderVar) error {
	if !bvh.IsValid() {
		return ErrInvalidBVH
	}

	if err := v.Member("nodes").SetBuffer(bvh.nodes); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind nodes")
	}
	if err := v.Member("triangleIndices").SetBuffer(bvh.triangleIndices); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind triangle indices")
	}
	if err := v.Member("triangleBitmasks").SetBuffer(bvh.triangleBitmasks); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind triangle bitmasks")
	}
	if err := v.Member("nodeCount").SetUint(uint32(len(bvh.nodes))); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind node count")
	}
	if err := v.Member("triangleCount").SetUint(uint32(len(bvh.triangleIndices))); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind triangle count")
	}
	if err := v.Member("rootIndex").SetUint(rootNodeIndex); err != nil {
		return errors.Wrap(err, "lightbvh: could not bind root index")
	}
	return nil
}

// Check the tree against the collection it was built from. Validate verifies
// that the permutation partitions the triangle set, that leaves respect
// maxTrianglesPerLeaf, that node bounds contain their subtree and that node
// weights add up.
func (bvh *LightBVH) Validate(lights light.Collection, maxTrianglesPerLeaf int) error {
	tris := lights.ActiveTriangles()
	if len(tris) != bvh.triangleCount {
		return errors.Errorf("lightbvh: tree has %d triangles; collection has %d", bvh.triangleCount, len(tris))
	}
	if len(bvh.nodes) == 0 {
		if len(tris) != 0 {
			return errors.New("lightbvh: empty tree for non-empty collection")
		}
		return nil
	}

	seen := make([]bool, len(tris))
	for _, triIndex := range bvh.triangleIndices {
		if int(triIndex) >= len(tris) {
			return errors.Errorf("lightbvh: triangle index %d out of range", triIndex)
		}
		if seen[triIndex] {
			return errors.Errorf("lightbvh: triangle %d referenced more than once", triIndex)
		}
		seen[triIndex] = true
	}
	if len(bvh.triangleIndices) != len(tris) {
		return errors.Errorf("lightbvh: permutation holds %d of %d triangles", len(bvh.triangleIndices), len(tris))
	}

	_, err := bvh.validateNode(rootNodeIndex, 0, 0, tris, maxTrianglesPerLeaf)
	return err
}

func (bvh *LightBVH) validateNode(nodeIndex uint32, depth int, path uint64, tris []light.Triangle, maxTrianglesPerLeaf int) (uint32, error) {
	if int(nodeIndex) >= len(bvh.nodes) {
		return 0, errors.Errorf("lightbvh: node index %d out of range", nodeIndex)
	}
	node := &bvh.nodes[nodeIndex]
	bbox := node.BBox()
	cone := node.Cone()

	if node.IsLeaf() {
		first, count := node.Triangles()
		if count < 1 || int(count) > maxTrianglesPerLeaf {
			return 0, errors.Errorf("lightbvh: leaf %d holds %d triangles", nodeIndex, count)
		}
		if int(first+count) > len(bvh.triangleIndices) {
			return 0, errors.Errorf("lightbvh: leaf %d range [%d, %d) out of bounds", nodeIndex, first, first+count)
		}

		var flux float64
		for _, triIndex := range bvh.triangleIndices[first : first+count] {
			tri := &tris[triIndex]
			if !bbox.Contains(tri.BBox()) {
				return 0, errors.Errorf("lightbvh: leaf %d does not contain triangle %d", nodeIndex, triIndex)
			}
			if bvh.mode.ComputeCones && tri.Normal.LenSq() > 0 && !cone.Contains(tri.Normal, coneTolerance) {
				return 0, errors.Errorf("lightbvh: leaf %d cone does not contain normal of triangle %d", nodeIndex, triIndex)
			}
			if bvh.triangleBitmasks[triIndex] != path {
				return 0, errors.Errorf("lightbvh: triangle %d path %x does not match leaf path %x", triIndex, bvh.triangleBitmasks[triIndex], path)
			}
			flux += float64(tri.Flux)
		}
		if !bvh.mode.UniformWeights && !fluxEqual(node.Flux, float32(flux)) {
			return 0, errors.Errorf("lightbvh: leaf %d flux %f does not match triangle flux %f", nodeIndex, node.Flux, flux)
		}
		if node.TriangleCount != count {
			return 0, errors.Errorf("lightbvh: leaf %d reports %d triangles; holds %d", nodeIndex, node.TriangleCount, count)
		}
		return count, nil
	}

	left, right := node.ChildNodes()
	if left <= nodeIndex || right <= nodeIndex {
		return 0, errors.Errorf("lightbvh: node %d children (%d, %d) are not stored after their parent", nodeIndex, left, right)
	}
	for _, child := range []uint32{left, right} {
		childNode := &bvh.nodes[child]
		if !bbox.Contains(childNode.BBox()) {
			return 0, errors.Errorf("lightbvh: node %d does not contain child %d", nodeIndex, child)
		}
		if bvh.mode.ComputeCones && !cone.ContainsCone(childNode.Cone(), coneAngleTolerance) {
			return 0, errors.Errorf("lightbvh: node %d cone does not contain the cone of child %d", nodeIndex, child)
		}
	}

	lCount, err := bvh.validateNode(left, depth+1, path, tris, maxTrianglesPerLeaf)
	if err != nil {
		return 0, err
	}
	rCount, err := bvh.validateNode(right, depth+1, path|(1<<uint(depth)), tris, maxTrianglesPerLeaf)
	if err != nil {
		return 0, err
	}

	if !fluxEqual(node.Flux, bvh.nodes[left].Flux+bvh.nodes[right].Flux) {
		return 0, errors.Errorf("lightbvh: node %d flux %f does not match children", nodeIndex, node.Flux)
	}
	if node.TriangleCount != lCount+rCount {
		return 0, errors.Errorf("lightbvh: node %d reports %d triangles; subtree holds %d", nodeIndex, node.TriangleCount, lCount+rCount)
	}
	return lCount + rCount, nil
}

// Get a table with tree statistics.
func (bvh *LightBVH) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Property", "Value", "Size"})
	table.Append([]string{"Triangles", fmt.Sprint(len(bvh.triangleIndices)), fmtSize(bvh.triangleIndices)})
	table.Append([]string{"Nodes", fmt.Sprint(len(bvh.nodes)), fmtSize(bvh.nodes)})
	table.Append([]string{"Leaves", fmt.Sprint(bvh.leafCount), " "})
	table.Append([]string{"Max depth", fmt.Sprint(bvh.maxDepth), " "})
	table.Append([]string{"Bitmasks", fmt.Sprint(len(bvh.triangleBitmasks)), fmtSize(bvh.triangleBitmasks)})
	if len(bvh.nodes) != 0 {
		root := bvh.nodes[rootNodeIndex]
		table.Append([]string{"Root flux", fmt.Sprintf("%.3f", root.Flux), " "})
		table.Append([]string{"Root cone angle", fmt.Sprintf("%.1f deg", root.ConeAngle()*180/math.Pi), " "})
	}
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(bvh.nodes, bvh.triangleIndices, bvh.triangleBitmasks), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}

// Recompute leaf bounds from its triangles. Triangles are visited in
// permutation order so repeated fits produce identical results.
func fitLeaf(node *Node, tris []light.Triangle, indices []uint32, mode BoundsMode) {
	bbox := types.EmptyBBox()
	cone := UnboundedCone()
	var flux float32
	for idx, triIndex := range indices {
		tri := &tris[triIndex]
		bbox = bbox.Union(tri.BBox())
		flux += tri.Flux

		if mode.ComputeCones {
			if idx == 0 {
				cone = triangleCone(tri)
			} else {
				cone = MergeCones(cone, triangleCone(tri))
			}
		}
	}
	if mode.UniformWeights {
		flux = float32(len(indices))
	}

	node.SetBBox(bbox)
	node.SetCone(cone)
	node.Flux = flux
	node.TriangleCount = uint32(len(indices))
}

// Recompute internal node bounds from its children.
func fitInternal(node, left, right *Node, mode BoundsMode) {
	node.SetBBox(left.BBox().Union(right.BBox()))
	if mode.ComputeCones {
		node.SetCone(MergeCones(left.Cone(), right.Cone()))
	} else {
		node.SetCone(UnboundedCone())
	}
	node.Flux = left.Flux + right.Flux
	node.TriangleCount = left.TriangleCount + right.TriangleCount
}

func triangleCone(tri *light.Triangle) Cone {
	if tri.Normal.LenSq() == 0 {
		return UnboundedCone()
	}
	return DirectionCone(tri.Normal)
}

// Reject triangles the tree cannot bound.
func checkTriangles(tris []light.Triangle) error {
	for idx := range tris {
		tri := &tris[idx]
		for _, v := range tri.Vertices {
			if !v.IsFinite() {
				return errors.Errorf("lightbvh: triangle %d has non-finite vertices", idx)
			}
		}
		if math.IsNaN(float64(tri.Flux)) || math.IsInf(float64(tri.Flux), 0) || tri.Flux < 0 {
			return errors.Errorf("lightbvh: triangle %d has invalid flux %f", idx, tri.Flux)
		}
	}
	return nil
}

func fluxEqual(a, b float32) bool {
	diff := math.Abs(float64(a - b))
	return diff <= fluxTolerance*math.Max(1, math.Max(math.Abs(float64(a)), math.Abs(float64(b))))
}
