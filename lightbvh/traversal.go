package lightbvh

import (
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/types"
)

// Largest float32 below 1.
const oneMinusEpsilon float32 = 0x1.fffffep-1

// Select a triangle for shading point p with normal n using a single uniform
// random number u in [0, 1). The tree is descended stochastically, choosing
// each child in proportion to its importance; u is rescaled at every step so
// it can be reused by the leaf. tris must be the triangle list the tree was
// built (or last refit) from.
//
// Returns the index of the selected triangle and the probability of selecting
// it. ok is false if the descent reaches a node whose children both have zero
// importance. Such misses are possible even when the root has nonzero
// importance since the bounds of deeper nodes are tighter, so the
// probabilities over all triangles sum to at most 1. Every triangle that can
// illuminate p still has a nonzero probability.
func SampleTriangle(bvh *LightBVH, tris []light.Triangle, p, n types.Vec3, u float32, opts Options) (triIndex uint32, pdf float32, ok bool) {
	if !bvh.IsValid() {
		return 0, 0, false
	}

	u = clamp(u, 0, oneMinusEpsilon)
	pdf = 1
	node := &bvh.nodes[rootNodeIndex]
	for !node.IsLeaf() {
		left, right := node.ChildNodes()
		pLeft, pRight, valid := childProbability(&bvh.nodes[left], &bvh.nodes[right], p, n, opts)
		if !valid {
			return 0, 0, false
		}

		if u < pLeft || pRight == 0 {
			u = clamp(u/pLeft, 0, oneMinusEpsilon)
			pdf *= pLeft
			node = &bvh.nodes[left]
		} else {
			u = clamp((u-pLeft)/pRight, 0, oneMinusEpsilon)
			pdf *= pRight
			node = &bvh.nodes[right]
		}
	}

	first, count := node.Triangles()
	leafTris := bvh.triangleIndices[first : first+count]

	totalFlux := leafFlux(tris, leafTris)
	if opts.UseUniformTriangleSampling || totalFlux <= 0 {
		pick := uint32(u * float32(count))
		if pick >= count {
			pick = count - 1
		}
		return leafTris[pick], pdf / float32(count), true
	}

	target := u * totalFlux
	var cumulative float32
	for idx, candidate := range leafTris {
		flux := tris[candidate].Flux
		cumulative += flux
		if target < cumulative || idx == len(leafTris)-1 {
			if flux <= 0 {
				break
			}
			return candidate, pdf * flux / totalFlux, true
		}
	}

	// Rounding pushed us past the last triangle with nonzero flux.
	for idx := len(leafTris) - 1; idx >= 0; idx-- {
		if flux := tris[leafTris[idx]].Flux; flux > 0 {
			return leafTris[idx], pdf * flux / totalFlux, true
		}
	}
	return 0, 0, false
}

// Evaluate the probability that SampleTriangle selects triIndex for shading
// point p with normal n.
func TrianglePDF(bvh *LightBVH, tris []light.Triangle, triIndex uint32, p, n types.Vec3, opts Options) float32 {
	if !bvh.IsValid() || int(triIndex) >= len(bvh.triangleBitmasks) {
		return 0
	}

	path := bvh.triangleBitmasks[triIndex]
	var pdf float32 = 1
	node := &bvh.nodes[rootNodeIndex]
	for depth := uint(0); !node.IsLeaf(); depth++ {
		left, right := node.ChildNodes()
		pLeft, pRight, valid := childProbability(&bvh.nodes[left], &bvh.nodes[right], p, n, opts)
		if !valid {
			return 0
		}

		if path&(1<<depth) == 0 {
			pdf *= pLeft
			node = &bvh.nodes[left]
		} else {
			pdf *= pRight
			node = &bvh.nodes[right]
		}
	}

	first, count := node.Triangles()
	leafTris := bvh.triangleIndices[first : first+count]

	totalFlux := leafFlux(tris, leafTris)
	if opts.UseUniformTriangleSampling || totalFlux <= 0 {
		return pdf / float32(count)
	}
	return pdf * tris[triIndex].Flux / totalFlux
}

// Get the probabilities of descending into each child. Both are derived from
// the importances directly so a child with nonzero importance never gets a
// zero probability from rounding. valid is false if neither child can
// illuminate p.
func childProbability(left, right *Node, p, n types.Vec3, opts Options) (pLeft, pRight float32, valid bool) {
	impLeft := NodeImportance(left, p, n, opts)
	impRight := NodeImportance(right, p, n, opts)
	total := impLeft + impRight
	if !(total > 0) {
		return 0, 0, false
	}
	return impLeft / total, impRight / total, true
}

func leafFlux(tris []light.Triangle, leafTris []uint32) float32 {
	var total float32
	for _, triIndex := range leafTris {
		total += tris[triIndex].Flux
	}
	return total
}
