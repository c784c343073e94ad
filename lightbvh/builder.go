package lightbvh

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/log"
	"github.com/achilleasa/lightbvh/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

const (
	// Past this depth the builder stops evaluating SAH splits and switches
	// to median splits. Median splits halve the triangle count so the tree
	// depth stays below 64 and every root-to-leaf path fits in a uint64.
	maxSAHDepth = 32

	// Nodes with fewer triangles are scored on the calling goroutine.
	parallelScoringThreshold = 1024
)

// A candidate split plane along an axis.
type splitScore struct {
	axis Axis

	// Bins [0, bin] go to the left child.
	bin  int
	cost float32
}

// Per-bin aggregate used by the split scoring code.
type splitBin struct {
	bbox  types.BBox
	cone  Cone
	flux  float32
	count int
}

// The Builder constructs light BVHs using a binned SAH that accounts for the
// flux and the spread of emitter normals inside each candidate child.
type Builder struct {
	logger log.Logger
	opts   BuildOptions
}

// Create a new builder. Fails if opts are not valid.
func NewBuilder(opts BuildOptions) (*Builder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		logger: log.New("light BVH builder"),
		opts:   opts,
	}, nil
}

// Get the builder options.
func (b *Builder) Options() BuildOptions {
	return b.opts
}

// Build a tree over the active triangles of the light collection. An empty
// collection yields an empty (invalid) tree and no error. Errors are only
// returned for triangles with non-finite positions or invalid flux.
func (b *Builder) Build(lights light.Collection, mode BoundsMode) (*LightBVH, error) {
	tris := lights.ActiveTriangles()
	if err := checkTriangles(tris); err != nil {
		return nil, err
	}

	bvh := &LightBVH{
		mode:               mode,
		topologyGeneration: lights.TopologyGeneration(),
		triangleCount:      len(tris),
	}
	if len(tris) == 0 {
		b.logger.Debug("light collection is empty; skipping BVH build")
		return bvh, nil
	}

	state := &buildState{
		opts:      b.opts,
		mode:      mode,
		tris:      tris,
		centroids: make([]types.Vec3, len(tris)),
		bboxes:    make([]types.BBox, len(tris)),
		indices:   make([]uint32, len(tris)),
		scratch:   make([]uint32, len(tris)),
		bitmasks:  make([]uint64, len(tris)),
		nodes:     make([]Node, 0, 2*len(tris)/b.opts.MaxTriangleCountPerLeaf+1),
	}

	var totalFlux float32
	for idx := range tris {
		state.centroids[idx] = tris[idx].Centroid()
		state.bboxes[idx] = tris[idx].BBox()
		state.indices[idx] = uint32(idx)
		totalFlux += tris[idx].Flux
	}
	state.countWeights = mode.UniformWeights || totalFlux <= 0

	start := time.Now()
	state.partition(0, len(tris), 0, 0)
	b.logger.Debugf(
		"light BVH build time: %d ms, triangles: %d, maxDepth: %d, nodes: %d, leaves: %d",
		time.Since(start).Nanoseconds()/1e6,
		len(tris), state.maxDepth, len(state.nodes), state.leafCount,
	)

	bvh.nodes = state.nodes
	bvh.triangleIndices = state.indices
	bvh.triangleBitmasks = state.bitmasks
	bvh.maxDepth = state.maxDepth
	bvh.leafCount = state.leafCount
	return bvh, nil
}

type buildState struct {
	opts BuildOptions
	mode BoundsMode

	tris      []light.Triangle
	centroids []types.Vec3
	bboxes    []types.BBox

	// Triangle permutation; partitioned in place.
	indices []uint32
	scratch []uint32

	bitmasks []uint64
	nodes    []Node

	// Weight candidate children by triangle count instead of flux.
	countWeights bool

	maxDepth  int
	leafCount int
}

// Partition indices[start:end] and return the index of the emitted node.
func (s *buildState) partition(start, end, depth int, path uint64) uint32 {
	nodeIndex := uint32(len(s.nodes))
	s.nodes = append(s.nodes, Node{})

	count := end - start
	if count <= s.opts.MaxTriangleCountPerLeaf {
		s.createLeaf(nodeIndex, start, end, depth, path)
		return nodeIndex
	}

	mid := s.split(start, end, depth)
	left := s.partition(start, mid, depth+1, path)
	right := s.partition(mid, end, depth+1, path|(1<<uint(depth)))

	// s.nodes may have been reallocated by the recursive calls
	node := &s.nodes[nodeIndex]
	node.SetChildNodes(left, right)
	fitInternal(node, &s.nodes[left], &s.nodes[right], s.mode)
	return nodeIndex
}

func (s *buildState) createLeaf(nodeIndex uint32, start, end, depth int, path uint64) {
	node := &s.nodes[nodeIndex]
	node.SetTriangles(uint32(start), uint32(end-start))
	fitLeaf(node, s.tris, s.indices[start:end], s.mode)

	for _, triIndex := range s.indices[start:end] {
		s.bitmasks[triIndex] = path
	}

	s.leafCount++
	if depth > s.maxDepth {
		s.maxDepth = depth
	}
}

// Reorder indices[start:end] into two non-empty groups and return the
// position of the first right-side entry.
func (s *buildState) split(start, end, depth int) int {
	centroidBounds := types.EmptyBBox()
	for _, triIndex := range s.indices[start:end] {
		centroidBounds = centroidBounds.Extend(s.centroids[triIndex])
	}

	if depth >= maxSAHDepth {
		return s.medianSplit(start, end, Axis(centroidBounds.Extent().MaxDimension()))
	}

	// When two leaves can hold every triangle only accept splits that
	// produce exactly two leaves.
	maxSideCount := end - start
	if end-start <= 2*s.opts.MaxTriangleCountPerLeaf {
		maxSideCount = s.opts.MaxTriangleCountPerLeaf
	}

	var scores [3]*splitScore
	if s.opts.ParallelSplitScoring && end-start >= parallelScoringThreshold {
		var wg sync.WaitGroup
		wg.Add(3)
		for axis := XAxis; axis <= ZAxis; axis++ {
			go func(axis Axis) {
				defer wg.Done()
				scores[axis] = s.scoreAxis(start, end, axis, centroidBounds, maxSideCount)
			}(axis)
		}
		wg.Wait()
	} else {
		for axis := XAxis; axis <= ZAxis; axis++ {
			scores[axis] = s.scoreAxis(start, end, axis, centroidBounds, maxSideCount)
		}
	}

	// Scan axes in order so ties always resolve the same way
	var best *splitScore
	for _, candidate := range scores {
		if candidate != nil && (best == nil || candidate.cost < best.cost) {
			best = candidate
		}
	}

	if best == nil {
		// All centroids coincide; fall back to splitting by index order.
		if centroidBounds.Extent().MaxComponent() <= 0 {
			return start + (end-start)/2
		}
		return s.medianSplit(start, end, Axis(centroidBounds.Extent().MaxDimension()))
	}

	return s.applySplit(start, end, best, centroidBounds)
}

// Evaluate all bin boundaries along axis and return the cheapest one or nil
// if no boundary produces two non-empty children holding at most
// maxSideCount triangles each.
func (s *buildState) scoreAxis(start, end int, axis Axis, centroidBounds types.BBox, maxSideCount int) *splitScore {
	extent := centroidBounds.Max[axis] - centroidBounds.Min[axis]
	if !(extent > 0) {
		return nil
	}

	binCount := s.opts.SplitBinCount
	bins := make([]splitBin, binCount)
	for idx := range bins {
		bins[idx].bbox = types.EmptyBBox()
	}

	for _, triIndex := range s.indices[start:end] {
		bin := &bins[binIndex(s.centroids[triIndex][axis], centroidBounds.Min[axis], extent, binCount)]
		tri := &s.tris[triIndex]

		bin.bbox = bin.bbox.Union(s.bboxes[triIndex])
		if s.mode.ComputeCones {
			if bin.count == 0 {
				bin.cone = triangleCone(tri)
			} else {
				bin.cone = MergeCones(bin.cone, triangleCone(tri))
			}
		}
		bin.flux += tri.Flux
		bin.count++
	}

	// Sweep from the right to collect the cost of each right-hand side
	rightCosts := make([]float32, binCount)
	var acc splitBin
	for idx := binCount - 1; idx > 0; idx-- {
		acc = s.accumulate(acc, bins[idx])
		rightCosts[idx] = s.childCost(acc)
	}

	var best *splitScore
	acc = splitBin{}
	remaining := end - start
	for idx := 0; idx < binCount-1; idx++ {
		acc = s.accumulate(acc, bins[idx])
		if acc.count == 0 || acc.count == remaining {
			continue
		}
		if acc.count > maxSideCount || remaining-acc.count > maxSideCount {
			continue
		}

		cost := s.childCost(acc) + rightCosts[idx+1]
		if math.IsNaN(float64(cost)) || math.IsInf(float64(cost), 0) {
			continue
		}
		if best == nil || cost < best.cost {
			best = &splitScore{axis: axis, bin: idx, cost: cost}
		}
	}
	return best
}

// Cost of a candidate child: weight * surface area * orientation cost.
func (s *buildState) childCost(b splitBin) float32 {
	if b.count == 0 {
		return 0
	}

	weight := b.flux
	if s.countWeights {
		weight = float32(b.count)
	}

	var orientation float32 = 1
	if s.mode.ComputeCones {
		orientation = orientationCost(b.cone)
	}
	return weight * b.bbox.SurfaceArea() * orientation
}

// Stable partition of indices[start:end] by the bin boundary of split.
func (s *buildState) applySplit(start, end int, split *splitScore, centroidBounds types.BBox) int {
	axis := split.axis
	extent := centroidBounds.Max[axis] - centroidBounds.Min[axis]

	scratch := s.scratch[start:end]
	lCount := 0
	for _, triIndex := range s.indices[start:end] {
		if binIndex(s.centroids[triIndex][axis], centroidBounds.Min[axis], extent, s.opts.SplitBinCount) <= split.bin {
			scratch[lCount] = triIndex
			lCount++
		}
	}
	rIndex := lCount
	for _, triIndex := range s.indices[start:end] {
		if binIndex(s.centroids[triIndex][axis], centroidBounds.Min[axis], extent, s.opts.SplitBinCount) > split.bin {
			scratch[rIndex] = triIndex
			rIndex++
		}
	}
	copy(s.indices[start:end], scratch)
	return start + lCount
}

// Sort indices[start:end] by centroid (ties broken by triangle index) and
// split at the median.
func (s *buildState) medianSplit(start, end int, axis Axis) int {
	work := s.indices[start:end]
	sort.SliceStable(work, func(i, j int) bool {
		ci, cj := s.centroids[work[i]][axis], s.centroids[work[j]][axis]
		if ci != cj {
			return ci < cj
		}
		return work[i] < work[j]
	})
	return start + (end-start)/2
}

func (s *buildState) accumulate(acc, b splitBin) splitBin {
	if b.count == 0 {
		return acc
	}
	if acc.count == 0 {
		return b
	}

	merged := splitBin{
		bbox:  acc.bbox.Union(b.bbox),
		flux:  acc.flux + b.flux,
		count: acc.count + b.count,
	}
	if s.mode.ComputeCones {
		merged.cone = MergeCones(acc.cone, b.cone)
	}
	return merged
}

func binIndex(value, min, extent float32, binCount int) int {
	bin := int(float32(binCount) * (value - min) / extent)
	if bin < 0 {
		return 0
	}
	if bin >= binCount {
		return binCount - 1
	}
	return bin
}
