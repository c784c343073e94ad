package opencl

import (
	"fmt"
	"time"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

// Name of the structure check kernel in CL/lightbvh_check.cl.
const checkKernelName = "checkLightBVH"

// Node error codes reported by the check kernel.
var checkErrorNames = map[int32]string{
	1: "leaf holds too many or too few triangles",
	2: "leaf triangle range is out of bounds",
	3: "leaf references an unknown triangle",
	4: "child index does not follow its parent",
	5: "child index is out of bounds",
}

// The outcome of running the structure check kernel over an uploaded tree.
type CheckResult struct {
	NodeCount int

	// Sum of the leaf weights as seen by the device.
	LeafFlux float32

	// Error descriptions keyed by node index.
	NodeErrors map[int]string

	KernelTime time.Duration
}

// Run the structure check kernel against a tree bound under member. The
// device program must have been built from CL/lightbvh_check.cl.
func CheckLightBVH(dev *Device, binding *Binding, member string) (*CheckResult, error) {
	nodes, hasNodes := binding.Buffer(member + ".nodes")
	triangleIndices, hasIndices := binding.Buffer(member + ".triangleIndices")
	nodeCount, hasNodeCount := binding.Uint(member + ".nodeCount")
	triangleCount, hasTriCount := binding.Uint(member + ".triangleCount")
	if !hasNodes || !hasIndices || !hasNodeCount || !hasTriCount {
		return nil, fmt.Errorf("opencl: no light BVH bound under member %q", member)
	}

	leafFlux := make([]float32, nodeCount)
	nodeErrors := make([]int32, nodeCount)

	leafFluxBuf := dev.Buffer("leafFlux")
	defer leafFluxBuf.Release()
	if err := leafFluxBuf.AllocateAndWriteData(leafFlux, cl.MEM_WRITE_ONLY); err != nil {
		return nil, err
	}
	nodeErrorsBuf := dev.Buffer("nodeErrors")
	defer nodeErrorsBuf.Release()
	if err := nodeErrorsBuf.AllocateAndWriteData(nodeErrors, cl.MEM_WRITE_ONLY); err != nil {
		return nil, err
	}

	kernel, err := dev.Kernel(checkKernelName)
	if err != nil {
		return nil, err
	}
	defer kernel.Release()

	if err = kernel.SetArgs(nodes, triangleIndices, nodeCount, triangleCount, leafFluxBuf, nodeErrorsBuf); err != nil {
		return nil, err
	}
	elapsed, err := kernel.Exec1D(int(nodeCount))
	if err != nil {
		return nil, err
	}

	if err = leafFluxBuf.ReadData(leafFlux); err != nil {
		return nil, err
	}
	if err = nodeErrorsBuf.ReadData(nodeErrors); err != nil {
		return nil, err
	}

	res := &CheckResult{
		NodeCount:  int(nodeCount),
		NodeErrors: make(map[int]string),
		KernelTime: elapsed,
	}
	for nodeIndex, flux := range leafFlux {
		res.LeafFlux += flux
		if code := nodeErrors[nodeIndex]; code != 0 {
			desc, ok := checkErrorNames[code]
			if !ok {
				desc = fmt.Sprintf("unknown error %d", code)
			}
			res.NodeErrors[nodeIndex] = desc
		}
	}
	return res, nil
}
