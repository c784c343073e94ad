package lightbvh

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func lampGrid(cells int) [][3]types.Vec3 {
	var tris [][3]types.Vec3
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			origin := types.Vec3{float32(x), float32(y), 0}
			tris = append(tris,
				[3]types.Vec3{origin, origin.Add(types.Vec3{1, 0, 0}), origin.Add(types.Vec3{1, 1, 0})},
				[3]types.Vec3{origin, origin.Add(types.Vec3{1, 1, 0}), origin.Add(types.Vec3{0, 1, 0})},
			)
		}
	}
	return tris
}

func TestNodeLayout(t *testing.T) {
	if size := unsafe.Sizeof(Node{}); size != 64 {
		t.Fatalf("expected node size to be 64 bytes; got %d", size)
	}

	var n Node
	n.SetTriangles(0, 3)
	if !n.IsLeaf() {
		t.Fatal("expected node with triangle offset 0 to be a leaf")
	}
	n.SetTriangles(12, 3)
	if first, count := n.Triangles(); first != 12 || count != 3 {
		t.Fatalf("expected triangles [12, 15); got [%d, %d)", first, first+count)
	}
	n.SetChildNodes(1, 5)
	if n.IsLeaf() {
		t.Fatal("expected node with children to be internal")
	}
	if l, r := n.ChildNodes(); l != 1 || r != 5 {
		t.Fatalf("expected children (1, 5); got (%d, %d)", l, r)
	}
}

func TestRefitIsIdempotent(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(300, 11)}
	bvh := buildOrFail(t, DefaultBuildOptions(), lights, BoundsMode{ComputeCones: true})

	built := append([]Node(nil), bvh.Nodes()...)
	if err := bvh.Refit(lights); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(built, bvh.Nodes(), nodeCmpOpts); diff != "" {
		t.Fatalf("expected refit of unchanged data to reproduce the built nodes; diff (-built +refit):\n%s", diff)
	}

	refit := append([]Node(nil), bvh.Nodes()...)
	if err := bvh.Refit(lights); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(refit, bvh.Nodes(), nodeCmpOpts); diff != "" {
		t.Fatalf("expected repeated refits to be identical; diff (-first +second):\n%s", diff)
	}
}

func TestRefitTracksIntensityAndTransform(t *testing.T) {
	lights := light.NewMeshCollection()
	id := lights.AddMesh(light.Mesh{Name: "panel", Triangles: lampGrid(4), Radiance: types.Vec3{1, 1, 1}})

	opts := DefaultBuildOptions()
	opts.MaxTriangleCountPerLeaf = 2
	bvh := buildOrFail(t, opts, lights, BoundsMode{ComputeCones: true})
	topology := append([]uint32(nil), bvh.TriangleIndices()...)
	flux := bvh.Nodes()[0].Flux

	if err := lights.SetIntensity(id, 3); err != nil {
		t.Fatal(err)
	}
	if err := lights.SetTransform(id, mgl32.Translate3D(0, 0, 10)); err != nil {
		t.Fatal(err)
	}
	if err := bvh.Refit(lights); err != nil {
		t.Fatal(err)
	}

	root := bvh.Nodes()[0]
	if expFlux := 3 * flux; !fluxEqual(root.Flux, expFlux) {
		t.Fatalf("expected root flux %f after intensity change; got %f", expFlux, root.Flux)
	}
	if root.Min[2] != 10 || root.Max[2] != 10 {
		t.Fatalf("expected root bbox to move to z=10; got %v - %v", root.Min, root.Max)
	}
	if diff := cmp.Diff(topology, bvh.TriangleIndices()); diff != "" {
		t.Fatalf("expected refit to keep the triangle order; diff:\n%s", diff)
	}
	if err := bvh.Validate(lights, opts.MaxTriangleCountPerLeaf); err != nil {
		t.Fatal(err)
	}
}

func TestRefitIncompatibleTopology(t *testing.T) {
	if debugAssertions {
		t.Skip("refit on an incompatible tree panics in debug builds")
	}

	lights := light.NewMeshCollection()
	lights.AddMesh(light.Mesh{Name: "panel", Triangles: lampGrid(2), Radiance: types.Vec3{1, 1, 1}})
	bvh := buildOrFail(t, DefaultBuildOptions(), lights, BoundsMode{})

	lights.AddMesh(light.Mesh{Name: "bulb", Triangles: lampGrid(1), Radiance: types.Vec3{1, 0, 0}})
	if err := bvh.Refit(lights); errors.Cause(err) != ErrIncompatibleTopology {
		t.Fatalf("expected ErrIncompatibleTopology; got %v", err)
	}
}

func TestSetShaderData(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(40, 5)}
	opts := DefaultBuildOptions()
	opts.MaxTriangleCountPerLeaf = 4
	bvh := buildOrFail(t, opts, lights, BoundsMode{ComputeCones: true})

	pb := gpu.NewParameterBlock()
	if err := bvh.SetShaderData(pb.Member("bvh")); err != nil {
		t.Fatal(err)
	}

	expPaths := []string{
		"bvh.nodeCount",
		"bvh.nodes",
		"bvh.rootIndex",
		"bvh.triangleBitmasks",
		"bvh.triangleCount",
		"bvh.triangleIndices",
	}
	if diff := cmp.Diff(expPaths, pb.Paths()); diff != "" {
		t.Fatalf("unexpected bound paths; diff (-exp +got):\n%s", diff)
	}

	nodes, _ := pb.Buffer("bvh.nodes")
	if nodes.ElementSize != 64 || nodes.ElementCount != bvh.NodeCount() {
		t.Fatalf("expected %d 64-byte nodes; got %d %d-byte elements", bvh.NodeCount(), nodes.ElementCount, nodes.ElementSize)
	}
	if len(nodes.Data) != 64*bvh.NodeCount() {
		t.Fatalf("expected %d bytes of node data; got %d", 64*bvh.NodeCount(), len(nodes.Data))
	}
	if v, _ := pb.Uint("bvh.nodeCount"); int(v) != bvh.NodeCount() {
		t.Fatalf("expected nodeCount %d; got %d", bvh.NodeCount(), v)
	}
	if v, _ := pb.Uint("bvh.triangleCount"); v != 40 {
		t.Fatalf("expected triangleCount 40; got %d", v)
	}
	if v, ok := pb.Uint("bvh.rootIndex"); !ok || v != 0 {
		t.Fatalf("expected rootIndex 0; got %d", v)
	}
}

func TestSetShaderDataOnInvalidTree(t *testing.T) {
	bvh := buildOrFail(t, DefaultBuildOptions(), &testCollection{}, BoundsMode{})

	pb := gpu.NewParameterBlock()
	if err := bvh.SetShaderData(pb.Member("bvh")); err != ErrInvalidBVH {
		t.Fatalf("expected ErrInvalidBVH; got %v", err)
	}
	if len(pb.Paths()) != 0 {
		t.Fatalf("expected nothing to be bound; got %v", pb.Paths())
	}
}

func TestValidateDetectsLooseCones(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(40, 5)}
	opts := DefaultBuildOptions()
	opts.MaxTriangleCountPerLeaf = 4
	bvh := buildOrFail(t, opts, lights, BoundsMode{ComputeCones: true})
	if err := bvh.Validate(lights, opts.MaxTriangleCountPerLeaf); err != nil {
		t.Fatal(err)
	}

	// Shrink the root cone so it no longer bounds its children.
	bvh.nodes[rootNodeIndex].SetCone(DirectionCone(types.Vec3{0, 0, 1}))
	err := bvh.Validate(lights, opts.MaxTriangleCountPerLeaf)
	if err == nil || !strings.Contains(err.Error(), "cone does not contain the cone of child") {
		t.Fatalf("expected a cone containment error; got %v", err)
	}

	// Without cones the node cone is not checked.
	bvh = buildOrFail(t, opts, lights, BoundsMode{})
	bvh.nodes[rootNodeIndex].SetCone(DirectionCone(types.Vec3{0, 0, 1}))
	if err = bvh.Validate(lights, opts.MaxTriangleCountPerLeaf); err != nil {
		t.Fatalf("expected cone checks to be skipped without cones; got %v", err)
	}
}

func TestStats(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(20, 1)}
	bvh := buildOrFail(t, DefaultBuildOptions(), lights, BoundsMode{ComputeCones: true})

	stats := bvh.Stats()
	for _, exp := range []string{"Nodes", "Leaves", "Max depth", "Root flux", "Total"} {
		if !strings.Contains(stats, exp) {
			t.Fatalf("expected stats to contain %q; got:\n%s", exp, stats)
		}
	}
}
