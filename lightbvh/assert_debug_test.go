//go:build lightbvh_debug

package lightbvh

import (
	"strings"
	"testing"

	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/types"
)

func expectPanic(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, contains) {
			t.Fatalf("expected panic message to contain %q; got %v", contains, r)
		}
	}()
	fn()
}

func TestRefitPanicsOnGenerationMismatch(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(20, 3), gen: 1}
	bvh := buildOrFail(t, DefaultBuildOptions(), lights, BoundsMode{ComputeCones: true})

	// Same triangles, newer generation
	lights.gen = 2
	expectPanic(t, "refit on incompatible topology", func() {
		_ = bvh.Refit(lights)
	})
}

func TestRefitPanicsOnTriangleCountMismatch(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(20, 3)}
	bvh := buildOrFail(t, DefaultBuildOptions(), lights, BoundsMode{})

	lights.tris = lights.tris[:10]
	expectPanic(t, "refit on incompatible topology", func() {
		_ = bvh.Refit(lights)
	})
}

func TestSamplerUpdatePanicsWhenEmittersAreAdded(t *testing.T) {
	lights := light.NewMeshCollection()
	lights.AddMesh(light.Mesh{Name: "panel", Triangles: lampGrid(2), Radiance: types.Vec3{1, 1, 1}})
	s := newSamplerOrFail(t, lights, DefaultOptions())
	updateOrFail(t, s, lights)

	lights.AddMesh(light.Mesh{Name: "bulb", Triangles: lampGrid(1), Radiance: types.Vec3{1, 1, 1}})
	expectPanic(t, "refit on incompatible topology", func() {
		_, _ = s.Update(lights)
	})
}

func TestSamplerWithoutRefittingRebuildsInDebugBuilds(t *testing.T) {
	lights := light.NewMeshCollection()
	lights.AddMesh(light.Mesh{Name: "panel", Triangles: lampGrid(2), Radiance: types.Vec3{1, 1, 1}})
	opts := DefaultOptions()
	opts.BuildOptions.AllowRefitting = false
	s := newSamplerOrFail(t, lights, opts)
	updateOrFail(t, s, lights)

	lights.AddMesh(light.Mesh{Name: "bulb", Triangles: lampGrid(1), Radiance: types.Vec3{1, 1, 1}})
	if !updateOrFail(t, s, lights) {
		t.Fatal("expected the tree to be rebuilt")
	}
	if exp := (SamplerStats{Builds: 2}); s.Stats() != exp {
		t.Fatalf("expected stats %+v; got %+v", exp, s.Stats())
	}
}
