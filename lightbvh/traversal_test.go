package lightbvh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/types"
)

// Upward facing triangles scattered over the z=0 plane.
func floorTriangles(count int, seed int64) []light.Triangle {
	rng := rand.New(rand.NewSource(seed))
	tris := make([]light.Triangle, count)
	for idx := range tris {
		origin := types.Vec3{rng.Float32() * 4, rng.Float32() * 4, 0}
		tris[idx] = makeTriangle(origin, 0.05+rng.Float32()*0.2, 0.5+rng.Float32()*5)
	}
	return tris
}

func TestTrianglePDFSumsToOne(t *testing.T) {
	lights := &testCollection{tris: floorTriangles(200, 99)}
	p := types.Vec3{1.3, 2.7, 5}
	n := types.Vec3{0, 0, -1}

	for method := BoxToAverage; method < numSolidAngleBoundMethods; method++ {
		for _, variant := range []struct {
			boundingCone, lightingCone, disableFlux, uniformTris bool
		}{
			{true, true, false, true},
			{false, false, false, false},
			{true, false, true, false},
			{false, true, true, true},
		} {
			opts := DefaultOptions()
			opts.SolidAngleBoundMethod = method
			opts.UseBoundingCone = variant.boundingCone
			opts.UseLightingCone = variant.lightingCone
			opts.DisableNodeFlux = variant.disableFlux
			opts.UseUniformTriangleSampling = variant.uniformTris
			opts.BuildOptions.MaxTriangleCountPerLeaf = 4

			bvh := buildOrFail(t, opts.BuildOptions, lights, opts.BoundsMode())

			var sum float64
			for triIndex := range lights.tris {
				sum += float64(TrianglePDF(bvh, lights.tris, uint32(triIndex), p, n, opts))
			}
			if math.Abs(sum-1) > 1e-3 {
				t.Fatalf("[%s %+v] expected pdf sum 1; got %f", method, variant, sum)
			}

			rng := rand.New(rand.NewSource(1))
			for i := 0; i < 100; i++ {
				triIndex, pdf, ok := SampleTriangle(bvh, lights.tris, p, n, rng.Float32(), opts)
				if !ok {
					t.Fatalf("[%s %+v] expected sampling to succeed", method, variant)
				}
				expPDF := TrianglePDF(bvh, lights.tris, triIndex, p, n, opts)
				if math.Abs(float64(pdf-expPDF)) > 1e-5*math.Max(1, float64(expPDF)) {
					t.Fatalf("[%s %+v] expected pdf %g for triangle %d; got %g", method, variant, expPDF, triIndex, pdf)
				}
			}
		}
	}
}

// Report whether the centroid of tri can illuminate p, leaving a small margin
// on either side of the horizons.
func canIlluminate(tri light.Triangle, p, n types.Vec3, opts Options) bool {
	const margin = 0.05
	if !(tri.Flux > 0) || tri.Normal.LenSq() < 0.5 {
		return false
	}

	toLight := tri.Centroid().Sub(p)
	dist := toLight.Len()
	if !(dist > 0) {
		return false
	}
	if opts.UseBoundingCone && n.Dot(toLight) <= margin*dist {
		return false
	}
	if opts.UseLightingCone && tri.Normal.Dot(toLight.Mul(-1)) <= margin*dist {
		return false
	}
	return true
}

func TestTrianglePDFOnRandomScenes(t *testing.T) {
	lights := &testCollection{tris: randomTriangles(400, 7)}
	rng := rand.New(rand.NewSource(13))
	randUnit := func() types.Vec3 {
		for {
			v := types.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
			if lenSq := v.LenSq(); lenSq > 0.01 && lenSq <= 1 {
				return v.Normalize()
			}
		}
	}

	for method := BoxToAverage; method < numSolidAngleBoundMethods; method++ {
		opts := DefaultOptions()
		opts.SolidAngleBoundMethod = method
		opts.BuildOptions.MaxTriangleCountPerLeaf = 2
		bvh := buildOrFail(t, opts.BuildOptions, lights, opts.BoundsMode())

		for i := 0; i < 100; i++ {
			p := types.Vec3{(rng.Float32()*2 - 1) * 15, (rng.Float32()*2 - 1) * 15, (rng.Float32()*2 - 1) * 15}
			n := randUnit()

			var sum float64
			for triIndex, tri := range lights.tris {
				pdf := TrianglePDF(bvh, lights.tris, uint32(triIndex), p, n, opts)
				if pdf < 0 {
					t.Fatalf("[%s] expected non-negative pdf for triangle %d; got %g", method, triIndex, pdf)
				}
				if canIlluminate(tri, p, n, opts) && !(pdf > 0) {
					t.Fatalf("[%s] expected triangle %d which illuminates p=%v n=%v to have a nonzero pdf", method, triIndex, p, n)
				}
				sum += float64(pdf)
			}
			if sum > 1+1e-3 {
				t.Fatalf("[%s] expected pdf sum <= 1 for p=%v n=%v; got %f", method, p, n, sum)
			}

			// Every successful sample must agree with TrianglePDF.
			for j := 0; j < 10; j++ {
				triIndex, pdf, ok := SampleTriangle(bvh, lights.tris, p, n, rng.Float32(), opts)
				if !ok {
					continue
				}
				if !(pdf > 0) {
					t.Fatalf("[%s] expected positive pdf for sampled triangle %d; got %g", method, triIndex, pdf)
				}
				expPDF := TrianglePDF(bvh, lights.tris, triIndex, p, n, opts)
				if math.Abs(float64(pdf-expPDF)) > 1e-4*math.Max(1, float64(expPDF)) {
					t.Fatalf("[%s] expected pdf %g for triangle %d; got %g", method, expPDF, triIndex, pdf)
				}
			}
		}
	}
}

func TestSampleTriangleBoundaryValues(t *testing.T) {
	lights := &testCollection{tris: floorTriangles(30, 4)}
	opts := DefaultOptions()
	bvh := buildOrFail(t, opts.BuildOptions, lights, opts.BoundsMode())

	p := types.Vec3{2, 2, 3}
	n := types.Vec3{0, 0, -1}
	for _, u := range []float32{0, 0.5, oneMinusEpsilon, 1} {
		if _, pdf, ok := SampleTriangle(bvh, lights.tris, p, n, u, opts); !ok || !(pdf > 0) {
			t.Fatalf("expected sample for u=%f; got pdf %f (ok: %t)", u, pdf, ok)
		}
	}
}

func TestBackFacingLightsAreCulled(t *testing.T) {
	lights := &testCollection{tris: []light.Triangle{makeTriangle(types.Vec3{0, 0, 0}, 1, 1)}}
	opts := DefaultOptions()
	bvh := buildOrFail(t, opts.BuildOptions, lights, opts.BoundsMode())

	below := types.Vec3{0.2, 0.2, -5}
	root := &bvh.Nodes()[0]
	if imp := NodeImportance(root, below, types.Vec3{}, opts); imp != 0 {
		t.Fatalf("expected zero importance below an upward facing light; got %f", imp)
	}

	above := types.Vec3{0.2, 0.2, 5}
	if imp := NodeImportance(root, above, types.Vec3{}, opts); !(imp > 0) {
		t.Fatalf("expected positive importance above the light; got %f", imp)
	}

	// Receiver facing away from the light
	if imp := NodeImportance(root, above, types.Vec3{0, 0, 1}, opts); imp != 0 {
		t.Fatalf("expected zero importance for a receiver facing away; got %f", imp)
	}

	opts.UseLightingCone = false
	opts.UseBoundingCone = false
	if imp := NodeImportance(root, below, types.Vec3{}, opts); !(imp > 0) {
		t.Fatalf("expected positive importance without cone bounds; got %f", imp)
	}
}

func TestSolidAngleBoundMethods(t *testing.T) {
	var node Node
	node.SetBBox(types.BBox{Min: types.Vec3{-1, -1, -1}, Max: types.Vec3{1, 1, 1}})
	node.SetCone(UnboundedCone())
	node.Flux = 1

	opts := DefaultOptions()
	opts.UseBoundingCone = false

	// Inside the bounding sphere the whole sphere of directions is covered.
	opts.SolidAngleBoundMethod = Sphere
	if imp := NodeImportance(&node, types.Vec3{0.5, 0, 0}, types.Vec3{}, opts); math.Abs(float64(imp)-4*math.Pi) > 1e-4 {
		t.Fatalf("expected importance 4π inside the bounding sphere; got %f", imp)
	}

	// Far away, the sphere solid angle approaches π r² / d².
	far := types.Vec3{1000, 0, 0}
	expSolidAngle := math.Pi * 3 / 1e6
	if imp := NodeImportance(&node, far, types.Vec3{}, opts); math.Abs(float64(imp)-expSolidAngle) > 1e-2*expSolidAngle {
		t.Fatalf("expected importance %g far from the node; got %g", expSolidAngle, imp)
	}

	opts.SolidAngleBoundMethod = BoxToCenter
	if imp := NodeImportance(&node, far, types.Vec3{}, opts); math.Abs(float64(imp)-1e-6) > 1e-9 {
		t.Fatalf("expected inverse squared distance 1e-6; got %g", imp)
	}

	// The average squared distance to the box adds (2² * 3) / 12 = 1.
	opts.SolidAngleBoundMethod = BoxToAverage
	near := types.Vec3{2, 0, 0}
	if imp := NodeImportance(&node, near, types.Vec3{}, opts); math.Abs(float64(imp)-0.2) > 1e-6 {
		t.Fatalf("expected importance 0.2; got %g", imp)
	}
}

func TestSampleTriangleOnInvalidTree(t *testing.T) {
	bvh := buildOrFail(t, DefaultBuildOptions(), &testCollection{}, BoundsMode{})
	if _, _, ok := SampleTriangle(bvh, nil, types.Vec3{}, types.Vec3{0, 0, 1}, 0.5, DefaultOptions()); ok {
		t.Fatal("expected sampling an empty tree to fail")
	}
	if pdf := TrianglePDF(bvh, nil, 0, types.Vec3{}, types.Vec3{0, 0, 1}, DefaultOptions()); pdf != 0 {
		t.Fatalf("expected pdf 0; got %f", pdf)
	}
}
