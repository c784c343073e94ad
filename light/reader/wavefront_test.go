package reader

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/achilleasa/lightbvh/asset"
	"github.com/achilleasa/lightbvh/types"
)

func TestFloat32Parser(t *testing.T) {
	expError := `unsupported syntax for "KeScaler"; expected 1 argument; got 0`
	_, err := parseFloat32([]string{"KeScaler"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseFloat32([]string{"KeScaler", "not-a-float"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseFloat32([]string{"KeScaler", "3.14"})
	if err != nil {
		t.Fatal(err)
	}
	if v != 3.14 {
		t.Fatalf("expected parsed value to be 3.14; got %f", v)
	}
}

func TestVec3Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 3 arguments; got 0`
	_, err := parseVec3([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	v, err := parseVec3([]string{"v", "3.14", "0", "0.4"})
	if err != nil {
		t.Fatal(err)
	}
	expVal := types.Vec3{3.14, 0, 0.4}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestSelectFaceCoordIndex(t *testing.T) {
	specs := []struct {
		token     string
		listLen   int
		relOffset int
		exp       int
		expErr    bool
	}{
		{"1", 4, 0, 0, false},
		{"4", 4, 0, 3, false},
		{"-1", 4, 0, 3, false},
		{"2", 6, 2, 3, false},
		{"5", 4, 0, -1, true},
		{"-5", 4, 0, -1, true},
		{"x", 4, 0, -1, true},
	}

	for idx, spec := range specs {
		got, err := selectFaceCoordIndex(spec.token, spec.listLen, spec.relOffset)
		if spec.expErr {
			if err == nil {
				t.Errorf("[spec %d] expected an error", idx)
			}
			continue
		}
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", idx, err)
			continue
		}
		if got != spec.exp {
			t.Errorf("[spec %d] expected offset %d; got %d", idx, spec.exp, got)
		}
	}
}

func TestReadEmissiveGeometry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lights.mtl", `
newmtl white
Kd 0.8 0.8 0.8

newmtl lamp
Ke 1 1 1
KeScaler 4

newmtl lamp2
include lamp
`)
	writeFile(t, dir, "scene.obj", `
mtllib lights.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0

o floor
usemtl white
f 1 2 3 4

o ceiling
usemtl lamp
f 1 2 3 4
usemtl lamp2
f 1/1/1 2/2/2 3/3/3
`)

	collection, err := ReadCollection(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}

	if got := collection.MeshCount(); got != 2 {
		t.Fatalf("expected 2 emissive meshes; got %d", got)
	}

	tris := collection.ActiveTriangles()
	if len(tris) != 3 {
		t.Fatalf("expected 3 emissive triangles (quad + triangle); got %d", len(tris))
	}

	if collection.Updates() != 0 {
		t.Fatalf("expected a freshly read collection to have no pending updates; got %d", collection.Updates())
	}

	// Included material inherits the scaler; all triangles have the same
	// radiance so flux is proportional to area.
	for idx, tri := range tris {
		ratio := tri.Flux / tri.Area
		if ratio < 12 || ratio > 13 {
			t.Fatalf("expected triangle %d flux/area ratio to be 4π; got %f", idx, ratio)
		}
	}
}

func TestReadErrors(t *testing.T) {
	specs := []struct {
		payload string
		expErr  string
	}{
		{"usemtl missing", `undefined material with name "missing"`},
		{"v 0 0 0\nf 1 2 3", "could not parse vertex coord for face argument 1"},
		{"v 0 0 0\nf 1 1", `expected 3 arguments for triangular face`},
		{"mtllib", `unsupported syntax for "mtllib"`},
	}

	for idx, spec := range specs {
		_, err := Read(asset.NewResourceFromStream("embedded.obj", strings.NewReader(spec.payload)))
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", idx, spec.expErr, err)
		}
	}
}

func TestIncludeErrorStack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.mtl", "Ke 1 1 1\n")
	writeFile(t, dir, "scene.obj", "mtllib broken.mtl\n")

	_, err := ReadCollection(filepath.Join(dir, "scene.obj"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), `got "Ke" without a "newmtl"`) || !strings.Contains(err.Error(), "referenced from") {
		t.Fatalf("expected error with include stack; got %v", err)
	}
}

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}
