package opencl

import (
	"math"
	"strings"
	"testing"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/lightbvh"
	"github.com/achilleasa/lightbvh/types"
	"github.com/google/go-cmp/cmp"
)

const checkProgram = "CL/lightbvh_check.cl"

func createCpuDevice(t *testing.T, defines gpu.DefineList) *Device {
	t.Helper()
	devList, err := SelectDevices(CpuDevice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) == 0 {
		t.Skip("no CPU opencl device available; check that openCL drivers are installed")
	}

	dev := devList[0]
	if err = dev.Init(checkProgram, defines); err != nil {
		t.Fatalf("error initializing device '%s': %v", dev.Name, err)
	}
	return dev
}

func TestParseDeviceType(t *testing.T) {
	specs := map[string]DeviceType{
		"cpu": CpuDevice,
		"GPU": GpuDevice,
		"all": AllDevices,
		"":    AllDevices,
	}
	for name, exp := range specs {
		dt, err := ParseDeviceType(name)
		if err != nil {
			t.Fatal(err)
		}
		if dt != exp {
			t.Fatalf("expected %q to parse as %d; got %d", name, exp, dt)
		}
	}

	if _, err := ParseDeviceType("fpga"); err == nil {
		t.Fatal("expected an error for an unknown device type")
	}
}

func TestErrorName(t *testing.T) {
	if name := ErrorName(-11); name != "BUILD_PROGRAM_FAILURE" {
		t.Fatalf("expected BUILD_PROGRAM_FAILURE; got %s", name)
	}
	if name := ErrorName(-1000); !strings.Contains(name, "-1000") {
		t.Fatalf("expected unknown code to be included in name; got %s", name)
	}
}

func TestDeviceInitRequiresDefines(t *testing.T) {
	devList, err := SelectDevices(CpuDevice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) == 0 {
		t.Skip("no CPU opencl device available; check that openCL drivers are installed")
	}

	dev := devList[0]
	defer dev.Close()
	if err = dev.Init(checkProgram, gpu.DefineList{}); err == nil {
		t.Fatal("expected program build to fail without _ACTUAL_MAX_TRIANGLES_PER_NODE")
	}
}

func TestKernelErrors(t *testing.T) {
	dev := createCpuDevice(t, gpu.DefineList{"_ACTUAL_MAX_TRIANGLES_PER_NODE": "4"})
	defer dev.Close()

	if _, err := dev.Kernel("foo"); err == nil {
		t.Fatal("expected to get an error while trying to load an unknown kernel")
	}
}

func TestBindingUploadsBuffers(t *testing.T) {
	dev := createCpuDevice(t, gpu.DefineList{"_ACTUAL_MAX_TRIANGLES_PER_NODE": "4"})
	defer dev.Close()

	binding := NewBinding(dev)
	defer binding.Release()

	data := []uint32{1, 2, 3, 4, 5}
	if err := binding.Member("block").Member("data").SetBuffer(data); err != nil {
		t.Fatal(err)
	}
	if err := binding.Member("block").Member("count").SetUint(5); err != nil {
		t.Fatal(err)
	}
	if err := binding.SetUint(1); err != ErrBindingToRoot {
		t.Fatalf("expected ErrBindingToRoot; got %v", err)
	}

	if diff := cmp.Diff([]string{"block.count", "block.data"}, binding.Paths()); diff != "" {
		t.Fatalf("unexpected bound paths; diff (-exp +got):\n%s", diff)
	}

	buf, _ := binding.Buffer("block.data")
	if buf.Size() != 20 {
		t.Fatalf("expected buffer size 20; got %d", buf.Size())
	}
	readBack := make([]uint32, len(data))
	if err := buf.ReadData(readBack); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, readBack); diff != "" {
		t.Fatalf("unexpected buffer contents; diff (-exp +got):\n%s", diff)
	}
}

func TestCheckLightBVH(t *testing.T) {
	lights := light.NewMeshCollection()
	var tris [][3]types.Vec3
	for i := 0; i < 40; i++ {
		x := float32(i % 8)
		y := float32(i / 8)
		tris = append(tris, [3]types.Vec3{{x, y, 0}, {x + 0.5, y, 0}, {x, y + 0.5, 0}})
	}
	lights.AddMesh(light.Mesh{Name: "panel", Triangles: tris, Radiance: types.Vec3{1, 1, 1}})

	opts := lightbvh.DefaultOptions()
	opts.BuildOptions.MaxTriangleCountPerLeaf = 3
	sampler, err := lightbvh.NewSampler(lights, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = sampler.Update(lights); err != nil {
		t.Fatal(err)
	}

	defines := gpu.DefineList{}
	sampler.PrepareProgram(defines)
	dev := createCpuDevice(t, defines)
	defer dev.Close()

	binding := NewBinding(dev)
	defer binding.Release()
	if err = sampler.SetShaderData(binding); err != nil {
		t.Fatal(err)
	}

	res, err := CheckLightBVH(dev, binding, "_lightBVH")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NodeErrors) != 0 {
		t.Fatalf("expected no node errors; got %v", res.NodeErrors)
	}

	rootFlux := sampler.BVH().Nodes()[0].Flux
	if math.Abs(float64(res.LeafFlux-rootFlux)) > 1e-3*float64(rootFlux) {
		t.Fatalf("expected leaf flux sum %f; got %f", rootFlux, res.LeafFlux)
	}
}
