package cmd

import (
	"fmt"
	"math"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/gpu/opencl"
	"github.com/urfave/cli"
)

// Member under which the sampler binds its tree.
const lightBVHMember = "_lightBVH"

// Build a light BVH, upload it to an opencl device and run the structure
// check kernel against the uploaded data.
func UploadBVH(ctx *cli.Context) error {
	setupLogging(ctx)

	_, sampler, err := loadSampler(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}
	bvh := sampler.BVH()
	if bvh == nil {
		logger.Warning("scene has no emissive flux; nothing to upload")
		return nil
	}

	typeMask, err := opencl.ParseDeviceType(ctx.String("device-type"))
	if err != nil {
		return err
	}
	devList, err := opencl.SelectDevices(typeMask, ctx.String("device"))
	if err != nil {
		logger.Error(err)
		return err
	}
	if len(devList) == 0 {
		logger.Error(opencl.ErrNoDevices)
		return opencl.ErrNoDevices
	}
	dev := devList[0]
	logger.Noticef(`using device "%s"`, dev.Name)

	defines := gpu.DefineList{}
	sampler.PrepareProgram(defines)
	if err = dev.Init(ctx.String("program"), defines); err != nil {
		logger.Error(err)
		return err
	}
	defer dev.Close()

	binding := opencl.NewBinding(dev)
	defer binding.Release()
	if err = sampler.SetShaderData(binding); err != nil {
		logger.Error(err)
		return err
	}
	for _, path := range binding.Paths() {
		if buf, isBuffer := binding.Buffer(path); isBuffer {
			logger.Infof("uploaded %s (%d bytes)", path, buf.Size())
		}
	}

	res, err := opencl.CheckLightBVH(dev, binding, lightBVHMember)
	if err != nil {
		logger.Error(err)
		return err
	}
	logger.Noticef("checked %d nodes in %d ms", res.NodeCount, res.KernelTime.Nanoseconds()/1e6)

	for nodeIndex, desc := range res.NodeErrors {
		logger.Errorf("node %d: %s", nodeIndex, desc)
	}
	if len(res.NodeErrors) != 0 {
		return fmt.Errorf("device reported errors for %d nodes", len(res.NodeErrors))
	}

	rootFlux := bvh.Nodes()[bvh.RootIndex()].Flux
	if math.Abs(float64(res.LeafFlux-rootFlux)) > 1e-3*math.Max(1, float64(rootFlux)) {
		err = fmt.Errorf("device leaf flux %f does not match root flux %f", res.LeafFlux, rootFlux)
		logger.Error(err)
		return err
	}

	logger.Notice("uploaded light BVH passed device checks")
	return nil
}
