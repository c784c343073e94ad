package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/light/reader"
	"github.com/achilleasa/lightbvh/lightbvh"
	"github.com/achilleasa/lightbvh/types"
	"github.com/urfave/cli"
)

// Flags shared by all commands that build a light BVH.
var SamplerFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "options",
		Usage: "load sampler options from a YAML file",
	},
	cli.IntFlag{
		Name:  "max-leaf-triangles",
		Value: lightbvh.DefaultBuildOptions().MaxTriangleCountPerLeaf,
		Usage: "maximum number of triangles per BVH leaf",
	},
	cli.IntFlag{
		Name:  "split-bins",
		Value: lightbvh.DefaultBuildOptions().SplitBinCount,
		Usage: "number of candidate split planes evaluated per axis",
	},
	cli.BoolFlag{
		Name:  "no-refit",
		Usage: "rebuild the BVH whenever the light collection changes",
	},
	cli.BoolFlag{
		Name:  "no-bounding-cone",
		Usage: "do not bound the receiver cosine term",
	},
	cli.BoolFlag{
		Name:  "no-lighting-cone",
		Usage: "do not track emitter normal cones",
	},
	cli.BoolFlag{
		Name:  "disable-node-flux",
		Usage: "weight nodes by triangle count instead of flux",
	},
	cli.BoolFlag{
		Name:  "flux-triangle-sampling",
		Usage: "select triangles inside leaves by flux instead of uniformly",
	},
	cli.StringFlag{
		Name:  "solid-angle-bound",
		Value: lightbvh.DefaultOptions().SolidAngleBoundMethod.String(),
		Usage: "solid angle bound method (BoxToAverage, BoxToCenter, Sphere)",
	},
}

// Assemble sampler options from the options file (if any) and the command
// line flags. Flags only override the file when explicitly set.
func samplerOptions(ctx *cli.Context) (lightbvh.Options, error) {
	opts := lightbvh.DefaultOptions()
	if optionsFile := ctx.String("options"); optionsFile != "" {
		f, err := os.Open(optionsFile)
		if err != nil {
			return opts, err
		}
		defer f.Close()

		if opts, err = lightbvh.LoadOptions(f); err != nil {
			return opts, err
		}
	}

	if ctx.IsSet("max-leaf-triangles") {
		opts.BuildOptions.MaxTriangleCountPerLeaf = ctx.Int("max-leaf-triangles")
	}
	if ctx.IsSet("split-bins") {
		opts.BuildOptions.SplitBinCount = ctx.Int("split-bins")
	}
	if ctx.Bool("no-refit") {
		opts.BuildOptions.AllowRefitting = false
	}
	if ctx.Bool("no-bounding-cone") {
		opts.UseBoundingCone = false
	}
	if ctx.Bool("no-lighting-cone") {
		opts.UseLightingCone = false
	}
	if ctx.Bool("disable-node-flux") {
		opts.DisableNodeFlux = true
	}
	if ctx.Bool("flux-triangle-sampling") {
		opts.UseUniformTriangleSampling = false
	}
	if ctx.IsSet("solid-angle-bound") {
		method, err := lightbvh.ParseSolidAngleBoundMethod(ctx.String("solid-angle-bound"))
		if err != nil {
			return opts, err
		}
		opts.SolidAngleBoundMethod = method
	}

	return opts, opts.Validate()
}

// Load the emissive meshes of the scene passed as the first argument and
// build a light BVH for them.
func loadSampler(ctx *cli.Context) (*light.MeshCollection, *lightbvh.Sampler, error) {
	if ctx.NArg() != 1 {
		return nil, nil, errors.New("missing scene file argument")
	}
	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(sceneFile, ".obj") {
		return nil, nil, fmt.Errorf("unsupported scene file %s; only wavefront .obj files are supported", sceneFile)
	}

	opts, err := samplerOptions(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger.Noticef("reading emissive meshes from: %s", sceneFile)
	lights, err := reader.ReadCollection(sceneFile)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("found %d emissive meshes with %d triangles", lights.MeshCount(), len(lights.ActiveTriangles()))

	sampler, err := lightbvh.NewSampler(lights, opts)
	if err != nil {
		return nil, nil, err
	}
	if _, err = sampler.Update(lights); err != nil {
		return nil, nil, err
	}
	lights.EndFrame()

	return lights, sampler, nil
}

// Parse a comma separated vector ("x,y,z").
func parseVec3(value string) (types.Vec3, error) {
	var v types.Vec3
	tokens := strings.Split(value, ",")
	if len(tokens) != 3 {
		return v, fmt.Errorf("expected a vector in x,y,z format; got %q", value)
	}
	for idx, token := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(token), 32)
		if err != nil {
			return v, fmt.Errorf("invalid vector component %q: %s", token, err.Error())
		}
		v[idx] = float32(f)
	}
	return v, nil
}
