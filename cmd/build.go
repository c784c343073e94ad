package cmd

import (
	"github.com/urfave/cli"
)

// Build a light BVH for the emissive meshes of a scene and display its stats.
func BuildBVH(ctx *cli.Context) error {
	setupLogging(ctx)

	lights, sampler, err := loadSampler(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}

	if ctx.Bool("dump-options") {
		data, err := sampler.Options().ToYAML()
		if err != nil {
			return err
		}
		logger.Noticef("sampler options:\n%s", data)
	}

	logger.Noticef("sampler configuration:\n%s", sampler.StatsTable())

	bvh := sampler.BVH()
	if bvh == nil {
		logger.Warning("scene has no emissive flux; emissive importance sampling would be disabled")
		return nil
	}
	logger.Noticef("light BVH information:\n%s", bvh.Stats())

	if ctx.Bool("validate") {
		if err = bvh.Validate(lights, sampler.Options().BuildOptions.MaxTriangleCountPerLeaf); err != nil {
			logger.Error(err)
			return err
		}
		logger.Notice("light BVH passed validation")
	}

	return nil
}
