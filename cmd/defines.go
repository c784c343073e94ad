package cmd

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/lightbvh"
	"github.com/urfave/cli"
)

// Display the compile-time definitions a sampling program would be built with.
func ShowDefines(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := samplerOptions(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}

	sampler, err := lightbvh.NewSampler(light.NewMeshCollection(), opts)
	if err != nil {
		return err
	}

	defines := gpu.DefineList{}
	sampler.PrepareProgram(defines)

	names := make([]string, 0, len(defines))
	for name := range defines {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(fmt.Sprintf("#define %s %s\n", name, defines[name]))
	}
	buf.WriteString(fmt.Sprintf("\ncompiler options: %s\n", defines.BuildOptions()))

	logger.Noticef("program definitions:\n%s", buf.String())
	return nil
}
