package main

import (
	"os"

	"github.com/achilleasa/lightbvh/cmd"
	"github.com/urfave/cli"
)

func withSamplerFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, cmd.SamplerFlags...), flags...)
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "lightbvh"
	app.Usage = "build and inspect light BVHs for emissive triangle importance sampling"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "set log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build a light BVH for the emissive meshes of a scene",
			Description: `
Parse the emissive meshes from a wavefront obj file, build a light BVH over
their triangles and display information about the generated tree.`,
			ArgsUsage: "scene_file.obj",
			Flags: withSamplerFlags(
				cli.BoolFlag{
					Name:  "validate",
					Usage: "check the structural invariants of the generated tree",
				},
				cli.BoolFlag{
					Name:  "dump-options",
					Usage: "print the effective sampler options as YAML",
				},
			),
			Action: cmd.BuildBVH,
		},
		{
			Name:  "sample",
			Usage: "draw emissive triangle samples for a shading point",
			Description: `
Build a light BVH for the emissive meshes of a scene and use it to select
emissive triangles for a shading point. The observed selection frequencies
are displayed next to the probabilities reported by the tree.`,
			ArgsUsage: "scene_file.obj",
			Flags: withSamplerFlags(
				cli.StringFlag{
					Name:  "point, p",
					Value: "0,0,0",
					Usage: "shading point position (x,y,z)",
				},
				cli.StringFlag{
					Name:  "normal, n",
					Value: "0,0,0",
					Usage: "shading point normal (x,y,z); a zero normal disables receiver cone bounds",
				},
				cli.IntFlag{
					Name:  "samples, s",
					Value: 100000,
					Usage: "number of samples to draw",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "random number generator seed",
				},
				cli.IntFlag{
					Name:  "top",
					Value: 20,
					Usage: "number of triangles to display; 0 displays all sampled triangles",
				},
			),
			Action: cmd.SampleLights,
		},
		{
			Name:   "defines",
			Usage:  "list the program definitions for the selected sampler options",
			Flags:  withSamplerFlags(),
			Action: cmd.ShowDefines,
		},
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "upload",
			Usage: "upload a light BVH to an opencl device and check it",
			Description: `
Build a light BVH for the emissive meshes of a scene, bind it to an opencl
device and run a kernel that checks the structure of the uploaded tree.`,
			ArgsUsage: "scene_file.obj",
			Flags: withSamplerFlags(
				cli.StringFlag{
					Name:  "program",
					Value: "gpu/opencl/CL/lightbvh_check.cl",
					Usage: "opencl program containing the check kernel",
				},
				cli.StringFlag{
					Name:  "device-type",
					Value: "all",
					Usage: "type of opencl device to use (cpu, gpu, all)",
				},
				cli.StringFlag{
					Name:  "device, d",
					Usage: "use the first opencl device whose name contains this value",
				},
			),
			Action: cmd.UploadBVH,
		},
	}

	app.Run(os.Args)
}
