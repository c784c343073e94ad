package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/lightbvh/gpu/opencl"
	"github.com/urfave/cli"
)

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	clPlatforms, err := opencl.GetPlatformInfo()
	if err != nil {
		logger.Error(err)
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(clPlatforms)))
	for pIdx, platformInfo := range clPlatforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n", pIdx))
		buf.WriteString(platformInfo.String())
	}

	logger.Notice(buf.String())
	return nil
}
