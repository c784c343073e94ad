package cmd

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"

	"github.com/achilleasa/lightbvh/lightbvh"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

type sampleCount struct {
	triIndex uint32
	hits     int
	pdf      float32
}

// Draw emissive triangle samples for a shading point and display the most
// frequently selected triangles along with their selection probability.
func SampleLights(ctx *cli.Context) error {
	setupLogging(ctx)

	p, err := parseVec3(ctx.String("point"))
	if err != nil {
		return err
	}
	n, err := parseVec3(ctx.String("normal"))
	if err != nil {
		return err
	}

	lights, sampler, err := loadSampler(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}
	bvh := sampler.BVH()
	if bvh == nil {
		logger.Warning("scene has no emissive flux; nothing to sample")
		return nil
	}

	tris := lights.ActiveTriangles()
	opts := sampler.Options()
	rng := rand.New(rand.NewSource(ctx.Int64("seed")))

	numSamples := ctx.Int("samples")
	counts := make(map[uint32]*sampleCount)
	misses := 0
	for i := 0; i < numSamples; i++ {
		triIndex, pdf, ok := lightbvh.SampleTriangle(bvh, tris, p, n, rng.Float32(), opts)
		if !ok {
			misses++
			continue
		}
		if entry, exists := counts[triIndex]; exists {
			entry.hits++
			continue
		}
		counts[triIndex] = &sampleCount{triIndex: triIndex, hits: 1, pdf: pdf}
	}

	if misses == numSamples {
		logger.Warningf("no emissive triangle can illuminate point %v with normal %v", p, n)
		return nil
	}

	sorted := make([]*sampleCount, 0, len(counts))
	for _, entry := range counts {
		sorted = append(sorted, entry)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].hits != sorted[j].hits {
			return sorted[i].hits > sorted[j].hits
		}
		return sorted[i].triIndex < sorted[j].triIndex
	})
	if top := ctx.Int("top"); top > 0 && len(sorted) > top {
		sorted = sorted[:top]
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Triangle", "Flux", "Hits", "Observed", "PDF"})
	for _, entry := range sorted {
		table.Append([]string{
			fmt.Sprint(entry.triIndex),
			fmt.Sprintf("%.4f", tris[entry.triIndex].Flux),
			fmt.Sprint(entry.hits),
			fmt.Sprintf("%.5f", float32(entry.hits)/float32(numSamples)),
			fmt.Sprintf("%.5f", entry.pdf),
		})
	}
	table.SetFooter([]string{"Misses", " ", fmt.Sprint(misses), " ", " "})
	table.Render()

	logger.Noticef("samples for point %v (normal %v, method %s):\n%s", p, n, opts.SolidAngleBoundMethod, buf.String())
	return nil
}
