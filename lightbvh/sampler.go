package lightbvh

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/log"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// Member of the parameter block that receives the tree data.
const shaderDataMember = "_lightBVH"

// Counters describing the maintenance work performed by a Sampler.
type SamplerStats struct {
	Builds int
	Refits int

	// Refits that were escalated to a rebuild because the collection
	// topology no longer matched the tree.
	ForcedRebuilds int
}

// The Sampler owns a light BVH and keeps it in sync with a light collection.
// It decides once per frame whether the tree needs a rebuild or a refit and
// exposes the tree and the sampling configuration to GPU programs.
//
// A Sampler is not safe for concurrent use.
type Sampler struct {
	logger  log.Logger
	opts    Options
	builder *Builder

	bvh          *LightBVH
	needsRebuild bool
	stats        SamplerStats
}

// Create a sampler for the given light collection. The tree is built by the
// first call to Update. The collection is only used for the duration of this
// call.
func NewSampler(lights light.Collection, opts Options) (*Sampler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	builder, err := NewBuilder(opts.BuildOptions)
	if err != nil {
		return nil, errors.Wrap(err, "lightbvh: could not create builder")
	}

	s := &Sampler{
		logger:       log.New("light BVH sampler"),
		opts:         opts,
		builder:      builder,
		bvh:          &LightBVH{mode: opts.BoundsMode()},
		needsRebuild: true,
	}
	s.logger.Debugf("created sampler for %d emissive triangles (method: %s)", len(lights.ActiveTriangles()), opts.SolidAngleBoundMethod)
	return s, nil
}

// Bring the tree up to date with the light collection. Returns true if the
// tree was rebuilt or refit.
//
// A change to the collection is handled by a refit when refitting is allowed
// and no rebuild is pending. If emitters were added or removed the refit is
// rejected and the tree is rebuilt instead. Builds with the lightbvh_debug tag
// panic at that point, so adding or removing emitters while refitting is
// allowed panics in debug builds.
func (s *Sampler) Update(lights light.Collection) (bool, error) {
	refit := false
	if lights.Updates().IsSet(light.LightCollectionChanged) {
		if s.opts.BuildOptions.AllowRefitting && !s.needsRebuild {
			refit = true
		} else {
			s.needsRebuild = true
		}
	}

	if !s.needsRebuild && refit {
		err := s.bvh.Refit(lights)
		switch {
		case err == nil:
			s.stats.Refits++
			return true, nil
		case errors.Cause(err) == ErrIncompatibleTopology:
			s.logger.Warningf("light collection topology changed; forcing a BVH rebuild")
			s.stats.ForcedRebuilds++
			s.needsRebuild = true
		default:
			return false, err
		}
	}

	if !s.needsRebuild {
		return false, nil
	}

	bvh, err := s.builder.Build(lights, s.opts.BoundsMode())
	if err != nil {
		return false, errors.Wrap(err, "lightbvh: could not build light BVH")
	}
	s.bvh = bvh
	s.needsRebuild = false
	s.stats.Builds++

	if !bvh.IsValid() {
		s.logger.Info("light collection has no emissive flux; emissive importance sampling disabled")
	}
	return true, nil
}

// Add the sampler configuration to a program as compile-time definitions.
func (s *Sampler) PrepareProgram(p gpu.Program) {
	p.AddDefine("_USE_BOUNDING_CONE", boolDefine(s.opts.UseBoundingCone))
	p.AddDefine("_USE_LIGHTING_CONE", boolDefine(s.opts.UseLightingCone))
	p.AddDefine("_DISABLE_NODE_FLUX", boolDefine(s.opts.DisableNodeFlux))
	p.AddDefine("_USE_UNIFORM_TRIANGLE_SAMPLING", boolDefine(s.opts.UseUniformTriangleSampling))
	p.AddDefine("_ACTUAL_MAX_TRIANGLES_PER_NODE", fmt.Sprint(s.opts.BuildOptions.MaxTriangleCountPerLeaf))
	p.AddDefine("_SOLID_ANGLE_BOUND_METHOD", fmt.Sprint(uint32(s.opts.SolidAngleBoundMethod)))
}

// Bind the tree to the _lightBVH member of v. Fails with ErrInvalidBVH if
// the tree is not valid.
func (s *Sampler) SetShaderData(v gpu.ShaderVar) error {
	if !s.bvh.IsValid() {
		return ErrInvalidBVH
	}
	return s.bvh.SetShaderData(v.Member(shaderDataMember))
}

// Get the tree or nil if it is not valid. A nil tree means emissive
// importance sampling should be disabled for this frame.
func (s *Sampler) BVH() *LightBVH {
	if !s.bvh.IsValid() {
		return nil
	}
	return s.bvh
}

// Get the sampler options.
func (s *Sampler) Options() Options {
	return s.opts
}

// Get the maintenance counters.
func (s *Sampler) Stats() SamplerStats {
	return s.stats
}

// Get a table with the sampler configuration and maintenance counters.
func (s *Sampler) StatsTable() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"Max triangles per leaf", fmt.Sprint(s.opts.BuildOptions.MaxTriangleCountPerLeaf)})
	table.Append([]string{"Allow refitting", fmt.Sprint(s.opts.BuildOptions.AllowRefitting)})
	table.Append([]string{"Bounding cone", fmt.Sprint(s.opts.UseBoundingCone)})
	table.Append([]string{"Lighting cone", fmt.Sprint(s.opts.UseLightingCone)})
	table.Append([]string{"Node flux", fmt.Sprint(!s.opts.DisableNodeFlux)})
	table.Append([]string{"Uniform triangle sampling", fmt.Sprint(s.opts.UseUniformTriangleSampling)})
	table.Append([]string{"Solid angle bound", s.opts.SolidAngleBoundMethod.String()})
	table.Append([]string{" ", " "})
	table.Append([]string{"Builds", fmt.Sprint(s.stats.Builds)})
	table.Append([]string{"Refits", fmt.Sprint(s.stats.Refits)})
	table.Append([]string{"Forced rebuilds", fmt.Sprint(s.stats.ForcedRebuilds)})

	table.Render()
	return buf.String()
}

func boolDefine(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
