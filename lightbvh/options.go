package lightbvh

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Method used by the sampling kernel to bound the solid angle subtended by a
// BVH node as seen from a shading point.
type SolidAngleBoundMethod uint32

const (
	BoxToAverage SolidAngleBoundMethod = iota
	BoxToCenter
	Sphere

	numSolidAngleBoundMethods
)

var solidAngleBoundMethodNames = [...]string{
	BoxToAverage: "BoxToAverage",
	BoxToCenter:  "BoxToCenter",
	Sphere:       "Sphere",
}

func (m SolidAngleBoundMethod) String() string {
	if m < numSolidAngleBoundMethods {
		return solidAngleBoundMethodNames[m]
	}
	return fmt.Sprintf("SolidAngleBoundMethod(%d)", uint32(m))
}

// Parse a method by its (case-insensitive) name.
func ParseSolidAngleBoundMethod(name string) (SolidAngleBoundMethod, error) {
	for m, mName := range solidAngleBoundMethodNames {
		if strings.EqualFold(mName, name) {
			return SolidAngleBoundMethod(m), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidOptions, "unknown solid angle bound method %q", name)
}

// Implements yaml.Marshaler.
func (m SolidAngleBoundMethod) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// Implements yaml.Unmarshaler.
func (m *SolidAngleBoundMethod) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseSolidAngleBoundMethod(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Options controlling tree construction and maintenance.
type BuildOptions struct {
	// Leaves hold at most this many triangles.
	MaxTriangleCountPerLeaf int `yaml:"maxTriangleCountPerLeaf"`

	// Refit the existing tree instead of rebuilding it when the light
	// collection changes.
	AllowRefitting bool `yaml:"allowRefitting"`

	// Number of candidate split planes evaluated per axis.
	SplitBinCount int `yaml:"splitBinCount"`

	// Score the three split axes concurrently for large nodes.
	ParallelSplitScoring bool `yaml:"parallelSplitScoring"`
}

// Session-level sampler configuration. All of these are compiled into the
// sampling kernel; changing them requires a new program.
type Options struct {
	BuildOptions BuildOptions `yaml:"buildOptions"`

	// Bound the receiver cosine term using the cone subtended by a node.
	UseBoundingCone bool `yaml:"useBoundingCone"`

	// Track a cone bounding the emitter normals of each node and use it to
	// cull back-facing clusters.
	UseLightingCone bool `yaml:"useLightingCone"`

	// Ignore node flux; nodes are weighted by their triangle count.
	DisableNodeFlux bool `yaml:"disableNodeFlux"`

	// Select triangles inside a leaf uniformly instead of by flux.
	UseUniformTriangleSampling bool `yaml:"useUniformTriangleSampling"`

	SolidAngleBoundMethod SolidAngleBoundMethod `yaml:"solidAngleBoundMethod"`
}

const (
	maxSplitBinCount = 256
)

// Get the default build options.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxTriangleCountPerLeaf: 10,
		AllowRefitting:          true,
		SplitBinCount:           16,
		ParallelSplitScoring:    true,
	}
}

// Get the default sampler options.
func DefaultOptions() Options {
	return Options{
		BuildOptions:               DefaultBuildOptions(),
		UseBoundingCone:            true,
		UseLightingCone:            true,
		DisableNodeFlux:            false,
		UseUniformTriangleSampling: true,
		SolidAngleBoundMethod:      Sphere,
	}
}

// Check build options.
func (o BuildOptions) Validate() error {
	if o.MaxTriangleCountPerLeaf < 1 {
		return errors.Wrapf(ErrInvalidOptions, "maxTriangleCountPerLeaf must be >= 1; got %d", o.MaxTriangleCountPerLeaf)
	}
	if o.SplitBinCount < 2 || o.SplitBinCount > maxSplitBinCount {
		return errors.Wrapf(ErrInvalidOptions, "splitBinCount must be in [2, %d]; got %d", maxSplitBinCount, o.SplitBinCount)
	}
	return nil
}

// Check sampler options.
func (o Options) Validate() error {
	if err := o.BuildOptions.Validate(); err != nil {
		return err
	}
	if o.SolidAngleBoundMethod >= numSolidAngleBoundMethods {
		return errors.Wrapf(ErrInvalidOptions, "unsupported solid angle bound method %d", uint32(o.SolidAngleBoundMethod))
	}
	return nil
}

// Get the bounds the tree must maintain for these options.
func (o Options) BoundsMode() BoundsMode {
	return BoundsMode{
		ComputeCones:   o.UseLightingCone,
		UniformWeights: o.DisableNodeFlux,
	}
}

// Load options from a YAML document. Fields missing from the document keep
// their default values; unknown fields are rejected.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return opts, errors.Wrap(err, "lightbvh: could not parse options")
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Serialize options to YAML.
func (o Options) ToYAML() ([]byte, error) {
	return yaml.Marshal(o)
}
