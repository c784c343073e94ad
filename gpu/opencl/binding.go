package opencl

import (
	"sort"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/achilleasa/lightbvh/gpu"
	"github.com/pkg/errors"
)

// A Binding uploads buffers bound through the gpu.ShaderVar interface to
// read-only device buffers and records scalars so they can be passed as kernel
// arguments. Members are addressed by their dotted path.
type Binding struct {
	device  *Device
	buffers map[string]*Buffer
	uints   map[string]uint32
}

// Create a binding for an initialized device.
func NewBinding(device *Device) *Binding {
	return &Binding{
		device:  device,
		buffers: make(map[string]*Buffer),
		uints:   make(map[string]uint32),
	}
}

// Implements gpu.ShaderVar.
func (b *Binding) Member(name string) gpu.ShaderVar {
	return bindingVar{binding: b, path: name}
}

// Implements gpu.ShaderVar.
func (b *Binding) SetBuffer(data interface{}) error {
	return ErrBindingToRoot
}

// Implements gpu.ShaderVar.
func (b *Binding) SetUint(v uint32) error {
	return ErrBindingToRoot
}

// Lookup an uploaded buffer by its dotted path.
func (b *Binding) Buffer(path string) (*Buffer, bool) {
	buf, ok := b.buffers[path]
	return buf, ok
}

// Lookup a scalar by its dotted path.
func (b *Binding) Uint(path string) (uint32, bool) {
	v, ok := b.uints[path]
	return v, ok
}

// Get the sorted list of bound paths.
func (b *Binding) Paths() []string {
	paths := make([]string, 0, len(b.buffers)+len(b.uints))
	for p := range b.buffers {
		paths = append(paths, p)
	}
	for p := range b.uints {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Release all device buffers.
func (b *Binding) Release() {
	for path, buf := range b.buffers {
		buf.Release()
		delete(b.buffers, path)
	}
}

type bindingVar struct {
	binding *Binding
	path    string
}

func (bv bindingVar) Member(name string) gpu.ShaderVar {
	return bindingVar{binding: bv.binding, path: bv.path + "." + name}
}

func (bv bindingVar) SetBuffer(data interface{}) error {
	if _, err := gpu.DescribeSlice(data); err != nil {
		return errors.Wrapf(err, "opencl: could not bind member %q", bv.path)
	}

	buf, exists := bv.binding.buffers[bv.path]
	if !exists {
		buf = bv.binding.device.Buffer(bv.path)
	}
	if err := buf.AllocateAndWriteData(data, cl.MEM_READ_ONLY); err != nil {
		return err
	}

	bv.binding.buffers[bv.path] = buf
	delete(bv.binding.uints, bv.path)
	return nil
}

func (bv bindingVar) SetUint(v uint32) error {
	if buf, exists := bv.binding.buffers[bv.path]; exists {
		buf.Release()
		delete(bv.binding.buffers, bv.path)
	}
	bv.binding.uints[bv.path] = v
	return nil
}
