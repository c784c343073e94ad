package gpu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// A host-side buffer binding.
type BufferData struct {
	SliceInfo

	// Little-endian encoded buffer contents.
	Data []byte
}

// ParameterBlock is a host-side ShaderVar implementation. It records bound
// buffers (little-endian encoded, matching the device layout) and scalars by
// their dotted member path. It is used for inspecting what a producer binds
// and for staging data before it is copied to a device.
type ParameterBlock struct {
	buffers map[string]BufferData
	uints   map[string]uint32
}

// Create an empty parameter block.
func NewParameterBlock() *ParameterBlock {
	return &ParameterBlock{
		buffers: make(map[string]BufferData),
		uints:   make(map[string]uint32),
	}
}

// Implements ShaderVar.
func (pb *ParameterBlock) Member(name string) ShaderVar {
	return blockVar{block: pb, path: name}
}

// Implements ShaderVar. Binding to the block root is not supported.
func (pb *ParameterBlock) SetBuffer(data interface{}) error {
	return fmt.Errorf("gpu: cannot bind a buffer to the parameter block root")
}

// Implements ShaderVar. Binding to the block root is not supported.
func (pb *ParameterBlock) SetUint(v uint32) error {
	return fmt.Errorf("gpu: cannot bind a scalar to the parameter block root")
}

// Lookup a buffer by its dotted path.
func (pb *ParameterBlock) Buffer(path string) (BufferData, bool) {
	buf, ok := pb.buffers[path]
	return buf, ok
}

// Lookup a scalar by its dotted path.
func (pb *ParameterBlock) Uint(path string) (uint32, bool) {
	v, ok := pb.uints[path]
	return v, ok
}

// Get the sorted list of bound paths.
func (pb *ParameterBlock) Paths() []string {
	paths := make([]string, 0, len(pb.buffers)+len(pb.uints))
	for p := range pb.buffers {
		paths = append(paths, p)
	}
	for p := range pb.uints {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type blockVar struct {
	block *ParameterBlock
	path  string
}

func (bv blockVar) Member(name string) ShaderVar {
	return blockVar{block: bv.block, path: bv.path + "." + name}
}

func (bv blockVar) SetBuffer(data interface{}) error {
	info, err := DescribeSlice(data)
	if err != nil {
		return fmt.Errorf("%s (member %q)", err.Error(), bv.path)
	}

	var buf bytes.Buffer
	buf.Grow(info.ByteSize())
	if err = binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("gpu: could not encode buffer for member %q: %s", bv.path, err.Error())
	}

	bv.block.buffers[bv.path] = BufferData{SliceInfo: info, Data: buf.Bytes()}
	delete(bv.block.uints, bv.path)
	return nil
}

func (bv blockVar) SetUint(v uint32) error {
	bv.block.uints[bv.path] = v
	delete(bv.block.buffers, bv.path)
	return nil
}
