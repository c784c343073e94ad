// Package gpu defines the parameter surface used to hand data to GPU kernels
// and the program configuration hooks used to specialize them before dispatch.
package gpu

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// A ShaderVar is a named slot in a GPU-bindable parameter surface. Members
// are addressed by name; leaves hold either a structured buffer or a scalar.
type ShaderVar interface {
	// Get a nested member.
	Member(name string) ShaderVar

	// Bind a structured buffer. Data must be a non-empty slice whose
	// elements have a fixed size and contain no pointers.
	SetBuffer(data interface{}) error

	// Set a scalar.
	SetUint(v uint32) error
}

// Description of a slice that can be bound as a structured buffer.
type SliceInfo struct {
	ElementSize  int
	ElementCount int
}

// Size in bytes.
func (si SliceInfo) ByteSize() int {
	return si.ElementSize * si.ElementCount
}

// Validate that data can be bound as a structured buffer and describe it.
func DescribeSlice(data interface{}) (SliceInfo, error) {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return SliceInfo{}, fmt.Errorf("gpu: buffer data must be a slice; got %T", data)
	}
	if val.Len() == 0 {
		return SliceInfo{}, fmt.Errorf("gpu: buffer data slice %T is empty", data)
	}

	elemType := val.Type().Elem()
	if hasPointers(elemType) {
		return SliceInfo{}, fmt.Errorf("gpu: buffer element type %s contains pointers", elemType)
	}
	return SliceInfo{ElementSize: int(elemType.Size()), ElementCount: val.Len()}, nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return false
	case reflect.Array:
		return hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	}
	return true
}

// A Program accepts compile-time definitions that specialize kernels before
// they are built.
type Program interface {
	AddDefine(name, value string)
}

// A set of preprocessor definitions. DefineList implements Program.
type DefineList map[string]string

// Implements Program.
func (dl DefineList) AddDefine(name, value string) {
	dl[name] = value
}

// Get the defines as compiler options ("-D NAME=VALUE ...") sorted by name.
func (dl DefineList) BuildOptions() string {
	names := make([]string, 0, len(dl))
	for name := range dl {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]string, len(names))
	for idx, name := range names {
		opts[idx] = fmt.Sprintf("-D %s=%s", name, dl[name])
	}
	return strings.Join(opts, " ")
}
