package opencl

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

// A device buffer.
type Buffer struct {
	// Handle to opencl buffer.
	bufHandle cl.Mem

	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	// Allocated size.
	size int
}

// Get buffer size.
func (b *Buffer) Size() int {
	return b.size
}

// Get buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Allocate a buffer large enough to hold data and copy data into it. data
// must be a non-empty slice of fixed-size elements.
func (b *Buffer) AllocateAndWriteData(data interface{}, flags cl.MemFlags) error {
	if b.device.ctx == nil {
		return ErrNotInitialized
	}

	// If the buffer is already allocated release it
	b.Release()

	dataPtr, dataLen, err := getSliceData(data)
	if err != nil {
		return err
	}

	var errCode cl.ErrorCode
	b.bufHandle = cl.CreateBuffer(
		*b.device.ctx,
		flags|cl.MEM_COPY_HOST_PTR,
		cl.MemFlags(dataLen),
		dataPtr,
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		b.bufHandle = nil
		return deviceError(b.device, errCode, "could not allocate buffer %s of size %d", b.name, dataLen)
	}

	b.size = dataLen
	return nil
}

// Read the buffer contents into hostBuffer which must be a slice with enough
// capacity for the whole buffer.
func (b *Buffer) ReadData(hostBuffer interface{}) error {
	dataPtr, dataLen, err := getSliceData(hostBuffer)
	if err != nil {
		return err
	}
	if dataLen < b.size {
		return fmt.Errorf("opencl device (%s): host buffer of length %d cannot hold contents of %s (%d bytes)", b.device.Name, dataLen, b.name, b.size)
	}

	errCode := cl.EnqueueReadBuffer(
		b.device.cmdQueue,
		b.bufHandle,
		cl.TRUE,
		0,
		uint64(b.size),
		dataPtr,
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return deviceError(b.device, errCode, "error copying device data from %s to host buffer", b.name)
	}

	return nil
}

// Release buffer.
func (b *Buffer) Release() {
	if b.bufHandle != nil {
		cl.ReleaseMemObject(b.bufHandle)
		b.bufHandle = nil
		b.size = 0
	}
}

// Get opencl buffer handle.
func (b *Buffer) Handle() cl.Mem {
	return b.bufHandle
}

// Given an interface{} containing a slice return a pointer to its data and its
// length in bytes.
func getSliceData(data interface{}) (unsafe.Pointer, int, error) {
	reflVal := reflect.ValueOf(data)
	if reflVal.Kind() != reflect.Slice {
		return nil, 0, fmt.Errorf("opencl: expected a slice; got %T", data)
	}

	sliceElemCount := reflVal.Len()
	if sliceElemCount == 0 {
		return nil, 0, ErrEmptyBufferWrite
	}

	return unsafe.Pointer(reflVal.Index(0).Addr().Pointer()),
		sliceElemCount * int(reflVal.Type().Elem().Size()),
		nil
}
