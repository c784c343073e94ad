package opencl

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

// A wrapper around opencl kernel handles.
type Kernel struct {
	device       *Device
	kernelHandle cl.Kernel
	name         string

	globalWorkSize uint64
}

// Free any allocated resources used by this kernel.
func (k *Kernel) Release() {
	if k.kernelHandle != nil {
		cl.ReleaseKernel(k.kernelHandle)
		k.kernelHandle = nil
	}
}

// Bind arguments to the kernel. Supported argument types are device buffers
// and 32-bit scalars.
func (k *Kernel) SetArgs(args ...interface{}) error {
	var errCode cl.ErrorCode
	for argIndex, arg := range args {
		switch v := arg.(type) {
		case *Buffer:
			bufHandle := v.Handle()
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 8, unsafe.Pointer(&bufHandle))
		case int32:
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case uint32:
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case float32:
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		default:
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s; unsupported arg type: %T",
				k.device.Name, argIndex, k.name, arg,
			)
		}

		if errCode != cl.SUCCESS {
			return deviceError(k.device, errCode, "could not set arg %d for kernel %s", argIndex, k.name)
		}
	}

	return nil
}

// Execute the kernel over a 1D range and wait for it to complete. The opencl
// implementation picks the local work size.
func (k *Kernel) Exec1D(globalWorkSize int) (time.Duration, error) {
	k.globalWorkSize = uint64(globalWorkSize)

	tick := time.Now()
	errCode := cl.EnqueueNDRangeKernel(
		k.device.cmdQueue,
		k.kernelHandle,
		1,
		nil,
		(*uint64)(unsafe.Pointer(&k.globalWorkSize)),
		nil,
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return 0, deviceError(k.device, errCode, "unable to execute kernel %s", k.name)
	}

	errCode = cl.Finish(k.device.cmdQueue)
	if errCode != cl.SUCCESS {
		return 0, deviceError(k.device, errCode, "kernel %s did not complete successfully", k.name)
	}

	return time.Since(tick), nil
}
