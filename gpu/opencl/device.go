// Package opencl implements the gpu parameter surface on top of opencl devices.
package opencl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/achilleasa/lightbvh/gpu"
	"github.com/achilleasa/lightbvh/log"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

// Size of the buffer used for fetching program build logs.
const buildLogBufferSize = 120000

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	return fmt.Sprintf("DeviceType(%d)", uint8(dt))
}

// Parse a device type mask from a name (cpu, gpu or all).
func ParseDeviceType(name string) (DeviceType, error) {
	switch strings.ToLower(name) {
	case "cpu":
		return CpuDevice, nil
	case "gpu":
		return GpuDevice, nil
	case "all", "":
		return AllDevices, nil
	}
	return 0, fmt.Errorf("opencl: unknown device type %q", name)
}

// Wrapper around opencl-supported devices.
type Device struct {
	Name string
	Id   cl.DeviceId
	Type DeviceType

	compUnits  uint32
	clockSpeed uint32

	// Speed estimate in GFlops.
	Speed uint32

	logger log.Logger

	// Opencl handles; allocated when device is initialized.
	ctx      *cl.Context
	cmdQueue cl.CommandQueue
	program  cl.Program
}

// Implements Stringer.
func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed",
		d.Name,
		d.Type.String(),
		d.compUnits,
		d.clockSpeed,
		d.Speed,
	)
}

// Initialize the device and build the given program. The program directory
// is added to the include path and defines are passed to the compiler.
func (d *Device) Init(programFile string, defines gpu.DefineList) (err error) {
	if d.ctx != nil {
		return nil
	}
	if d.logger == nil {
		d.logger = log.New("opencl device")
	}

	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if err = d.createQueue(); err != nil {
		return err
	}

	absProgramPath, err := filepath.Abs(programFile)
	if err != nil {
		return err
	}
	if err = d.loadProgram(absProgramPath); err != nil {
		return err
	}

	buildOpts := fmt.Sprintf("-I %s %s", filepath.Dir(absProgramPath), defines.BuildOptions())
	d.logger.Debugf("building %s with options: %s", filepath.Base(absProgramPath), buildOpts)
	return d.buildProgram(buildOpts)
}

// Allocate a context and a command queue for the device.
func (d *Device) createQueue() error {
	var errCode cl.ErrorCode

	d.ctx = cl.CreateContext(nil, 1, &d.Id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return deviceError(d, errCode, "could not create opencl context")
	}

	d.cmdQueue = cl.CreateCommandQueue(*d.ctx, d.Id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return deviceError(d, errCode, "could not create command queue")
	}
	return nil
}

// Create a program object from the source file at programPath.
func (d *Device) loadProgram(programPath string) error {
	data, err := os.ReadFile(programPath)
	if err != nil {
		return err
	}

	var errCode cl.ErrorCode
	progSrc := cl.Str(string(data) + "\x00")
	d.program = cl.CreateProgramWithSource(*d.ctx, 1, &progSrc, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return deviceError(d, errCode, "could not create program")
	}
	return nil
}

// Compile the loaded program. On failure the returned error includes the
// compiler log.
func (d *Device) buildProgram(buildOpts string) error {
	errCode := cl.BuildProgram(d.program, 1, &d.Id, cl.Str(buildOpts+"\x00"), nil, nil)
	if errCode == cl.SUCCESS {
		return nil
	}

	var logLen uint64
	buildLog := make([]byte, buildLogBufferSize)
	cl.GetProgramBuildInfo(d.program, d.Id, cl.PROGRAM_BUILD_LOG, uint64(len(buildLog)), unsafe.Pointer(&buildLog[0]), &logLen)
	return fmt.Errorf("%s:\n%s", deviceError(d, errCode, "could not build program").Error(), cString(buildLog, logLen))
}

// Shut down the device.
func (d *Device) Close() {
	if d.program != nil {
		cl.ReleaseProgram(d.program)
		d.program = nil
	}

	if d.cmdQueue != nil {
		cl.ReleaseCommandQueue(d.cmdQueue)
		d.cmdQueue = nil
	}

	if d.ctx != nil {
		cl.ReleaseContext(d.ctx)
		d.ctx = nil
	}
}

// Load kernel by name.
func (d *Device) Kernel(name string) (*Kernel, error) {
	if d.program == nil {
		return nil, ErrNotInitialized
	}

	var errCode cl.ErrorCode
	kernelHandle := cl.CreateKernel(
		d.program,
		cl.Str(name+"\x00"),
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		return nil, deviceError(d, errCode, "could not load kernel %s", name)
	}

	return &Kernel{
		device:       d,
		kernelHandle: kernelHandle,
		name:         name,
	}, nil
}

// Create an empty buffer.
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Detect device speed.
func (d *Device) detectSpeed() error {
	// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return deviceError(d, errCode, "could not query MAX_COMPUTE_UNITS")
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return deviceError(d, errCode, "could not query MAX_CLOCK_FREQUENCY")
	}
	d.Speed = d.compUnits * d.clockSpeed / 1000

	return nil
}
