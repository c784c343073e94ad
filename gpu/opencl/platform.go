package opencl

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

const (
	platformBufferSize = 100
	deviceBufferSize   = 100
	dataBufferSize     = 1024
)

var (
	indentRegex = regexp.MustCompile("(?m)^")
)

// Information about a system's opencl platform and supported devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []*Device
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	buf.WriteString(
		fmt.Sprintf(
			"Version:    %s\nName:       %s\nVendor:     %s\nExtensions: %s\nDevices:\n",
			pl.Version,
			pl.Name,
			pl.Vendor,
			pl.Extensions,
		),
	)

	for dIdx, d := range pl.Devices {
		buf.WriteString(fmt.Sprintf("  Device %02d:\n", dIdx))
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Get information about supported opencl platforms and devices.
func GetPlatformInfo() ([]PlatformInfo, error) {
	pids := make([]cl.PlatformID, platformBufferSize)
	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)

	data := make([]byte, dataBufferSize)
	dataLen := uint64(0)

	infoList := make([]PlatformInfo, int(pidCount))
	for pIdx := 0; pIdx < int(pidCount); pIdx++ {
		pid := pids[pIdx]
		info := &infoList[pIdx]

		cl.GetPlatformInfo(pid, cl.PLATFORM_PROFILE, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		info.Profile = cString(data, dataLen)

		cl.GetPlatformInfo(pid, cl.PLATFORM_VERSION, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		info.Version = cString(data, dataLen)

		cl.GetPlatformInfo(pid, cl.PLATFORM_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		info.Name = cString(data, dataLen)

		cl.GetPlatformInfo(pid, cl.PLATFORM_VENDOR, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		info.Vendor = cString(data, dataLen)

		cl.GetPlatformInfo(pid, cl.PLATFORM_EXTENSIONS, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		info.Extensions = cString(data, dataLen)

		info.Devices = append(info.Devices, platformDevices(CpuDevice, func(ids []cl.DeviceId) (count uint32) {
			cl.GetDeviceIDs(pid, cl.DEVICE_TYPE_CPU, uint32(len(ids)), &ids[0], &count)
			return count
		})...)
		info.Devices = append(info.Devices, platformDevices(GpuDevice, func(ids []cl.DeviceId) (count uint32) {
			cl.GetDeviceIDs(pid, cl.DEVICE_TYPE_GPU, uint32(len(ids)), &ids[0], &count)
			return count
		})...)

		for _, dev := range info.Devices {
			if err := dev.detectSpeed(); err != nil {
				return nil, err
			}
		}
	}

	return infoList, nil
}

// Scan all available opencl platforms and select devices that match the given
// type mask and whose name contains matchName.
func SelectDevices(typeMask DeviceType, matchName string) ([]*Device, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}
	list := make([]*Device, 0)
	for _, p := range platforms {
		for _, d := range p.Devices {
			if d.Type&typeMask != d.Type {
				continue
			}
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}
			list = append(list, d)
		}
	}
	return list, nil
}

// Enumerate the devices reported by query and tag them with devType.
func platformDevices(devType DeviceType, query func(ids []cl.DeviceId) uint32) []*Device {
	ids := make([]cl.DeviceId, deviceBufferSize)
	count := query(ids)

	data := make([]byte, dataBufferSize)
	devices := make([]*Device, 0, int(count))
	for dIdx := 0; dIdx < int(count); dIdx++ {
		dataLen := uint64(0)
		cl.GetDeviceInfo(ids[dIdx], cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		devices = append(devices, &Device{
			Name: cString(data, dataLen),
			Id:   ids[dIdx],
			Type: devType,
		})
	}
	return devices
}

// Convert a nul-terminated info buffer to a string.
func cString(data []byte, dataLen uint64) string {
	if dataLen == 0 {
		return ""
	}
	return string(data[0 : dataLen-1])
}
