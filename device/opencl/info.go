// Package opencl implements a device backend on top of OpenCL. The backend is
// only available when building with the opencl tag; otherwise every
// constructor returns ErrBackendUnavailable.
package opencl

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrBackendUnavailable = errors.New("opencl: backend not available; rebuild with -tags opencl")
	ErrNoDevices          = errors.New("opencl: no devices match the selection criteria")
)

var indentRegex = regexp.MustCompile("(?m)^")

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("opencl: unsupported device type")
}

// Parse a device type name (cpu, gpu, all).
func ParseDeviceType(name string) (DeviceType, error) {
	switch name {
	case "cpu", "CPU":
		return CpuDevice, nil
	case "gpu", "GPU":
		return GpuDevice, nil
	case "all", "":
		return AllDevices, nil
	}
	return 0, fmt.Errorf("opencl: unknown device type %q", name)
}

// Description of an opencl device.
type DeviceInfo struct {
	Name string
	Type DeviceType

	ComputeUnits     int
	ClockSpeed       int
	MaxWorkGroupSize int
	MaxAllocSize     int64

	// Speed estimate in GFlops.
	Speed int

	handle deviceHandle
}

// Implements Stringer.
func (d DeviceInfo) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed",
		d.Name,
		d.Type.String(),
		d.ComputeUnits,
		d.ClockSpeed,
		d.Speed,
	)
}

// Information about a system's opencl platform and supported devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []*DeviceInfo
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

// Scan all available opencl platforms and select the first device that matches
// the given type mask and contains matchName in its name.
func SelectDevice(typeMask DeviceType, matchName string) (*DeviceInfo, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}

	for _, p := range platforms {
		for _, d := range p.Devices {
			if matchDevice(d, typeMask, matchName) {
				return d, nil
			}
		}
	}
	return nil, ErrNoDevices
}

func matchDevice(d *DeviceInfo, typeMask DeviceType, matchName string) bool {
	if d.Type&typeMask != d.Type {
		return false
	}
	return matchName == "" || strings.Contains(d.Name, matchName)
}
