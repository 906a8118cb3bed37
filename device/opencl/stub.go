//go:build !opencl

package opencl

import "github.com/achilleasa/clbvh/device"

type deviceHandle struct{}

// Get information about supported opencl platforms and devices.
func GetPlatformInfo() ([]PlatformInfo, error) {
	return nil, ErrBackendUnavailable
}

// Create a backend for the given device.
func New(dev *DeviceInfo, numQueues int) (device.Backend, error) {
	return nil, ErrBackendUnavailable
}
