package opencl

import "testing"

func TestMatchDevice(t *testing.T) {
	gpu := &DeviceInfo{Name: "Radeon Pro 560", Type: GpuDevice}
	cpu := &DeviceInfo{Name: "Intel(R) Core(TM) i7", Type: CpuDevice}

	specs := []struct {
		dev      *DeviceInfo
		mask     DeviceType
		name     string
		expMatch bool
	}{
		{gpu, AllDevices, "", true},
		{gpu, GpuDevice, "Radeon", true},
		{gpu, CpuDevice, "", false},
		{cpu, CpuDevice | GpuDevice, "Core", true},
		{cpu, AllDevices, "Radeon", false},
	}

	for idx, spec := range specs {
		if match := matchDevice(spec.dev, spec.mask, spec.name); match != spec.expMatch {
			t.Fatalf("[spec %d] expected match to be %t; got %t", idx, spec.expMatch, match)
		}
	}
}

func TestParseDeviceType(t *testing.T) {
	specs := map[string]DeviceType{
		"cpu": CpuDevice,
		"GPU": GpuDevice,
		"all": AllDevices,
	}
	for name, expType := range specs {
		dt, err := ParseDeviceType(name)
		if err != nil {
			t.Fatalf("[%s] unexpected error: %v", name, err)
		}
		if dt != expType {
			t.Fatalf("[%s] expected type %d; got %d", name, expType, dt)
		}
	}

	if _, err := ParseDeviceType("fpga"); err == nil {
		t.Fatal("expected to get an error for an unknown device type")
	}
}
