package utils

import (
	"fmt"
	"strings"

	"github.com/notargets/gocca"
)

// DeviceProps builds the OCCA property string for a mode. The device id is
// only meaningful to the GPU modes; CPU modes ignore it.
func DeviceProps(mode string, deviceID int) (string, error) {
	switch strings.ToLower(mode) {
	case "serial":
		return `{"mode": "Serial"}`, nil
	case "openmp":
		return `{"mode": "OpenMP"}`, nil
	case "cuda":
		return fmt.Sprintf(`{"mode": "CUDA", "device_id": %d}`, deviceID), nil
	case "hip":
		return fmt.Sprintf(`{"mode": "HIP", "device_id": %d}`, deviceID), nil
	case "opencl":
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": 0, "device_id": %d}`, deviceID), nil
	}
	return "", fmt.Errorf("unknown OCCA mode %q", mode)
}

// CreateDevice creates an OCCA device for mode on deviceID
func CreateDevice(mode string, deviceID int) (*gocca.OCCADevice, error) {
	props, err := DeviceProps(mode, deviceID)
	if err != nil {
		return nil, err
	}
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s device %d: %w", mode, deviceID, err)
	}
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	for _, mode := range []string{"OpenMP", "CUDA", "Serial"} {
		device, err := CreateDevice(mode, 0)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}

	// Should not reach here
	panic("Failed to create any Device")
}
