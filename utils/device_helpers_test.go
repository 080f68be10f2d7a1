package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceProps(t *testing.T) {
	testCases := []struct {
		mode     string
		deviceID int
		expected string
	}{
		{"Serial", 3, `{"mode": "Serial"}`},
		{"openmp", 1, `{"mode": "OpenMP"}`},
		{"CUDA", 2, `{"mode": "CUDA", "device_id": 2}`},
		{"HIP", 0, `{"mode": "HIP", "device_id": 0}`},
		{"OpenCL", 1, `{"mode": "OpenCL", "platform_id": 0, "device_id": 1}`},
	}
	for _, tc := range testCases {
		t.Run(tc.mode, func(t *testing.T) {
			props, err := DeviceProps(tc.mode, tc.deviceID)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, props)
		})
	}

	_, err := DeviceProps("Metal9", 0)
	assert.Error(t, err)
}

func TestCreateDevice_Serial(t *testing.T) {
	device, err := CreateDevice("Serial", 0)
	require.NoError(t, err)
	defer device.Free()
	assert.Equal(t, "Serial", device.Mode())

	_, err = CreateDevice("bogus", 0)
	assert.Error(t, err)
}
