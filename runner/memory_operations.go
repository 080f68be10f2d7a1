package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
)

// executeCopyActions runs the requested direction for every parameter that
// has it configured
func (kr *Runner) executeCopyActions(params []ParameterUsage, action ActionFlags) error {
	for _, param := range params {
		if !param.HasAction(action) {
			continue
		}
		var err error
		switch action {
		case CopyTo:
			err = kr.copyToDeviceFromBinding(param.Binding)
		case CopyBack:
			err = kr.copyFromDeviceFromBinding(param.Binding)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CopyToDevice copies a bound host array to the device
func (kr *Runner) CopyToDevice(name string) error {
	binding := kr.GetBinding(name)
	if binding == nil {
		return fmt.Errorf("no binding found for %s", name)
	}
	return kr.copyToDeviceFromBinding(binding)
}

func (kr *Runner) copyToDeviceFromBinding(binding *DeviceBinding) error {
	mem := kr.GetMemory(binding.Name)
	if mem == nil {
		return fmt.Errorf("no device memory allocated for %s", binding.Name)
	}
	ptr, bytes, err := hostPointer(binding.HostBinding)
	if err != nil {
		return fmt.Errorf("failed to copy %s to device: %w", binding.Name, err)
	}
	if bytes > 0 {
		mem.CopyFrom(ptr, bytes)
	}
	return nil
}

func (kr *Runner) copyFromDeviceFromBinding(binding *DeviceBinding) error {
	mem := kr.GetMemory(binding.Name)
	if mem == nil {
		return fmt.Errorf("no device memory allocated for %s", binding.Name)
	}
	return copyDirectFromDevice(binding.HostBinding, mem)
}

func copyDirectFromDevice(hostData interface{}, mem *gocca.OCCAMemory) error {
	ptr, bytes, err := hostPointer(hostData)
	if err != nil {
		return fmt.Errorf("failed to copy from device: %w", err)
	}
	if bytes > 0 {
		mem.CopyTo(ptr, bytes)
	}
	return nil
}

// hostPointer returns the base address and byte length of a host slice
func hostPointer(hostData interface{}) (unsafe.Pointer, int64, error) {
	switch data := hostData.(type) {
	case []float32:
		if len(data) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&data[0]), int64(len(data) * 4), nil
	case []float64:
		if len(data) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&data[0]), int64(len(data) * 8), nil
	case []int32:
		if len(data) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&data[0]), int64(len(data) * 4), nil
	case []int64:
		if len(data) == 0 {
			return nil, 0, nil
		}
		return unsafe.Pointer(&data[0]), int64(len(data) * 8), nil
	default:
		return nil, 0, fmt.Errorf("unsupported host type: %T", data)
	}
}
