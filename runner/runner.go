package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/VecKernel/runner/builder"
	"github.com/notargets/gocca"
)

// Runner orchestrates kernel compilation and execution on one OCCA device.
// All device memory and kernels it creates are released by Free.
type Runner struct {
	*builder.Builder
	Device        *gocca.OCCADevice
	Kernels       map[string]*gocca.OCCAKernel
	PooledMemory  map[string]*gocca.OCCAMemory
	Bindings      map[string]*DeviceBinding
	KernelConfigs map[string]*KernelConfig
	IsAllocated   bool

	bindingOrder []string
}

// NewRunner creates a new Runner instance and uploads the K array
func NewRunner(device *gocca.OCCADevice, cfg builder.Config) (*Runner, error) {
	if device == nil {
		return nil, fmt.Errorf("device cannot be nil")
	}
	bld, err := builder.NewBuilder(cfg)
	if err != nil {
		return nil, err
	}

	kr := &Runner{
		Builder:       bld,
		Device:        device,
		Kernels:       make(map[string]*gocca.OCCAKernel),
		PooledMemory:  make(map[string]*gocca.OCCAMemory),
		Bindings:      make(map[string]*DeviceBinding),
		KernelConfigs: make(map[string]*KernelConfig),
	}

	kMem, err := kr.mallocInts("K", intsFrom(bld.K))
	if err != nil {
		return nil, err
	}
	kr.PooledMemory["K"] = kMem
	return kr, nil
}

// DefineBindings establishes host↔device data relationships.
// Every bound array must hold exactly GetTotalElements() values.
func (kr *Runner) DefineBindings(params ...*builder.ParamBuilder) error {
	if kr.IsAllocated {
		return fmt.Errorf("bindings cannot be defined after AllocateDevice has been called")
	}

	total := int64(kr.GetTotalElements())
	for i, p := range params {
		spec := p.Spec
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if spec.Size != total {
			return fmt.Errorf("array %s has %d elements, partitions cover %d",
				spec.Name, spec.Size, total)
		}
		if spec.DataType != kr.ElemType {
			return fmt.Errorf("array %s is %v, runner element type is %v",
				spec.Name, spec.DataType, kr.ElemType)
		}
		if _, exists := kr.Bindings[spec.Name]; exists {
			return fmt.Errorf("binding %s already defined", spec.Name)
		}

		kr.Bindings[spec.Name] = &DeviceBinding{
			Name:        spec.Name,
			HostBinding: spec.HostBinding,
			DataType:    spec.DataType,
			Size:        spec.Size,
			ElementSize: int(builder.SizeOf(spec.DataType)),
			IsOutput:    !spec.IsConst(),
		}
		kr.bindingOrder = append(kr.bindingOrder, spec.Name)
	}
	return nil
}

// AllocateDevice allocates global and offset memory for every binding
func (kr *Runner) AllocateDevice() error {
	if kr.IsAllocated {
		return fmt.Errorf("device memory already allocated")
	}

	offsets := kr.CalculateOffsets()
	for _, name := range kr.bindingOrder {
		binding := kr.Bindings[name]
		spec := builder.ArraySpec{
			Name:     name,
			Size:     binding.Size * int64(binding.ElementSize),
			DataType: binding.DataType,
			IsOutput: binding.IsOutput,
		}
		if err := kr.allocateSingleArray(spec, offsets); err != nil {
			return fmt.Errorf("failed to allocate %s: %w", name, err)
		}
	}

	kr.IsAllocated = true
	return nil
}

func (kr *Runner) allocateSingleArray(spec builder.ArraySpec, offsets []int64) error {
	globalMem := kr.Device.Malloc(spec.Size, nil, nil)
	if globalMem == nil {
		return fmt.Errorf("malloc of %d bytes returned nil", spec.Size)
	}
	kr.PooledMemory[spec.Name+"_global"] = globalMem

	offsetMem, err := kr.mallocInts(spec.Name+"_offsets", offsets)
	if err != nil {
		return err
	}
	kr.PooledMemory[spec.Name+"_offsets"] = offsetMem

	kr.AllocatedArrays = append(kr.AllocatedArrays, spec.Name)
	return nil
}

// mallocInts allocates an int_t array initialised from values
func (kr *Runner) mallocInts(name string, values []int64) (*gocca.OCCAMemory, error) {
	var mem *gocca.OCCAMemory
	if kr.GetIntSize() == 4 {
		values32 := make([]int32, len(values))
		for i, v := range values {
			values32[i] = int32(v)
		}
		mem = kr.Device.Malloc(int64(len(values32)*4), unsafe.Pointer(&values32[0]), nil)
	} else {
		mem = kr.Device.Malloc(int64(len(values)*8), unsafe.Pointer(&values[0]), nil)
	}
	if mem == nil {
		return nil, fmt.Errorf("malloc for %s returned nil", name)
	}
	return mem, nil
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	kr.GeneratePreamble()
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if kr.Device.Mode() == "OpenMP" {
		// OCCA does not pass its default -O3 to OpenMP builds
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}

	kr.Kernels[kernelName] = kernel
	return kernel, nil
}

// GetBinding returns the binding for a named array, or nil
func (kr *Runner) GetBinding(name string) *DeviceBinding {
	return kr.Bindings[name]
}

// GetMemory returns the device memory for a named array
func (kr *Runner) GetMemory(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName+"_global"]
}

// Free releases all kernels and device memory owned by the runner
func (kr *Runner) Free() {
	for name, kernel := range kr.Kernels {
		kernel.Free()
		delete(kr.Kernels, name)
	}
	for name, mem := range kr.PooledMemory {
		mem.Free()
		delete(kr.PooledMemory, name)
	}
}

func intsFrom(k []int) []int64 {
	out := make([]int64, len(k))
	for i, v := range k {
		out[i] = int64(v)
	}
	return out
}
