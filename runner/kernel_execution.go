package runner

import (
	"fmt"
	"strings"
)

// KernelArgument describes one entry of a kernel signature
type KernelArgument struct {
	Name      string
	Type      string
	MemoryKey string
	IsConst   bool
}

// ExecuteKernel copies inputs to the device, runs the kernel, waits for the
// device and copies outputs back. Each step completes before the next.
func (kr *Runner) ExecuteKernel(name string) error {
	config, exists := kr.KernelConfigs[name]
	if !exists {
		return fmt.Errorf("kernel %s not configured - use ConfigureKernel first", name)
	}
	kernel, exists := kr.Kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not compiled - use BuildKernel first", name)
	}

	if err := kr.executeCopyActions(config.Parameters, CopyTo); err != nil {
		return fmt.Errorf("pre-kernel copy failed: %w", err)
	}

	args, err := kr.buildKernelArguments(config)
	if err != nil {
		return fmt.Errorf("failed to build arguments: %w", err)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}

	kr.Device.Finish()

	if err := kr.executeCopyActions(config.Parameters, CopyBack); err != nil {
		return fmt.Errorf("post-kernel copy failed: %w", err)
	}
	return nil
}

// buildKernelArguments resolves the device memory for every signature entry
func (kr *Runner) buildKernelArguments(config *KernelConfig) ([]interface{}, error) {
	kernelArgs := kr.GetKernelArguments(config)
	args := make([]interface{}, 0, len(kernelArgs))
	for _, karg := range kernelArgs {
		mem, exists := kr.PooledMemory[karg.MemoryKey]
		if !exists {
			return nil, fmt.Errorf("memory for %s not found", karg.MemoryKey)
		}
		args = append(args, mem)
	}
	return args, nil
}

// GetKernelArguments returns the ordered kernel arguments: the K array
// first, then a data pointer and an offset array per configured parameter.
func (kr *Runner) GetKernelArguments(config *KernelConfig) []KernelArgument {
	args := []KernelArgument{{
		Name:      "K",
		Type:      "int_t*",
		MemoryKey: "K",
		IsConst:   true,
	}}

	for _, usage := range config.Parameters {
		binding := usage.Binding
		args = append(args,
			KernelArgument{
				Name:      binding.Name + "_global",
				Type:      "elem_t*",
				MemoryKey: binding.Name + "_global",
				IsConst:   !binding.IsOutput,
			},
			KernelArgument{
				Name:      binding.Name + "_offsets",
				Type:      "int_t*",
				MemoryKey: binding.Name + "_offsets",
				IsConst:   true,
			})
	}
	return args
}

// GetKernelSignature generates the parameter list for a configured kernel
func (kr *Runner) GetKernelSignature(kernelName string) (string, error) {
	config, exists := kr.KernelConfigs[kernelName]
	if !exists {
		return "", fmt.Errorf("kernel %s not configured", kernelName)
	}

	args := kr.GetKernelArguments(config)
	params := make([]string, 0, len(args))
	for _, karg := range args {
		constStr := ""
		if karg.IsConst {
			constStr = "const "
		}
		params = append(params, fmt.Sprintf("%s%s %s", constStr, karg.Type, karg.Name))
	}
	return strings.Join(params, ",\n\t"), nil
}
