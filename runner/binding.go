package runner

import (
	"github.com/notargets/VecKernel/runner/builder"
)

// ActionFlags represents the memory operations to perform for a parameter
type ActionFlags int

const (
	// No action
	NoAction ActionFlags = 0
	// Copy from host to device before kernel execution
	CopyTo ActionFlags = 1 << iota
	// Copy from device to host after kernel execution
	CopyBack
	// Bidirectional copy (CopyTo | CopyBack)
	Copy = CopyTo | CopyBack
)

// DeviceBinding represents a host↔device data binding
type DeviceBinding struct {
	Name        string
	HostBinding interface{} // []int32, []int64, []float32 or []float64

	DataType    builder.DataType
	Size        int64 // Total number of elements
	ElementSize int   // Bytes per element

	IsOutput bool // Whether the kernel may write the array
}

// ParameterUsage represents how a binding is used in a specific kernel or copy operation
type ParameterUsage struct {
	Binding *DeviceBinding
	Actions ActionFlags
}

// HasAction checks if a specific action is set
func (pu *ParameterUsage) HasAction(action ActionFlags) bool {
	return pu.Actions&action != 0
}
