package builder

import (
	"fmt"
	"strings"
)

// DataType represents the element type of a device array
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// String returns the CLI name of the data type
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// ParseDataType maps a CLI name onto a DataType
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(name) {
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	case "int32", "int":
		return INT32, nil
	case "int64", "long":
		return INT64, nil
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}

// MaxKpart caps the @inner loop extent. OCCA maps it onto threads per block.
const MaxKpart = 1 << 20

// ArraySpec defines user requirements for array allocation
type ArraySpec struct {
	Name     string
	Size     int64 // bytes
	DataType DataType
	IsOutput bool
}

// Builder generates the kernel preamble for partition-parallel kernels.
// Partition p covers K[p] contiguous elements; KpartMax is the @inner extent.
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int

	// Type configuration
	ElemType DataType
	IntType  DataType

	// Array tracking for macro generation
	AllocatedArrays []string

	// Generated code
	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	K []int
	// KpartMax overrides the computed max(K). The work division sets it to
	// the group size so a short trailing partition keeps the block shape.
	KpartMax int
	ElemType DataType
	IntType  DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) (*Builder, error) {
	if len(cfg.K) == 0 {
		return nil, fmt.Errorf("K array cannot be empty")
	}
	kpartMax := 0
	for i, k := range cfg.K {
		if k < 0 {
			return nil, fmt.Errorf("K[%d] is negative: %d", i, k)
		}
		if k > kpartMax {
			kpartMax = k
		}
	}
	if cfg.KpartMax != 0 {
		if cfg.KpartMax < kpartMax {
			return nil, fmt.Errorf("KpartMax %d is smaller than largest partition %d",
				cfg.KpartMax, kpartMax)
		}
		kpartMax = cfg.KpartMax
	}
	if kpartMax > MaxKpart {
		return nil, fmt.Errorf("KpartMax exceeds 2^20 (%d): found %d, reduce the group size",
			MaxKpart, kpartMax)
	}

	elemType := cfg.ElemType
	if elemType == 0 {
		elemType = INT32
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	kb := &Builder{
		NumPartitions:   len(cfg.K),
		K:               make([]int, len(cfg.K)),
		KpartMax:        kpartMax,
		ElemType:        elemType,
		IntType:         intType,
		AllocatedArrays: []string{},
	}
	copy(kb.K, cfg.K)
	return kb, nil
}

// GetTotalElements returns sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// CalculateOffsets returns the starting element of every partition plus a
// trailing entry holding the total, so partition p spans
// [offsets[p], offsets[p+1]).
func (kb *Builder) CalculateOffsets() []int64 {
	offsets := make([]int64, kb.NumPartitions+1)
	for i, k := range kb.K {
		offsets[i+1] = offsets[i] + int64(k)
	}
	return offsets
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// GeneratePreamble generates the kernel preamble: typedefs, constants and
// partition access macros for every allocated array.
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString(kb.generateTypeDefinitions())
	sb.WriteString(kb.generatePartitionMacros())

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("typedef %s elem_t;\n", CTypeName(kb.ElemType)))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", CTypeName(kb.IntType)))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString("\n")

	return sb.String()
}

// generatePartitionMacros creates macros for partition data access
func (kb *Builder) generatePartitionMacros() string {
	var sb strings.Builder

	sb.WriteString("// Partition access macros\n")
	for _, arrayName := range kb.AllocatedArrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			arrayName, arrayName, arrayName))
	}
	if len(kb.AllocatedArrays) > 0 {
		sb.WriteString("\n")
	}

	return sb.String()
}

// CTypeName returns the C type used on the device for a DataType
func CTypeName(dt DataType) string {
	switch dt {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case INT32:
		return "int"
	default:
		return "long"
	}
}

// SizeOf returns the size in bytes of a data type
func SizeOf(dt DataType) int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}
