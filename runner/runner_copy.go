package runner

import (
	"fmt"
	"unsafe"
)

// CopyPartitionToHost reads one partition of a device array
func CopyPartitionToHost[T any](kr *Runner, name string, partitionID int) ([]T, error) {
	if partitionID < 0 || partitionID >= kr.NumPartitions {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", partitionID, kr.NumPartitions)
	}
	binding := kr.GetBinding(name)
	if binding == nil {
		return nil, fmt.Errorf("array %s not found", name)
	}

	var sample T
	if requestedType := GetDataTypeFromSample(sample); requestedType != binding.DataType {
		return nil, fmt.Errorf("type mismatch: array is %v, requested %v",
			binding.DataType, requestedType)
	}

	memory := kr.GetMemory(name)
	if memory == nil {
		return nil, fmt.Errorf("memory for %s not found", name)
	}

	offsets := kr.CalculateOffsets()
	elementSize := int64(unsafe.Sizeof(sample))
	result := make([]T, kr.K[partitionID])
	if len(result) > 0 {
		memory.CopyToWithOffset(
			unsafe.Pointer(&result[0]),
			int64(len(result))*elementSize,
			offsets[partitionID]*elementSize,
		)
	}
	return result, nil
}
