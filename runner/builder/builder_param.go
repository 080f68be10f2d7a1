package builder

import (
	"fmt"
	"reflect"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionInOut
)

// ParamBuilder provides a fluent interface for building kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec holds the complete specification for a kernel parameter
type ParamSpec struct {
	Name        string
	Direction   Direction
	HostBinding interface{}

	// Type and size (inferred from the binding)
	DataType DataType
	Size     int64
}

// Input creates a parameter specification for a const input
func Input(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInput,
		},
	}
}

// InOut creates a parameter specification for a non-const input/output
func InOut(deviceName string) *ParamBuilder {
	return &ParamBuilder{
		Spec: ParamSpec{
			Name:      deviceName,
			Direction: DirectionInOut,
		},
	}
}

// Bind associates a host slice with this parameter
func (p *ParamBuilder) Bind(hostVar interface{}) *ParamBuilder {
	p.Spec.HostBinding = hostVar
	p.inferFromBinding()
	return p
}

// inferFromBinding extracts type and size information from the host binding
func (p *ParamBuilder) inferFromBinding() {
	if p.Spec.HostBinding == nil {
		return
	}

	v := reflect.ValueOf(p.Spec.HostBinding)
	t := v.Type()
	if t.Kind() != reflect.Slice {
		return
	}
	p.Spec.Size = int64(v.Len())

	switch t.Elem().Kind() {
	case reflect.Float32:
		p.Spec.DataType = Float32
	case reflect.Float64:
		p.Spec.DataType = Float64
	case reflect.Int32:
		p.Spec.DataType = INT32
	case reflect.Int64:
		p.Spec.DataType = INT64
	}
}

// Validate checks if the parameter specification is complete and valid
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if p.HostBinding == nil {
		return fmt.Errorf("array %s needs a host binding", p.Name)
	}
	if p.DataType == 0 {
		return fmt.Errorf("array %s has unsupported host type %T", p.Name, p.HostBinding)
	}
	return nil
}

// IsConst returns whether this parameter should be const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	return p.Direction == DirectionInput
}
