package kernel

import (
	"fmt"
	"reflect"

	"github.com/notargets/VecKernel/runner/builder"
)

// Vectors holds the three host arrays of one run. A and B are read-only,
// C is the output. All three are slices of the same element type.
type Vectors struct {
	A, B, C interface{}
	Type    builder.DataType
	N       int
}

// NewVectors allocates host vectors with A[i] = B[i] = i and C zeroed
func NewVectors(dt builder.DataType, n int) (*Vectors, error) {
	if n < 0 {
		return nil, fmt.Errorf("vector length must be non-negative, got %d", n)
	}
	v := &Vectors{Type: dt, N: n}
	switch dt {
	case builder.INT32:
		v.A, v.B, v.C = ramp[int32](n), ramp[int32](n), make([]int32, n)
	case builder.INT64:
		v.A, v.B, v.C = ramp[int64](n), ramp[int64](n), make([]int64, n)
	case builder.Float32:
		v.A, v.B, v.C = ramp[float32](n), ramp[float32](n), make([]float32, n)
	case builder.Float64:
		v.A, v.B, v.C = ramp[float64](n), ramp[float64](n), make([]float64, n)
	default:
		return nil, fmt.Errorf("unsupported element type %v", dt)
	}
	return v, nil
}

// Wrap builds Vectors over caller-owned slices
func Wrap[T Element](a, b, c []T) (*Vectors, error) {
	var sample T
	v := &Vectors{A: a, B: b, C: c, N: len(c)}
	switch any(sample).(type) {
	case int32:
		v.Type = builder.INT32
	case int64:
		v.Type = builder.INT64
	case float32:
		v.Type = builder.Float32
	case float64:
		v.Type = builder.Float64
	default:
		return nil, fmt.Errorf("unsupported element type %T", sample)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func ramp[T Element](n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = T(i)
	}
	return out
}

// Validate checks that A, B and C are slices of the declared type and
// length N
func (v *Vectors) Validate() error {
	for _, arr := range []struct {
		name string
		data interface{}
	}{{"A", v.A}, {"B", v.B}, {"C", v.C}} {
		if arr.data == nil {
			return fmt.Errorf("vector %s is nil", arr.name)
		}
		rv := reflect.ValueOf(arr.data)
		if rv.Kind() != reflect.Slice {
			return fmt.Errorf("vector %s is %T, not a slice", arr.name, arr.data)
		}
		if rv.Len() != v.N {
			return fmt.Errorf("vector %s has length %d, expected %d", arr.name, rv.Len(), v.N)
		}
		if reflect.TypeOf(arr.data) != reflect.TypeOf(v.C) {
			return fmt.Errorf("vector %s is %T, C is %T", arr.name, arr.data, v.C)
		}
	}
	return nil
}

// Reset zeroes C
func (v *Vectors) Reset() {
	switch c := v.C.(type) {
	case []int32:
		clear(c)
	case []int64:
		clear(c)
	case []float32:
		clear(c)
	case []float64:
		clear(c)
	}
}

// At returns the i-th element of A, B and C
func (v *Vectors) At(i int) (a, b, c interface{}) {
	av := reflect.ValueOf(v.A).Index(i).Interface()
	bv := reflect.ValueOf(v.B).Index(i).Interface()
	cv := reflect.ValueOf(v.C).Index(i).Interface()
	return av, bv, cv
}
