// Package kernel holds the element-wise vector addition kernel in its two
// forms: a Go range function for the CPU backends and an OCCA source string
// for device backends. Both forms compute the same operation over one
// partition [lo, hi) at a time.
//
// Two operations are provided. Accumulate (C[i] = C[i] + B[i]) reproduces
// the reference program, which never reads A; with C zeroed it leaves
// C == B rather than A+B. Sum (C[i] = A[i] + B[i]) is the element-wise
// sum the reference program evidently intended.
package kernel

import (
	"fmt"
	"strings"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Op selects the element-wise operation
type Op int

const (
	// Accumulate computes C[i] = C[i] + B[i]
	Accumulate Op = iota
	// Sum computes C[i] = A[i] + B[i]
	Sum
)

func (op Op) String() string {
	switch op {
	case Accumulate:
		return "accumulate"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// ParseOp maps a CLI name onto an Op
func ParseOp(name string) (Op, error) {
	switch strings.ToLower(name) {
	case "accumulate", "acc":
		return Accumulate, nil
	case "sum":
		return Sum, nil
	}
	return 0, fmt.Errorf("unknown op %q", name)
}

// Element is the set of element types a vector may hold
type Element interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Apply runs op over [lo, hi). Callers guarantee 0 <= lo <= hi <= len(c).
func Apply[T Element](op Op, a, b, c []T, lo, hi int) {
	if op == Sum {
		for i := lo; i < hi; i++ {
			c[i] = a[i] + b[i]
		}
		return
	}
	for i := lo; i < hi; i++ {
		c[i] = c[i] + b[i]
	}
}

// applyFloat64 uses the block routines from algo-vecmath
func applyFloat64(op Op, a, b, c []float64, lo, hi int) {
	if hi <= lo {
		return
	}
	if op == Sum {
		copy(c[lo:hi], a[lo:hi])
	}
	vecmath.AddBlockInPlace(c[lo:hi], b[lo:hi])
}

// ApplyRange dispatches on the element type of v and runs op over [lo, hi)
func ApplyRange(op Op, v *Vectors, lo, hi int) {
	switch c := v.C.(type) {
	case []int32:
		Apply(op, v.A.([]int32), v.B.([]int32), c, lo, hi)
	case []int64:
		Apply(op, v.A.([]int64), v.B.([]int64), c, lo, hi)
	case []float32:
		Apply(op, v.A.([]float32), v.B.([]float32), c, lo, hi)
	case []float64:
		applyFloat64(op, v.A.([]float64), v.B.([]float64), c, lo, hi)
	}
}
