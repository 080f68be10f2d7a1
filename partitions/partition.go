package partitions

import (
	"fmt"
)

// Partition is one contiguous chunk of the index range, processed by a
// single logical worker. The chunk is the half-open range [Start, End).
type Partition struct {
	ID    int
	Start int
	End   int
}

// Len returns the number of elements in the partition
func (p Partition) Len() int {
	return p.End - p.Start
}

// WorkDivision describes how [0, N) is split across groups of GroupSize
// workers. Every group owns one partition; the last may be shorter.
type WorkDivision struct {
	N                 int // Vector length
	GroupSize         int // Threads per group
	Groups            int // ceil(N / GroupSize)
	ElementsPerThread int
}

// NewWorkDivision validates n and g and computes the group count
func NewWorkDivision(n, g int) (WorkDivision, error) {
	if n < 0 {
		return WorkDivision{}, fmt.Errorf("vector length must be non-negative, got %d", n)
	}
	if g <= 0 {
		return WorkDivision{}, fmt.Errorf("group size must be positive, got %d", g)
	}
	return WorkDivision{
		N:                 n,
		GroupSize:         g,
		Groups:            n/g + boolToInt(n%g != 0),
		ElementsPerThread: 1,
	}, nil
}

// Partition returns chunk p, clipped to N
func (wd WorkDivision) Partition(p int) Partition {
	start := p * wd.GroupSize
	end := start + wd.GroupSize
	if end > wd.N {
		end = wd.N
	}
	return Partition{ID: p, Start: start, End: end}
}

// Partitions returns every chunk in index order
func (wd WorkDivision) Partitions() []Partition {
	parts := make([]Partition, wd.Groups)
	for p := range parts {
		parts[p] = wd.Partition(p)
	}
	return parts
}

// K returns the element count of every partition, the layout the OCCA
// runner expects
func (wd WorkDivision) K() []int {
	k := make([]int, wd.Groups)
	for p := range k {
		k[p] = wd.Partition(p).Len()
	}
	return k
}

// String renders the division for logs
func (wd WorkDivision) String() string {
	return fmt.Sprintf("N=%d groups=%d groupSize=%d", wd.N, wd.Groups, wd.GroupSize)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
