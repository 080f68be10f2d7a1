package backend

import (
	"context"
	"runtime"
	"testing"

	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
	"github.com/notargets/VecKernel/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpuBackends() []Backend {
	return []Backend{NewSerial(), NewThreads(1), NewThreads(4), NewThreads(64)}
}

func mustDivision(t *testing.T, n, g int) partitions.WorkDivision {
	wd, err := partitions.NewWorkDivision(n, g)
	require.NoError(t, err)
	return wd
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"serial", "threads", "OCCA"} {
		_, err := ParseKind(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseKind("fpga")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Kind: "fpga", Workers: -1, DeviceID: -2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
	assert.Contains(t, err.Error(), "invalid value for workers")
	assert.Contains(t, err.Error(), "invalid device id")

	be, err := New(Config{Kind: KindSerial, DeviceID: 3})
	require.NoError(t, err)
	assert.Equal(t, "serial", be.Name())

	be, err = New(Config{Kind: KindThreads})
	require.NoError(t, err)
	require.IsType(t, &Threads{}, be)
	assert.Equal(t, runtime.NumCPU(), be.(*Threads).Workers())
}

func TestExecute_ExampleSmall(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.INT32, 5)
			require.NoError(t, err)

			require.NoError(t, be.Execute(context.Background(), mustDivision(t, 5, 2), kernel.Accumulate, v))
			assert.Equal(t, []int32{0, 1, 2, 3, 4}, v.C)
		})
	}
}

func TestExecute_SumMatchesElementwise(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.INT64, 1000)
			require.NoError(t, err)

			require.NoError(t, be.Execute(context.Background(), mustDivision(t, 1000, 7), kernel.Sum, v))
			c := v.C.([]int64)
			for i := range c {
				require.Equal(t, int64(2*i), c[i], "index %d", i)
			}
		})
	}
}

// Accumulate run twice without a reset adds B into C twice
func TestExecute_AccumulateTwice(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.Float32, 9)
			require.NoError(t, err)
			wd := mustDivision(t, 9, 4)

			require.NoError(t, be.Execute(context.Background(), wd, kernel.Accumulate, v))
			require.NoError(t, be.Execute(context.Background(), wd, kernel.Accumulate, v))
			for i, c := range v.C.([]float32) {
				assert.Equal(t, float32(2*i), c)
			}
		})
	}
}

func TestExecute_TrailingPartialGroup(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			a := []int32{1, 1, 1, 1, 1, 1, 1}
			b := []int32{1, 2, 3, 4, 5, 6, 7}
			c := make([]int32, 7)
			v, err := kernel.Wrap(a, b, c)
			require.NoError(t, err)

			require.NoError(t, be.Execute(context.Background(), mustDivision(t, 7, 3), kernel.Sum, v))
			assert.Equal(t, []int32{2, 3, 4, 5, 6, 7, 8}, c)
		})
	}
}

func TestExecute_Empty(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.INT32, 0)
			require.NoError(t, err)
			assert.NoError(t, be.Execute(context.Background(), mustDivision(t, 0, 16), kernel.Accumulate, v))
		})
	}
}

func TestExecute_GroupLargerThanVector(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.Float64, 3)
			require.NoError(t, err)
			require.NoError(t, be.Execute(context.Background(), mustDivision(t, 3, 1024), kernel.Sum, v))
			assert.Equal(t, []float64{0, 2, 4}, v.C)
		})
	}
}

func TestExecute_InputErrors(t *testing.T) {
	for _, be := range cpuBackends() {
		t.Run(be.Name(), func(t *testing.T) {
			v, err := kernel.NewVectors(builder.INT32, 4)
			require.NoError(t, err)

			err = be.Execute(context.Background(), mustDivision(t, 5, 2), kernel.Sum, v)
			assert.Error(t, err, "length mismatch")

			err = be.Execute(context.Background(), mustDivision(t, 4, 2), kernel.Sum, nil)
			assert.Error(t, err, "nil vectors")

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err = be.Execute(ctx, mustDivision(t, 4, 2), kernel.Sum, v)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, []int32{0, 0, 0, 0}, v.C)
		})
	}
}

func TestThreads_Workers(t *testing.T) {
	assert.Equal(t, 1, NewThreads(0).Workers())
	assert.Equal(t, 1, NewThreads(-5).Workers())
	assert.Equal(t, 8, NewThreads(8).Workers())
	assert.Equal(t, "threads(8)", NewThreads(8).Name())
}

// Handing out partitions must not cost memory per group: with G=1 there is
// one partition per element.
func TestThreads_MemoryIndependentOfGroups(t *testing.T) {
	const n = 200000
	v, err := kernel.NewVectors(builder.INT32, n)
	require.NoError(t, err)
	wd := mustDivision(t, n, 1)
	be := NewThreads(4)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	require.NoError(t, be.Execute(context.Background(), wd, kernel.Sum, v))
	runtime.ReadMemStats(&after)

	allocated := after.TotalAlloc - before.TotalAlloc
	assert.Less(t, allocated, uint64(64<<10),
		"Execute allocated %d bytes for %d groups", allocated, wd.Groups)

	c := v.C.([]int32)
	for i := range c {
		require.Equal(t, int32(2*i), c[i], "index %d", i)
	}
}
