package vecadd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/juju/clock/testclock"
	"github.com/notargets/VecKernel/backend"
	"github.com/notargets/VecKernel/backend/mocks"
	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
	"github.com/notargets/VecKernel/runner/builder"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// preparingBackend joins the two generated mocks so the driver sees a
// backend.Preparer
type preparingBackend struct {
	*mocks.MockBackend
	*mocks.MockPreparer
}

func execConfig(n, g int) ExecutionConfig {
	cfg := DefaultExecutionConfig()
	cfg.VectorSize = n
	cfg.ThreadsPerGroup = g
	return cfg
}

func TestRun_TimesExecuteWithClock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clk := testclock.NewClock(time.Now())
	be := mocks.NewMockBackend(ctrl)
	be.EXPECT().Name().Return("mock").AnyTimes()

	expDivision, err := partitions.NewWorkDivision(5, 2)
	require.NoError(t, err)
	be.EXPECT().Execute(gomock.Any(), expDivision, kernel.Accumulate, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ partitions.WorkDivision, _ kernel.Op, v *kernel.Vectors) error {
			clk.Advance(250 * time.Millisecond)
			return nil
		},
	)

	report, err := Run(context.Background(), Config{
		Exec:    execConfig(5, 2),
		Backend: be,
		Clock:   clk,
	})
	require.NoError(t, err)

	assert.Equal(t, "mock", report.Backend)
	assert.Equal(t, expDivision, report.Division)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, report.Durations)
	assert.Equal(t, 250*time.Millisecond, report.Last())
	assert.InDelta(t, 0.05, report.PerElement(), 1e-12)
}

func TestRun_PrepareBeforeTimedSection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clk := testclock.NewClock(time.Now())
	be := preparingBackend{
		MockBackend:  mocks.NewMockBackend(ctrl),
		MockPreparer: mocks.NewMockPreparer(ctrl),
	}
	be.MockBackend.EXPECT().Name().Return("mock").AnyTimes()

	gomock.InOrder(
		be.MockPreparer.EXPECT().Prepare(gomock.Any(), gomock.Any(), kernel.Sum, gomock.Any()).DoAndReturn(
			func(context.Context, partitions.WorkDivision, kernel.Op, *kernel.Vectors) error {
				// setup time is not part of the kernel duration
				clk.Advance(time.Hour)
				return nil
			},
		),
		be.MockBackend.EXPECT().Execute(gomock.Any(), gomock.Any(), kernel.Sum, gomock.Any()).DoAndReturn(
			func(context.Context, partitions.WorkDivision, kernel.Op, *kernel.Vectors) error {
				clk.Advance(time.Second)
				return nil
			},
		),
	)

	exec := execConfig(4, 4)
	exec.Op = kernel.Sum
	report, err := Run(context.Background(), Config{Exec: exec, Backend: be, Clock: clk})
	require.NoError(t, err)
	assert.Equal(t, time.Second, report.Last())
}

func TestRun_PrepareError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	be := preparingBackend{
		MockBackend:  mocks.NewMockBackend(ctrl),
		MockPreparer: mocks.NewMockPreparer(ctrl),
	}
	be.MockBackend.EXPECT().Name().Return("mock").AnyTimes()
	be.MockPreparer.EXPECT().Prepare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(xerrors.New("no device"))

	_, err := Run(context.Background(), Config{Exec: execConfig(4, 2), Backend: be})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
}

func TestRun_ExecuteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	be := mocks.NewMockBackend(ctrl)
	be.EXPECT().Name().Return("mock").AnyTimes()
	be.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(xerrors.New("launch failed"))

	exec := execConfig(4, 2)
	exec.Repeat = 3
	_, err := Run(context.Background(), Config{Exec: exec, Backend: be})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 0")
}

func TestRun_ConfigValidation(t *testing.T) {
	_, err := Run(context.Background(), Config{Exec: execConfig(4, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend has not been provided")
	assert.Contains(t, err.Error(), "threads per group must be positive")
}

func TestRun_SerialExample(t *testing.T) {
	report, err := Run(context.Background(), Config{
		Exec:    execConfig(5, 2),
		Backend: backend.NewSerial(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, report.Vectors.C)
	assert.Equal(t, 3, report.Division.Groups)
}

func TestRun_RepeatReset(t *testing.T) {
	exec := execConfig(6, 4)
	exec.Repeat = 3

	report, err := Run(context.Background(), Config{Exec: exec, Backend: backend.NewThreads(2)})
	require.NoError(t, err)
	assert.Len(t, report.Durations, 3)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5}, report.Vectors.C)

	exec.Reset = false
	report, err = Run(context.Background(), Config{Exec: exec, Backend: backend.NewThreads(2)})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 3, 6, 9, 12, 15}, report.Vectors.C)
}

func TestRun_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clk := testclock.NewClock(time.Now())
	be := mocks.NewMockBackend(ctrl)
	be.EXPECT().Name().Return("mock").AnyTimes()
	be.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, partitions.WorkDivision, kernel.Op, *kernel.Vectors) error {
			clk.Advance(time.Millisecond)
			return nil
		},
	).Times(4)

	exec := execConfig(10, 3)
	exec.Repeat = 4
	metrics := NewMetrics("mock")
	_, err := Run(context.Background(), Config{Exec: exec, Backend: be, Clock: clk, Metrics: metrics})
	require.NoError(t, err)

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.Runs))
	assert.Equal(t, float64(40), testutil.ToFloat64(metrics.Elements))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.Groups))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.GroupSize))

	path := filepath.Join(t.TempDir(), "vecadd.prom")
	require.NoError(t, metrics.WriteFile(path))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `vecadd_kernel_runs_total{backend="mock"} 4`)
	assert.Contains(t, string(contents), "vecadd_kernel_duration_seconds_count")
}

func TestReport_Summary(t *testing.T) {
	r := &Report{Durations: []time.Duration{time.Second, 3 * time.Second}}
	s := r.Summary()
	assert.Equal(t, 2, s.Runs)
	assert.InDelta(t, 2.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.4142135623730951, s.StdDev, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)

	single := (&Report{Durations: []time.Duration{time.Second}}).Summary()
	assert.Equal(t, 1.0, single.Mean)
	assert.Equal(t, 0.0, single.StdDev)

	assert.Equal(t, Summary{}, (&Report{}).Summary())
}

func TestReport_Print(t *testing.T) {
	v, err := kernel.NewVectors(builder.INT32, 3)
	require.NoError(t, err)
	copy(v.C.([]int32), []int32{0, 1, 2})
	wd, err := partitions.NewWorkDivision(3, 2)
	require.NoError(t, err)

	r := &Report{Division: wd, Vectors: v, Durations: []time.Duration{3 * time.Second}}

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf, false))
	assert.Equal(t, strings.Join([]string{
		"0 + 0 = 0",
		"1 + 1 = 1",
		"2 + 2 = 2",
		"Kernel duration: 3 s",
		"Time per kernel: 1",
		"",
	}, "\n"), buf.String())

	buf.Reset()
	require.NoError(t, r.Print(&buf, true))
	assert.Equal(t, "Kernel duration: 3 s\nTime per kernel: 1\n", buf.String())

	r.Durations = append(r.Durations, time.Second)
	buf.Reset()
	require.NoError(t, r.Print(&buf, true))
	assert.Contains(t, buf.String(), "Runs: 2 mean: 2 s")
}

func TestReport_EmptyVector(t *testing.T) {
	v, err := kernel.NewVectors(builder.INT32, 0)
	require.NoError(t, err)
	wd, err := partitions.NewWorkDivision(0, 8)
	require.NoError(t, err)

	r := &Report{Division: wd, Vectors: v, Durations: []time.Duration{time.Microsecond}}
	assert.Equal(t, 0.0, r.PerElement())

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf, false))
	assert.Equal(t, "Kernel duration: 1e-06 s\nTime per kernel: 0\n", buf.String())
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "Adding vectors of size 5 with 2 threads", Header(execConfig(5, 2)))
}
