package vecadd

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/notargets/VecKernel/backend"
	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/runner/builder"
	"golang.org/x/xerrors"
)

// UsageMessage is printed when the positional arguments are malformed
const UsageMessage = "Need three arguments: size of vector, number of threads / block and device to use"

// ErrUsage reports a malformed command line. No work is done after it.
var ErrUsage = xerrors.New("usage error")

// ExecutionConfig is the immutable description of one program run. It is
// built once from the command line, validated, and passed by value.
type ExecutionConfig struct {
	// VectorSize is the number of elements N.
	VectorSize int

	// ThreadsPerGroup is the group size G; the vector is split into
	// ceil(N/G) chunks of at most G elements.
	ThreadsPerGroup int

	// DeviceID is forwarded to GPU backends and ignored elsewhere.
	DeviceID int

	// Backend selects the execution target.
	Backend backend.Kind

	// OCCAMode is the OCCA device mode used by the occa backend.
	OCCAMode string

	// Workers bounds the goroutine pool of the threads backend; zero means
	// one per CPU.
	Workers int

	// Op selects C += B (as shipped) or C = A + B.
	Op kernel.Op

	// ElemType is the vector element type.
	ElemType builder.DataType

	// Repeat is the number of timed kernel runs.
	Repeat int

	// Reset zeroes C before every repeated run. Without it, repeated
	// accumulate runs add B into C once per run.
	Reset bool
}

// DefaultExecutionConfig returns the settings used when no flags are given
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Backend:  backend.KindThreads,
		OCCAMode: "Serial",
		Op:       kernel.Accumulate,
		ElemType: builder.INT32,
		Repeat:   1,
		Reset:    true,
	}
}

// Validate checks every field and reports all problems at once
func (c ExecutionConfig) Validate() error {
	var err error
	if c.VectorSize < 0 {
		err = multierror.Append(err, xerrors.Errorf("vector size must be non-negative, got %d", c.VectorSize))
	}
	if c.ThreadsPerGroup <= 0 {
		err = multierror.Append(err, xerrors.Errorf("threads per group must be positive, got %d", c.ThreadsPerGroup))
	} else if c.Backend == backend.KindOCCA && c.ThreadsPerGroup > builder.MaxKpart {
		err = multierror.Append(err, xerrors.Errorf("threads per group must not exceed %d on OCCA devices, got %d",
			builder.MaxKpart, c.ThreadsPerGroup))
	}
	if c.DeviceID < 0 {
		err = multierror.Append(err, xerrors.Errorf("device id must be non-negative, got %d", c.DeviceID))
	}
	if _, kindErr := backend.ParseKind(string(c.Backend)); kindErr != nil {
		err = multierror.Append(err, kindErr)
	}
	if c.Workers < 0 {
		err = multierror.Append(err, xerrors.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if c.Op != kernel.Accumulate && c.Op != kernel.Sum {
		err = multierror.Append(err, xerrors.Errorf("unknown op %v", c.Op))
	}
	switch c.ElemType {
	case builder.INT32, builder.INT64, builder.Float32, builder.Float64:
	default:
		err = multierror.Append(err, xerrors.Errorf("unsupported element type %v", c.ElemType))
	}
	if c.Repeat < 1 {
		err = multierror.Append(err, xerrors.Errorf("repeat must be at least 1, got %d", c.Repeat))
	}
	return err
}

// BackendConfig derives the backend settings from the run configuration
func (c ExecutionConfig) BackendConfig() backend.Config {
	return backend.Config{
		Kind:     c.Backend,
		Workers:  c.Workers,
		OCCAMode: c.OCCAMode,
		DeviceID: c.DeviceID,
	}
}

// ParseArgs reads <vector_size> <threads_per_group> <device_id> into base.
// Any other argument count, or a non-integer argument, yields ErrUsage.
func ParseArgs(base ExecutionConfig, args []string) (ExecutionConfig, error) {
	if len(args) != 3 {
		return base, xerrors.Errorf("expected 3 arguments, got %d: %w", len(args), ErrUsage)
	}
	var vals [3]int
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return base, xerrors.Errorf("argument %d (%q) is not an integer: %w", i+1, arg, ErrUsage)
		}
		vals[i] = v
	}
	base.VectorSize, base.ThreadsPerGroup, base.DeviceID = vals[0], vals[1], vals[2]
	return base, nil
}
