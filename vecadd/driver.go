package vecadd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/notargets/VecKernel/backend"
	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Config encapsulates the settings for a driver run.
type Config struct {
	// Exec is the validated run configuration.
	Exec ExecutionConfig

	// Backend executes the kernel. The driver does not close it.
	Backend backend.Backend

	// A clock instance for timing kernel runs. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	// Metrics receives one observation per run. Optional.
	Metrics *Metrics

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if vErr := cfg.Exec.Validate(); vErr != nil {
		err = multierror.Append(err, vErr)
	}
	if cfg.Backend == nil {
		err = multierror.Append(err, xerrors.Errorf("backend has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = logrus.NewEntry(l)
	}
	return err
}

// Report is the outcome of a driver run
type Report struct {
	Backend   string
	Division  partitions.WorkDivision
	Vectors   *kernel.Vectors
	Durations []time.Duration
}

// Run allocates the host vectors, runs the kernel Exec.Repeat times on the
// configured backend and returns the timings. Setup work of backends that
// implement backend.Preparer runs before the first timed section.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("config validation failed: %w", err)
	}
	exec := cfg.Exec

	wd, err := partitions.NewWorkDivision(exec.VectorSize, exec.ThreadsPerGroup)
	if err != nil {
		return nil, err
	}
	v, err := kernel.NewVectors(exec.ElemType, exec.VectorSize)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.WithFields(logrus.Fields{
		"backend":    cfg.Backend.Name(),
		"n":          wd.N,
		"groups":     wd.Groups,
		"group_size": wd.GroupSize,
		"op":         exec.Op.String(),
		"type":       exec.ElemType.String(),
	})
	stats := wd.Statistics()
	logger.WithFields(logrus.Fields{
		"min_chunk": stats.MinElements,
		"max_chunk": stats.MaxElements,
		"imbalance": stats.Imbalance,
	}).Debug("work division")
	if cfg.Metrics != nil {
		cfg.Metrics.Groups.Set(float64(wd.Groups))
		cfg.Metrics.GroupSize.Set(float64(wd.GroupSize))
	}

	if p, ok := cfg.Backend.(backend.Preparer); ok {
		if err := p.Prepare(ctx, wd, exec.Op, v); err != nil {
			return nil, xerrors.Errorf("prepare failed: %w", err)
		}
	}

	report := &Report{
		Backend:   cfg.Backend.Name(),
		Division:  wd,
		Vectors:   v,
		Durations: make([]time.Duration, 0, exec.Repeat),
	}
	for run := 0; run < exec.Repeat; run++ {
		if run > 0 && exec.Reset {
			v.Reset()
		}

		start := cfg.Clock.Now()
		if err := cfg.Backend.Execute(ctx, wd, exec.Op, v); err != nil {
			return nil, xerrors.Errorf("run %d: %w", run, err)
		}
		elapsed := cfg.Clock.Now().Sub(start)

		report.Durations = append(report.Durations, elapsed)
		if cfg.Metrics != nil {
			cfg.Metrics.observeRun(elapsed, wd.N)
		}
		logger.WithFields(logrus.Fields{
			"run":      run,
			"duration": elapsed,
		}).Debug("kernel run completed")
	}

	logger.WithField("runs", exec.Repeat).Info("vector addition completed")
	return report, nil
}

// Last returns the duration of the final run
func (r *Report) Last() time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	return r.Durations[len(r.Durations)-1]
}

// PerElement returns the final run's duration in seconds divided by N, or
// zero for an empty vector
func (r *Report) PerElement() float64 {
	if r.Division.N == 0 {
		return 0
	}
	return r.Last().Seconds() / float64(r.Division.N)
}

// Summary holds statistics over all runs, in seconds
type Summary struct {
	Runs   int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summary computes statistics over every run's duration
func (r *Report) Summary() Summary {
	secs := make([]float64, len(r.Durations))
	for i, d := range r.Durations {
		secs[i] = d.Seconds()
	}
	s := Summary{Runs: len(secs)}
	if len(secs) == 0 {
		return s
	}
	s.Min, s.Max = floats.Min(secs), floats.Max(secs)
	if len(secs) == 1 {
		s.Mean = secs[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(secs, nil)
	return s
}

// Print writes the console report. With quiet set the per-element lines
// are skipped.
func (r *Report) Print(w io.Writer, quiet bool) error {
	if !quiet {
		for i := 0; i < r.Vectors.N; i++ {
			a, b, c := r.Vectors.At(i)
			if _, err := fmt.Fprintf(w, "%v + %v = %v\n", a, b, c); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(w, "Kernel duration: %g s\n", r.Last().Seconds()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Time per kernel: %g\n", r.PerElement()); err != nil {
		return err
	}
	if len(r.Durations) > 1 {
		s := r.Summary()
		_, err := fmt.Fprintf(w, "Runs: %d mean: %g s stddev: %g s min: %g s max: %g s\n",
			s.Runs, s.Mean, s.StdDev, s.Min, s.Max)
		return err
	}
	return nil
}

// Header returns the line printed before the run starts
func Header(exec ExecutionConfig) string {
	return fmt.Sprintf("Adding vectors of size %d with %d threads", exec.VectorSize, exec.ThreadsPerGroup)
}
