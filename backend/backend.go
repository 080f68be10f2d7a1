// Package backend provides the execution targets for the element-wise
// kernel. Every backend has one capability: run an operation over all
// partitions of a work division and return once every write to C is
// visible to the caller.
//
// Implementations:
//   - Serial: partitions run one after another on the calling goroutine
//   - Threads: partitions run on a bounded pool of goroutines
//   - OCCA: the kernel is compiled for an OCCA device (Serial, OpenMP,
//     CUDA, HIP or OpenCL) and run with host↔device copies around it
package backend

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/notargets/VecKernel/backend Backend,Preparer

// Backend executes an element-wise operation over a work division
type Backend interface {
	// Name identifies the backend in logs and reports.
	Name() string

	// Execute applies op to every partition of wd. It returns after all
	// partitions have completed.
	Execute(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error

	// Close releases any resources held by the backend.
	Close() error
}

// Preparer is implemented by backends that have setup work (allocation,
// input transfer, compilation) which should run before the timed section.
type Preparer interface {
	Prepare(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error
}

// Kind names a backend implementation
type Kind string

const (
	KindSerial  Kind = "serial"
	KindThreads Kind = "threads"
	KindOCCA    Kind = "occa"
)

// ParseKind maps a CLI name onto a Kind
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(name)); k {
	case KindSerial, KindThreads, KindOCCA:
		return k, nil
	}
	return "", xerrors.Errorf("unknown backend %q", name)
}

// Config encapsulates the settings for creating a backend.
type Config struct {
	// Kind selects the implementation.
	Kind Kind

	// Workers bounds the goroutine pool of the threads backend. If not
	// specified, runtime.NumCPU() is used.
	Workers int

	// OCCAMode is the OCCA device mode for the occa backend. If not
	// specified, Serial is used.
	OCCAMode string

	// DeviceID is forwarded to GPU OCCA modes. Other backends accept it and
	// ignore it.
	DeviceID int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if _, kindErr := ParseKind(string(cfg.Kind)); kindErr != nil {
		err = multierror.Append(err, kindErr)
	}
	if cfg.Workers < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for workers: %d", cfg.Workers))
	} else if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.DeviceID < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid device id: %d", cfg.DeviceID))
	}
	if cfg.OCCAMode == "" {
		cfg.OCCAMode = "Serial"
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = logrus.NewEntry(l)
	}
	return err
}

// New creates the backend selected by cfg
func New(cfg Config) (Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("backend config validation failed: %w", err)
	}

	logger := cfg.Logger.WithField("backend", string(cfg.Kind))
	switch cfg.Kind {
	case KindSerial:
		logger.WithField("device_id", cfg.DeviceID).Debug("device id has no effect on the serial backend")
		return NewSerial(), nil
	case KindThreads:
		logger.WithFields(logrus.Fields{
			"device_id": cfg.DeviceID,
			"workers":   cfg.Workers,
		}).Debug("device id has no effect on the threads backend")
		return NewThreads(cfg.Workers), nil
	default:
		return NewOCCA(cfg.OCCAMode, cfg.DeviceID, logger)
	}
}

// checkInputs enforces the preconditions shared by all backends
func checkInputs(wd partitions.WorkDivision, v *kernel.Vectors) error {
	if v == nil {
		return fmt.Errorf("vectors cannot be nil")
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if v.N != wd.N {
		return fmt.Errorf("work division covers %d elements, vectors hold %d", wd.N, v.N)
	}
	if wd.N > 0 && wd.GroupSize <= 0 {
		return fmt.Errorf("group size must be positive, got %d", wd.GroupSize)
	}
	return nil
}
