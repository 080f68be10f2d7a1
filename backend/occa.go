package backend

import (
	"context"
	"fmt"
	"slices"

	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
	"github.com/notargets/VecKernel/runner"
	"github.com/notargets/VecKernel/runner/builder"
	"github.com/notargets/VecKernel/utils"
	"github.com/notargets/gocca"
	"github.com/sirupsen/logrus"
)

// OCCA runs the kernel on an OCCA device. Prepare allocates device memory,
// uploads A and B and compiles the kernel; Execute uploads C, launches,
// waits for the device and copies C back.
type OCCA struct {
	device   *gocca.OCCADevice
	mode     string
	deviceID int
	logger   *logrus.Entry

	prepared *occaRun
}

// occaRun is the device state for one (division, op, vectors) triple
type occaRun struct {
	kr *runner.Runner
	wd partitions.WorkDivision
	op kernel.Op
	v  *kernel.Vectors
}

// NewOCCA creates a backend on the OCCA device for mode and deviceID
func NewOCCA(mode string, deviceID int, logger *logrus.Entry) (*OCCA, error) {
	device, err := utils.CreateDevice(mode, deviceID)
	if err != nil {
		return nil, err
	}
	return NewOCCAFromDevice(device, deviceID, logger), nil
}

// NewOCCAFromDevice wraps an existing device. The backend takes ownership
// and frees it on Close.
func NewOCCAFromDevice(device *gocca.OCCADevice, deviceID int, logger *logrus.Entry) *OCCA {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger.WithFields(logrus.Fields{
		"mode":      device.Mode(),
		"device_id": deviceID,
	}).Debug("created OCCA device")
	return &OCCA{device: device, mode: device.Mode(), deviceID: deviceID, logger: logger}
}

func (o *OCCA) Name() string {
	return fmt.Sprintf("%s(%s)", KindOCCA, o.mode)
}

// Mode returns the OCCA device mode
func (o *OCCA) Mode() string { return o.mode }

// Prepare sets up device state for a run; Execute calls it on demand when
// the arguments differ from the prepared ones
func (o *OCCA) Prepare(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error {
	if o.device == nil {
		return fmt.Errorf("OCCA backend is closed")
	}
	if err := checkInputs(wd, v); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.release()
	if wd.Groups == 0 {
		o.prepared = &occaRun{wd: wd, op: op, v: v}
		return nil
	}

	kr, err := runner.NewRunner(o.device, builder.Config{
		K:        wd.K(),
		KpartMax: wd.GroupSize,
		ElemType: v.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}
	if err := o.setup(kr, op, v); err != nil {
		kr.Free()
		return err
	}

	o.prepared = &occaRun{kr: kr, wd: wd, op: op, v: v}
	o.logger.WithFields(logrus.Fields{
		"groups":     wd.Groups,
		"group_size": wd.GroupSize,
		"op":         op.String(),
	}).Debug("prepared OCCA kernel")
	return nil
}

func (o *OCCA) setup(kr *runner.Runner, op kernel.Op, v *kernel.Vectors) error {
	err := kr.DefineBindings(
		builder.Input("A").Bind(v.A),
		builder.Input("B").Bind(v.B),
		builder.InOut("C").Bind(v.C),
	)
	if err != nil {
		return fmt.Errorf("failed to define bindings: %w", err)
	}
	if err = kr.AllocateDevice(); err != nil {
		return fmt.Errorf("failed to allocate device memory: %w", err)
	}
	if _, err = kr.ConfigureKernel(kernel.Name,
		kr.Param("A"),
		kr.Param("B"),
		kr.Param("C").Copy(),
	); err != nil {
		return fmt.Errorf("failed to configure kernel: %w", err)
	}

	for _, name := range []string{"A", "B"} {
		if err = kr.CopyToDevice(name); err != nil {
			return err
		}
	}

	signature, err := kr.GetKernelSignature(kernel.Name)
	if err != nil {
		return err
	}
	if _, err = kr.BuildKernel(kernel.Source(op, signature), kernel.Name); err != nil {
		return err
	}
	return nil
}

func (o *OCCA) Execute(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error {
	if !o.isPrepared(wd, op, v) {
		if err := o.Prepare(ctx, wd, op, v); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	if wd.Groups == 0 {
		return nil
	}
	if err := o.prepared.kr.ExecuteKernel(kernel.Name); err != nil {
		return fmt.Errorf("OCCA %s: %w", o.mode, err)
	}
	if o.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return o.verifyTail()
	}
	return nil
}

// verifyTail reads the trailing, possibly short, partition of C back from
// the device and compares it with the host copy
func (o *OCCA) verifyTail() error {
	run := o.prepared
	last := run.wd.Groups - 1
	part := run.wd.Partition(last)

	var (
		match bool
		err   error
	)
	switch c := run.v.C.(type) {
	case []int32:
		match, err = partitionMatches(run.kr, c[part.Start:part.End], last)
	case []int64:
		match, err = partitionMatches(run.kr, c[part.Start:part.End], last)
	case []float32:
		match, err = partitionMatches(run.kr, c[part.Start:part.End], last)
	case []float64:
		match, err = partitionMatches(run.kr, c[part.Start:part.End], last)
	default:
		return fmt.Errorf("unsupported element type %T", run.v.C)
	}
	if err != nil {
		return fmt.Errorf("reading back partition %d: %w", last, err)
	}
	if !match {
		return fmt.Errorf("OCCA %s: partition %d of C differs between device and host", o.mode, last)
	}

	o.logger.WithFields(logrus.Fields{
		"partition": last,
		"start":     part.Start,
		"end":       part.End,
	}).Debug("verified trailing partition")
	return nil
}

func partitionMatches[T kernel.Element](kr *runner.Runner, host []T, partitionID int) (bool, error) {
	device, err := runner.CopyPartitionToHost[T](kr, "C", partitionID)
	if err != nil {
		return false, err
	}
	return slices.Equal(device, host), nil
}

func (o *OCCA) isPrepared(wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) bool {
	p := o.prepared
	return p != nil && p.wd == wd && p.op == op && p.v == v
}

func (o *OCCA) release() {
	if o.prepared != nil && o.prepared.kr != nil {
		o.prepared.kr.Free()
	}
	o.prepared = nil
}

// Close frees all device memory, kernels and the device itself
func (o *OCCA) Close() error {
	o.release()
	if o.device != nil {
		o.device.Free()
		o.device = nil
	}
	return nil
}
