// Command vecadd adds two vectors element-wise on a selectable backend and
// reports the kernel time.
//
// Usage:
//
//	vecadd [flags] <vector_size> <threads_per_group> <device_id>
//
// Examples:
//
//	vecadd 5 2 0
//	vecadd --backend occa --occa-mode CUDA --quiet 1048576 256 0
//	vecadd --op sum --type float64 --repeat 10 --quiet 1000000 128 0
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/notargets/VecKernel/backend"
	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/runner/builder"
	"github.com/notargets/VecKernel/vecadd"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "vecadd"
	appSha  = "populated-at-link-time"
)

// usageExitCode is -1 as seen by the shell
const usageExitCode = 255

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

// run executes the command line and returns the process exit code. Program
// output, including the usage message, goes to stdout.
func run(args []string, stdout io.Writer) int {
	rootLogger := logrus.New()
	logger := rootLogger.WithFields(logrus.Fields{
		"app":    appName,
		"sha":    appSha,
		"run_id": uuid.New().String(),
	})

	app := makeApp(rootLogger, logger)
	app.Writer = stdout
	if err := execute(app, args); err != nil {
		if xerrors.Is(err, vecadd.ErrUsage) {
			fmt.Fprintln(stdout, vecadd.UsageMessage)
			return usageExitCode
		}
		logger.WithField("err", err).Error("shutting down due to error")
		return 1
	}
	return 0
}

// execute runs app on args after normalizeArgs
func execute(app *cli.App, args []string) error {
	return app.Run(normalizeArgs(app.Flags, args))
}

// normalizeArgs moves every flag ahead of the positional arguments and
// separates the two with "--". Negative integers are positionals, so they
// reach argument validation instead of being parsed as unknown flags, and
// flags given after the positionals still apply.
func normalizeArgs(flags []cli.Flag, args []string) []string {
	if len(args) == 0 {
		return args
	}
	noValue := map[string]bool{"help": true, "h": true, "version": true, "v": true}
	for _, f := range flags {
		if _, ok := f.(cli.BoolFlag); !ok {
			continue
		}
		for _, name := range strings.Split(f.GetName(), ",") {
			noValue[strings.TrimSpace(name)] = true
		}
	}

	var opts, positional []string
	for i := 1; i < len(args); i++ {
		tok := args[i]
		if tok == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if tok == "-" || !strings.HasPrefix(tok, "-") || isInteger(tok) {
			positional = append(positional, tok)
			continue
		}
		opts = append(opts, tok)
		name := strings.TrimLeft(tok, "-")
		if strings.Contains(name, "=") || noValue[name] {
			continue
		}
		if i+1 < len(args) {
			i++
			opts = append(opts, args[i])
		}
	}

	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	out = append(out, opts...)
	out = append(out, "--")
	return append(out, positional...)
}

func isInteger(tok string) bool {
	_, err := strconv.Atoi(tok)
	return err == nil
}

func makeApp(rootLogger *logrus.Logger, logger *logrus.Entry) *cli.App {
	defaults := vecadd.DefaultExecutionConfig()

	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "element-wise vector addition on CPU or OCCA devices"
	app.ArgsUsage = "<vector_size> <threads_per_group> <device_id>"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "backend",
			Value:  string(defaults.Backend),
			EnvVar: "VECADD_BACKEND",
			Usage:  "Execution backend: serial, threads or occa",
		},
		cli.StringFlag{
			Name:   "occa-mode",
			Value:  defaults.OCCAMode,
			EnvVar: "VECADD_OCCA_MODE",
			Usage:  "OCCA device mode for the occa backend: Serial, OpenMP, CUDA, HIP or OpenCL",
		},
		cli.IntFlag{
			Name:   "workers",
			EnvVar: "VECADD_WORKERS",
			Usage:  "Goroutine pool size for the threads backend (0 = one per CPU)",
		},
		cli.StringFlag{
			Name:  "op",
			Value: defaults.Op.String(),
			Usage: "Kernel operation: accumulate (C = C + B) or sum (C = A + B)",
		},
		cli.StringFlag{
			Name:  "type",
			Value: defaults.ElemType.String(),
			Usage: "Element type: int32, int64, float32 or float64",
		},
		cli.IntFlag{
			Name:  "repeat",
			Value: defaults.Repeat,
			Usage: "Number of timed kernel runs",
		},
		cli.BoolFlag{
			Name:  "no-reset",
			Usage: "Do not zero C between repeated runs",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "Do not print the per-element results",
		},
		cli.StringFlag{
			Name:   "metrics-file",
			EnvVar: "VECADD_METRICS_FILE",
			Usage:  "Write Prometheus text-format metrics to this file after the run",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "warning",
			EnvVar: "VECADD_LOG_LEVEL",
			Usage:  "Log level: debug, info, warning or error",
		},
		cli.BoolFlag{
			Name:  "log-json",
			Usage: "Emit logs as JSON",
		},
	}
	app.Action = func(appCtx *cli.Context) error {
		if err := configureLogger(rootLogger, appCtx); err != nil {
			return err
		}
		exec, err := execConfigFromFlags(defaults, appCtx)
		if err != nil {
			return err
		}
		return runMain(appCtx, exec, logger)
	}
	return app
}

func configureLogger(rootLogger *logrus.Logger, appCtx *cli.Context) error {
	level, err := logrus.ParseLevel(appCtx.String("log-level"))
	if err != nil {
		return err
	}
	rootLogger.SetLevel(level)
	rootLogger.SetOutput(os.Stderr)
	if appCtx.Bool("log-json") {
		rootLogger.SetFormatter(new(logrus.JSONFormatter))
	}
	return nil
}

// execConfigFromFlags builds the run configuration from flags and the three
// positional arguments
func execConfigFromFlags(defaults vecadd.ExecutionConfig, appCtx *cli.Context) (vecadd.ExecutionConfig, error) {
	exec, err := vecadd.ParseArgs(defaults, appCtx.Args())
	if err != nil {
		return exec, err
	}

	if exec.Backend, err = backend.ParseKind(appCtx.String("backend")); err != nil {
		return exec, err
	}
	if exec.Op, err = kernel.ParseOp(appCtx.String("op")); err != nil {
		return exec, err
	}
	if exec.ElemType, err = builder.ParseDataType(appCtx.String("type")); err != nil {
		return exec, err
	}
	exec.OCCAMode = appCtx.String("occa-mode")
	exec.Workers = appCtx.Int("workers")
	exec.Repeat = appCtx.Int("repeat")
	exec.Reset = !appCtx.Bool("no-reset")

	if err := exec.Validate(); err != nil {
		return exec, xerrors.Errorf("invalid configuration: %w", err)
	}
	return exec, nil
}

func runMain(appCtx *cli.Context, exec vecadd.ExecutionConfig, logger *logrus.Entry) error {
	backendCfg := exec.BackendConfig()
	backendCfg.Logger = logger
	be, err := backend.New(backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := be.Close(); cErr != nil {
			logger.WithField("err", cErr).Warn("failed to release backend")
		}
	}()

	metrics := vecadd.NewMetrics(be.Name())

	out := appCtx.App.Writer
	fmt.Fprintln(out, vecadd.Header(exec))

	report, err := vecadd.Run(context.Background(), vecadd.Config{
		Exec:    exec,
		Backend: be,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := report.Print(out, appCtx.Bool("quiet")); err != nil {
		return err
	}

	if path := appCtx.String("metrics-file"); path != "" {
		if err := metrics.WriteFile(path); err != nil {
			return xerrors.Errorf("writing metrics to %s: %w", path, err)
		}
	}
	return nil
}
