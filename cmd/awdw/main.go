// Command awdw loads the AdventureWorks warehouse.
//
//	awdw -config awdw.yaml -mode full
//	awdw -config awdw.yaml -mode incremental
//	awdw -config awdw.yaml -mode step -step fact_sales
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"awdw/internal/config"
	"awdw/internal/logging"
	"awdw/internal/metrics"
	"awdw/internal/metrics/datadog"
	"awdw/internal/pipeline"

	// register all backends with the storage factory.
	// config selects source and sink kinds, so every backend is linked in.
	_ "awdw/internal/storage/all"
)

// jobName tags every metric as job:<name>.
const jobName = "awdw"

// runner is the subset of *pipeline.Runner the CLI drives.
type runner interface {
	FullLoad(ctx context.Context) ([]pipeline.Summary, error)
	DailyIncremental(ctx context.Context) ([]pipeline.Summary, error)
	RunStep(ctx context.Context, name string) (pipeline.Summary, error)
}

// metricsBackend is a metrics.Backend that must be closed to flush.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadConfig  func(path string) (*config.Config, error)
	newLogger   func(level, format string) (*zap.Logger, error)
	initMetrics func(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error)
	newRunner   func(cfg config.Config, log *zap.Logger) runner
}

func defaultDeps() appDeps {
	m := metricsInit{
		newDatadog: func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
			return datadog.NewBackend(ctx, opts)
		},
		setBackend: metrics.SetBackend,
	}
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logging.New,
		initMetrics: m.init,
		newRunner: func(cfg config.Config, log *zap.Logger) runner {
			return &pipeline.Runner{Config: cfg, Logger: log}
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain parses args, loads and validates the config, then runs the selected
// mode. It returns the process exit code: 2 for usage errors, 1 for failures.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("awdw", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "YAML config path (empty: defaults and AWDW_* environment only)")
	validate := fs.Bool("validate", false, "validate the configuration and exit")
	mode := fs.String("mode", "incremental", "run mode: full, incremental or step")
	stepName := fs.String("step", "", "step to run with -mode step (e.g. fact_sales)")
	backendFlag := fs.String("metrics-backend", "", "metrics backend (none, datadog); overrides metrics.backend")
	verbose := fs.Bool("v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch *mode {
	case "full", "incremental":
	case "step":
		if strings.TrimSpace(*stepName) == "" {
			fmt.Fprintf(stderr, "usage: awdw -mode step -step <name>; steps: %s\n", strings.Join(pipeline.StepNames(), ", "))
			return 2
		}
	default:
		fmt.Fprintf(stderr, "usage: awdw -mode full|incremental|step (got %q)\n", *mode)
		return 2
	}

	cfg, err := deps.loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *backendFlag != "" {
		cfg.Metrics.Backend = *backendFlag
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	issues := config.Validate(*cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", displayPath(*cfgPath))
		return 1
	}
	if *validate {
		fmt.Fprintf(stdout, "configuration is valid: %s\n", displayPath(*cfgPath))
		return 0
	}

	log, err := deps.newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("run_id", uuid.NewString()), zap.String("mode", *mode))

	cleanup, err := deps.initMetrics(ctx, cfg.Metrics, log)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	log.Info("run starting",
		zap.String("source", cfg.Source.Kind),
		zap.String("sink", cfg.Sink.Kind),
		zap.String("schema", cfg.Sink.Schema),
	)

	sums, err := execute(ctx, deps.newRunner(*cfg, log), *mode, *stepName)
	printSummaries(stdout, sums)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, r runner, mode, step string) ([]pipeline.Summary, error) {
	switch mode {
	case "full":
		return r.FullLoad(ctx)
	case "step":
		sum, err := r.RunStep(ctx, step)
		if err != nil {
			return nil, err
		}
		return []pipeline.Summary{sum}, nil
	default:
		return r.DailyIncremental(ctx)
	}
}

func printSummaries(w io.Writer, sums []pipeline.Summary) {
	for _, s := range sums {
		fmt.Fprintf(w, "%-24s rows=%d inserted=%d versioned=%d unchanged=%d skipped=%d duration=%s\n",
			s.Step, s.Rows, s.Inserted, s.Versioned, s.Unchanged, s.Skipped, s.Duration.Truncate(time.Millisecond))
	}
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}

// metricsInit wires the configured metrics backend.
type metricsInit struct {
	newDatadog func(ctx context.Context, opts datadog.Options) (metricsBackend, error)
	setBackend func(metrics.Backend)
}

// init installs the backend named in cfg and returns a cleanup that flushes and
// detaches it. The cleanup is never nil. A Datadog backend that cannot start
// (for example without DD_API_KEY) degrades to the no-op backend.
func (m metricsInit) init(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error) {
	noop := func() {}

	switch name := strings.ToLower(strings.TrimSpace(cfg.Backend)); name {
	case "", "none":
		log.Debug("metrics disabled")
		return noop, nil

	case "datadog":
		every, err := cfg.FlushInterval()
		if err != nil {
			return noop, err
		}
		tags := datadog.ParseTagsCSV(cfg.Tags)

		b, err := m.newDatadog(ctx, datadog.Options{JobName: jobName, Tags: tags, FlushEvery: every})
		if err != nil {
			log.Warn("metrics: datadog unavailable; using nop", zap.Error(err))
			return noop, nil
		}
		m.setBackend(b)
		log.Info("metrics enabled", zap.String("backend", name), zap.Strings("tags", tags), zap.Duration("flush_every", every))

		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close error", zap.Error(err))
			}
			m.setBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
}
