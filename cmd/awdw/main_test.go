package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"awdw/internal/config"
	"awdw/internal/metrics"
	"awdw/internal/metrics/datadog"
	"awdw/internal/pipeline"
)

// fakeRunner records which mode the CLI drove and returns a configurable error.
type fakeRunner struct {
	err  error
	sums []pipeline.Summary

	full, incremental, steps atomic.Int64

	mu       sync.Mutex
	lastStep string
}

func (r *fakeRunner) FullLoad(context.Context) ([]pipeline.Summary, error) {
	r.full.Add(1)
	return r.sums, r.err
}

func (r *fakeRunner) DailyIncremental(context.Context) ([]pipeline.Summary, error) {
	r.incremental.Add(1)
	return r.sums, r.err
}

func (r *fakeRunner) RunStep(_ context.Context, name string) (pipeline.Summary, error) {
	r.steps.Add(1)
	r.mu.Lock()
	r.lastStep = name
	r.mu.Unlock()
	if len(r.sums) == 0 {
		return pipeline.Summary{Step: name}, r.err
	}
	return r.sums[0], r.err
}

// fakeMetricsBackend counts Close calls.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels)       {}
func (b *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeMetricsBackend) SetGauge(string, float64, metrics.Labels)         {}
func (b *fakeMetricsBackend) Flush() error                                     { return nil }

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// validConfig passes config.Validate without warnings that matter.
func validConfig() *config.Config {
	return &config.Config{
		Source:    config.StoreConfig{Kind: "sqlite", DSN: "src.db"},
		Sink:      config.StoreConfig{Kind: "sqlite", DSN: "dw.db", Schema: "dw"},
		Dates:     config.DatesConfig{Start: "2011-01-01", End: "2011-12-31"},
		Sales:     config.SalesConfig{BatchSize: 100},
		Purchases: config.PurchasesConfig{Truncate: true},
		Metrics:   config.MetricsConfig{Backend: "none"},
		Log:       config.LogConfig{Level: "info", Format: "json"},
	}
}

// failingDeps fatals on every seam, proving usage errors have no side effects.
func failingDeps(t *testing.T) appDeps {
	return appDeps{
		loadConfig: func(string) (*config.Config, error) {
			t.Fatalf("loadConfig must not be called on usage errors")
			return nil, nil
		},
		newLogger: func(string, string) (*zap.Logger, error) {
			t.Fatalf("newLogger must not be called on usage errors")
			return nil, nil
		},
		initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
			t.Fatalf("initMetrics must not be called on usage errors")
			return func() {}, nil
		},
		newRunner: func(config.Config, *zap.Logger) runner {
			t.Fatalf("newRunner must not be called on usage errors")
			return &fakeRunner{}
		},
	}
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{name: "unknown_flag", args: []string{"-nope"}, wantStderrSub: "flag provided but not defined"},
		{name: "unknown_mode", args: []string{"-mode", "weekly"}, wantStderrSub: "usage: awdw -mode"},
		{name: "step_without_name", args: []string{"-mode", "step"}, wantStderrSub: "fact_sales"},
		{name: "step_blank_name", args: []string{"-mode", "step", "-step", "  "}, wantStderrSub: "usage: awdw -mode step"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, failingDeps(t))

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_LoadValidateMetricsRun(t *testing.T) {
	t.Parallel()

	// Error precedence is load -> validate -> logger -> metrics -> run, and the
	// metrics cleanup runs exactly once whenever metrics init succeeded.
	tests := []struct {
		name             string
		loadErr          error
		mutate           func(*config.Config)
		loggerErr        error
		initMetricsErr   error
		runErr           error
		wantCode         int
		wantStderrSub    string
		wantRunnerCalls  int64
		wantCleanupCalls int64
	}{
		{
			name:          "load_config_error",
			loadErr:       errors.New("no such file"),
			wantCode:      1,
			wantStderrSub: "load config: no such file",
		},
		{
			name:          "invalid_config",
			mutate:        func(c *config.Config) { c.Sales.BatchSize = 0 },
			wantCode:      1,
			wantStderrSub: "error: sales.batch_size: must be > 0",
		},
		{
			name:          "logger_error",
			loggerErr:     errors.New("bad level"),
			wantCode:      1,
			wantStderrSub: "init logger:",
		},
		{
			name:           "init_metrics_error",
			initMetricsErr: errors.New("metrics unavailable"),
			wantCode:       1,
			wantStderrSub:  "init metrics:",
		},
		{
			name:             "runner_error_runs_cleanup",
			runErr:           errors.New("db failed"),
			wantCode:         1,
			wantStderrSub:    "run: db failed",
			wantRunnerCalls:  1,
			wantCleanupCalls: 1,
		},
		{
			name:             "success",
			wantCode:         0,
			wantRunnerCalls:  1,
			wantCleanupCalls: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			fr := &fakeRunner{err: tc.runErr, sums: []pipeline.Summary{{Step: "fact_sales", Rows: 4, Inserted: 3, Skipped: 1}}}

			var cleanupCalls atomic.Int64
			code := runMain(context.Background(), nil, &stdout, &stderr, appDeps{
				loadConfig: func(string) (*config.Config, error) {
					if tc.loadErr != nil {
						return nil, tc.loadErr
					}
					cfg := validConfig()
					if tc.mutate != nil {
						tc.mutate(cfg)
					}
					return cfg, nil
				},
				newLogger: func(string, string) (*zap.Logger, error) {
					if tc.loggerErr != nil {
						return nil, tc.loggerErr
					}
					return zap.NewNop(), nil
				},
				initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
					if tc.initMetricsErr != nil {
						return nil, tc.initMetricsErr
					}
					return func() { cleanupCalls.Add(1) }, nil
				},
				newRunner: func(config.Config, *zap.Logger) runner { return fr },
			})

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if got := fr.incremental.Load(); got != tc.wantRunnerCalls {
				t.Fatalf("incremental calls=%d, want %d", got, tc.wantRunnerCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
			if tc.wantCode == 0 && !strings.Contains(stdout.String(), "fact_sales") {
				t.Fatalf("stdout=%q, want a fact_sales summary line", stdout.String())
			}
		})
	}
}

func TestRunMain_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		wantFull int64
		wantIncr int64
		wantStep string
	}{
		{name: "default_is_incremental", wantIncr: 1},
		{name: "full", args: []string{"-mode", "full"}, wantFull: 1},
		{name: "step", args: []string{"-mode", "step", "-step", "dim_product"}, wantStep: "dim_product"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			fr := &fakeRunner{}
			code := runMain(context.Background(), tc.args, &stdout, &stderr, appDeps{
				loadConfig:  func(string) (*config.Config, error) { return validConfig(), nil },
				newLogger:   func(string, string) (*zap.Logger, error) { return zap.NewNop(), nil },
				initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) { return func() {}, nil },
				newRunner:   func(config.Config, *zap.Logger) runner { return fr },
			})

			if code != 0 {
				t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
			}
			if fr.full.Load() != tc.wantFull || fr.incremental.Load() != tc.wantIncr {
				t.Fatalf("full=%d incremental=%d, want %d/%d", fr.full.Load(), fr.incremental.Load(), tc.wantFull, tc.wantIncr)
			}
			fr.mu.Lock()
			defer fr.mu.Unlock()
			if fr.lastStep != tc.wantStep {
				t.Fatalf("step=%q, want %q", fr.lastStep, tc.wantStep)
			}
		})
	}
}

func TestRunMain_FlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	var got config.Config
	var level string
	var stdout, stderr bytes.Buffer

	code := runMain(context.Background(), []string{"-config", "awdw.yaml", "-v", "-metrics-backend", "datadog"}, &stdout, &stderr, appDeps{
		loadConfig: func(path string) (*config.Config, error) {
			if path != "awdw.yaml" {
				t.Errorf("path=%q", path)
			}
			return validConfig(), nil
		},
		newLogger: func(lvl, _ string) (*zap.Logger, error) {
			level = lvl
			return zap.NewNop(), nil
		},
		initMetrics: func(_ context.Context, m config.MetricsConfig, _ *zap.Logger) (func(), error) {
			got.Metrics = m
			return func() {}, nil
		},
		newRunner: func(config.Config, *zap.Logger) runner { return &fakeRunner{} },
	})

	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if level != "debug" {
		t.Fatalf("logger level=%q, want debug", level)
	}
	if got.Metrics.Backend != "datadog" {
		t.Fatalf("metrics backend=%q, want datadog", got.Metrics.Backend)
	}
}

func TestRunMain_ValidateOnly(t *testing.T) {
	t.Parallel()

	deps := failingDeps(t)
	deps.loadConfig = func(string) (*config.Config, error) {
		cfg := validConfig()
		cfg.Purchases.Truncate = false
		return cfg, nil
	}

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-validate"}, &stdout, &stderr, deps)

	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "configuration is valid: (defaults)") {
		t.Fatalf("stdout=%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "warning: purchases.truncate:") {
		t.Fatalf("stderr=%q, want the truncate warning", stderr.String())
	}
}

func TestMetricsInit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         config.MetricsConfig
		newErr      error
		closeErr    error
		wantErr     string
		wantSet     bool
		wantOptions datadog.Options
	}{
		{name: "none", cfg: config.MetricsConfig{Backend: "none"}},
		{name: "empty", cfg: config.MetricsConfig{}},
		{name: "unknown", cfg: config.MetricsConfig{Backend: "statsd"}, wantErr: `unknown metrics backend "statsd"`},
		{name: "bad_flush", cfg: config.MetricsConfig{Backend: "datadog", FlushEvery: "soon"}, wantErr: "soon"},
		{name: "datadog_unavailable_degrades", cfg: config.MetricsConfig{Backend: "datadog"}, newErr: errors.New("missing DD_API_KEY")},
		{
			name:        "datadog",
			cfg:         config.MetricsConfig{Backend: " DataDog ", Tags: "team:data, env:test", FlushEvery: "30s"},
			wantSet:     true,
			wantOptions: datadog.Options{JobName: "awdw", Tags: []string{"team:data", "env:test"}, FlushEvery: 30 * time.Second},
		},
		{
			name:     "datadog_close_error_is_logged",
			cfg:      config.MetricsConfig{Backend: "datadog"},
			closeErr: errors.New("flush failed"),
			wantSet:  true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakeMetricsBackend{closeErr: tc.closeErr}
			var (
				mu      sync.Mutex
				set     []metrics.Backend
				gotOpts datadog.Options
			)
			m := metricsInit{
				newDatadog: func(_ context.Context, opts datadog.Options) (metricsBackend, error) {
					gotOpts = opts
					if tc.newErr != nil {
						return nil, tc.newErr
					}
					return fb, nil
				},
				setBackend: func(b metrics.Backend) {
					mu.Lock()
					defer mu.Unlock()
					set = append(set, b)
				},
			}

			cleanup, err := m.init(context.Background(), tc.cfg, zap.NewNop())
			if cleanup == nil {
				t.Fatalf("cleanup must never be nil")
			}
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err=%v, want contains %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			cleanup()

			mu.Lock()
			defer mu.Unlock()
			if !tc.wantSet {
				if len(set) != 0 {
					t.Fatalf("backend installed %d times, want 0", len(set))
				}
				return
			}
			if len(set) != 2 || set[0] != metrics.Backend(fb) || set[1] != nil {
				t.Fatalf("setBackend calls=%v, want [fake nil]", set)
			}
			if fb.closed.Load() != 1 {
				t.Fatalf("Close calls=%d, want 1", fb.closed.Load())
			}
			if tc.wantOptions.JobName != "" {
				if gotOpts.JobName != tc.wantOptions.JobName || gotOpts.FlushEvery != tc.wantOptions.FlushEvery ||
					strings.Join(gotOpts.Tags, ",") != strings.Join(tc.wantOptions.Tags, ",") {
					t.Fatalf("options=%+v, want %+v", gotOpts, tc.wantOptions)
				}
			}
		})
	}
}
