// Package pipeline sequences the warehouse load steps: the full load, the
// daily incremental load and single steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"awdw/internal/config"
	"awdw/internal/dimensions"
	"awdw/internal/facts"
	"awdw/internal/metrics"
	"awdw/internal/scd"
	"awdw/internal/storage"
)

// OpenFn opens one store. storage.Open satisfies it.
type OpenFn func(ctx context.Context, cfg storage.Config) (storage.Store, error)

// Summary reports one executed step.
type Summary struct {
	Step      string
	Rows      int
	Inserted  int
	Versioned int
	Unchanged int
	Skipped   int
	Duration  time.Duration
}

// Runner executes steps against the stores named in Config.
//
// Every step opens its own source and sink and closes both before returning,
// so a failed step leaves nothing open and already committed work in place.
type Runner struct {
	Config config.Config
	Logger *zap.Logger

	// Open is a seam for tests. Nil uses storage.Open.
	Open OpenFn

	// Now is a seam for tests. Nil uses time.Now.
	Now func() time.Time
}

// env is what a step body sees.
type env struct {
	source storage.Store
	sink   storage.Store
	today  time.Time
}

type step struct {
	name        string
	needsSource bool
	run         func(ctx context.Context, r *Runner, e env) (Summary, error)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if r.Open != nil {
		return r.Open(ctx, cfg)
	}
	return storage.Open(ctx, cfg)
}

// today is the run date in UTC. SCD2 versions and the inventory snapshot are
// stamped with it.
func (r *Runner) today() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// FullLoad builds the calendar, loads every dimension, reads all sales lines,
// reloads purchases and appends today's inventory snapshot.
func (r *Runner) FullLoad(ctx context.Context) ([]Summary, error) {
	plan := []step{dateStep}
	plan = append(plan, dimensionSteps()...)
	plan = append(plan, salesStep(false), purchasesStep(true), inventoryStep)
	return r.runAll(ctx, "full", plan)
}

// DailyIncremental refreshes every dimension and loads sales lines above the
// watermark.
func (r *Runner) DailyIncremental(ctx context.Context) ([]Summary, error) {
	plan := append(dimensionSteps(), salesStep(true))
	return r.runAll(ctx, "incremental", plan)
}

// RunStep runs one step by name. fact_sales runs incrementally.
func (r *Runner) RunStep(ctx context.Context, name string) (Summary, error) {
	for _, s := range allSteps() {
		if s.name == name {
			return r.run(ctx, s)
		}
	}
	return Summary{}, fmt.Errorf("unknown step %q (want one of %v)", name, StepNames())
}

// StepNames lists the names RunStep accepts, sorted.
func StepNames() []string {
	var names []string
	for _, s := range allSteps() {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) runAll(ctx context.Context, mode string, plan []step) ([]Summary, error) {
	start := time.Now()
	out := make([]Summary, 0, len(plan))
	for _, s := range plan {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sum, err := r.run(ctx, s)
		if err != nil {
			return out, err
		}
		out = append(out, sum)
	}
	r.logger().Info("run complete",
		zap.String("mode", mode),
		zap.Int("steps", len(out)),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)),
	)
	return out, nil
}

func (r *Runner) run(ctx context.Context, s step) (sum Summary, err error) {
	start := time.Now()
	log := r.logger().With(zap.String("stage", s.name))

	defer func() {
		dur := time.Since(start)
		sum.Step, sum.Duration = s.name, dur

		status := "ok"
		if err != nil {
			status = "error"
			log.Error("step failed", zap.Duration("duration", dur.Truncate(time.Millisecond)), zap.Error(err))
		} else {
			log.Info("step complete",
				zap.String("table", s.name),
				zap.Int("rows", sum.Rows),
				zap.Int("inserted", sum.Inserted),
				zap.Int("versioned", sum.Versioned),
				zap.Int("unchanged", sum.Unchanged),
				zap.Int("skipped", sum.Skipped),
				zap.Duration("duration", dur.Truncate(time.Millisecond)),
			)
		}
		metrics.RecordStep(s.name, status, dur)
		metrics.RecordRecords(s.name+"_inserted", sum.Inserted)
		metrics.RecordRecords(s.name+"_versioned", sum.Versioned)
		metrics.RecordRecords(s.name+"_skipped", sum.Skipped)
	}()

	e := env{today: r.today()}

	if s.needsSource {
		e.source, err = r.open(ctx, r.Config.Source.Storage())
		if err != nil {
			return sum, fmt.Errorf("%s: open source: %w", s.name, err)
		}
		defer closeStore(&err, s.name, "source", e.source)
	}

	e.sink, err = r.open(ctx, r.Config.Sink.Storage())
	if err != nil {
		return sum, fmt.Errorf("%s: open sink: %w", s.name, err)
	}
	defer closeStore(&err, s.name, "sink", e.sink)

	sum, err = s.run(ctx, r, e)
	if err != nil {
		return sum, fmt.Errorf("step %s: %w", s.name, err)
	}
	return sum, nil
}

func closeStore(err *error, stepName, role string, s storage.Store) {
	if cerr := s.Close(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("%s: close %s: %w", stepName, role, cerr))
	}
}

func (r *Runner) dimensionLoader(e env) *dimensions.Loader {
	return &dimensions.Loader{
		Source:              e.source,
		Sink:                e.sink,
		Schema:              r.Config.Sink.Schema,
		IncludeDiscontinued: r.Config.Products.IncludeDiscontinued,
		Logger:              r.logger(),
	}
}

func (r *Runner) factLoader(e env) *facts.Loader {
	return &facts.Loader{
		Source:    e.source,
		Sink:      e.sink,
		Schema:    r.Config.Sink.Schema,
		BatchSize: r.Config.Sales.BatchSize,
		Logger:    r.logger(),
	}
}

var dateStep = step{
	name: dimensions.DateTable,
	run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
		start, end, err := r.Config.Dates.Range()
		if err != nil {
			return Summary{}, err
		}
		n, err := r.dimensionLoader(e).LoadDates(ctx, start, end)
		return Summary{Rows: n}, err
	},
}

func historizedStep(dim scd.Dimension, load func(*dimensions.Loader, context.Context, time.Time) (scd.Stats, error)) step {
	return step{
		name:        dim.Table,
		needsSource: true,
		run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
			stats, err := load(r.dimensionLoader(e), ctx, e.today)
			return Summary{
				Rows:      stats.Total(),
				Inserted:  stats.Inserted,
				Versioned: stats.Versioned,
				Unchanged: stats.Unchanged,
			}, err
		},
	}
}

func tableStep(t dimensions.Table) step {
	return step{
		name:        t.Name,
		needsSource: true,
		run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
			n, err := r.dimensionLoader(e).LoadTable(ctx, t)
			return Summary{Rows: n, Inserted: n}, err
		},
	}
}

// dimensionSteps are product, customer and the non-historized dimensions.
func dimensionSteps() []step {
	out := []step{
		historizedStep(scd.ProductDimension, (*dimensions.Loader).LoadProducts),
		historizedStep(scd.CustomerDimension, (*dimensions.Loader).LoadCustomers),
	}
	for _, t := range dimensions.Tables {
		out = append(out, tableStep(t))
	}
	return out
}

func salesStep(incremental bool) step {
	return step{
		name:        facts.SalesTable,
		needsSource: true,
		run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
			res, err := r.factLoader(e).LoadSales(ctx, incremental)
			return Summary{Rows: res.Extracted, Inserted: res.Inserted, Skipped: res.Skipped}, err
		},
	}
}

// purchasesStep reloads fact_purchases. A full load always truncates first;
// a single step truncates when purchases.truncate is set.
func purchasesStep(alwaysTruncate bool) step {
	return step{
		name:        facts.PurchasesTable,
		needsSource: true,
		run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
			truncate := alwaysTruncate || r.Config.Purchases.Truncate
			res, err := r.factLoader(e).LoadPurchases(ctx, truncate)
			return Summary{Rows: res.Extracted, Inserted: res.Inserted, Skipped: res.Skipped}, err
		},
	}
}

var inventoryStep = step{
	name:        facts.InventoryTable,
	needsSource: true,
	run: func(ctx context.Context, r *Runner, e env) (Summary, error) {
		res, err := r.factLoader(e).LoadInventorySnapshot(ctx, e.today)
		return Summary{Rows: res.Extracted, Inserted: res.Inserted, Skipped: res.Skipped}, err
	},
}

func allSteps() []step {
	out := []step{dateStep}
	out = append(out, dimensionSteps()...)
	return append(out, salesStep(true), purchasesStep(false), inventoryStep)
}
