// Package runcontrol tracks per-pipeline watermarks in the warehouse's
// etl_run_control table.
package runcontrol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"awdw/internal/storage"
)

// Table is the unqualified run-control table name.
const Table = "etl_run_control"

// SalesPipeline is the pipeline name of the incremental sales fact.
const SalesPipeline = "fact_sales"

// Watermarks reads and writes the last processed ordinal per pipeline.
//
// Values are stored as text so any ordinal type fits; this package parses them
// as int64 since every watermark so far is a source line id.
type Watermarks struct {
	table string
	now   func() time.Time
}

// New returns Watermarks for the run-control table in schema.
func New(schema string) *Watermarks {
	return &Watermarks{table: storage.Qualify(schema, Table), now: time.Now}
}

// Load returns the stored watermark for pipeline. ok is false when no
// watermark has been recorded yet (or it is empty).
func (w *Watermarks) Load(ctx context.Context, q storage.Querier, pipeline string) (value int64, ok bool, err error) {
	row, err := q.FetchOne(ctx,
		fmt.Sprintf("SELECT last_watermark_value FROM %s WHERE pipeline_name = ?", w.table), pipeline)
	if err != nil {
		return 0, false, fmt.Errorf("load watermark %s: %w", pipeline, err)
	}
	if row == nil {
		return 0, false, nil
	}

	raw, ok := row.String("last_watermark_value")
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	v, ok := storage.AsInt64(raw)
	if !ok {
		return 0, false, fmt.Errorf("load watermark %s: not an integer: %q", pipeline, raw)
	}
	return v, true, nil
}

// Save upserts the watermark for pipeline. Pass a Tx as q to commit the
// watermark together with the rows it covers.
func (w *Watermarks) Save(ctx context.Context, q storage.Querier, d storage.Dialect, pipeline string, value int64) error {
	stmt := d.Upsert(w.table,
		[]string{"pipeline_name", "last_watermark_value", "updated_at"},
		[]string{"pipeline_name"},
		storage.DoUpdate)

	if _, err := q.Execute(ctx, stmt, pipeline, fmt.Sprintf("%d", value), w.now().UTC()); err != nil {
		return fmt.Errorf("save watermark %s=%d: %w", pipeline, value, err)
	}
	return nil
}
