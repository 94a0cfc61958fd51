package runcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"awdw/internal/testdb"
)

func TestLoad_NoWatermark(t *testing.T) {
	t.Parallel()

	dw := testdb.Warehouse(t)
	w := New(testdb.Schema)

	_, ok, err := w.Load(context.Background(), dw, SalesPipeline)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSave_UpsertsPerPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dw := testdb.Warehouse(t)
	w := New(testdb.Schema)
	w.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Save(ctx, dw, dw.Dialect(), SalesPipeline, 102))
	require.NoError(t, w.Save(ctx, dw, dw.Dialect(), SalesPipeline, 105))
	require.NoError(t, w.Save(ctx, dw, dw.Dialect(), "fact_other", 7))

	v, ok, err := w.Load(ctx, dw, SalesPipeline)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(105), v)
	require.Equal(t, int64(2), testdb.Count(t, dw, "dw.etl_run_control", ""))

	row, err := dw.FetchOne(ctx, "SELECT updated_at FROM dw.etl_run_control WHERE pipeline_name = ?", SalesPipeline)
	require.NoError(t, err)
	at, ok := row.Time("updated_at")
	require.True(t, ok)
	require.True(t, at.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSave_RolledBackWithTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dw := testdb.Warehouse(t)
	w := New(testdb.Schema)

	tx, err := dw.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, tx, dw.Dialect(), SalesPipeline, 105))
	require.NoError(t, tx.Rollback(ctx))

	_, ok, err := w.Load(ctx, dw, SalesPipeline)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoad_RejectsGarbage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dw := testdb.Warehouse(t)
	testdb.MustExec(t, dw, "INSERT INTO dw.etl_run_control (pipeline_name, last_watermark_value) VALUES ('fact_sales', 'abc')")

	_, _, err := New(testdb.Schema).Load(ctx, dw, SalesPipeline)
	require.ErrorContains(t, err, "not an integer")
}

func TestLoad_EmptyValueIsNoWatermark(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dw := testdb.Warehouse(t)
	testdb.MustExec(t, dw, "INSERT INTO dw.etl_run_control (pipeline_name, last_watermark_value) VALUES ('fact_sales', '')")

	_, ok, err := New(testdb.Schema).Load(ctx, dw, SalesPipeline)
	require.NoError(t, err)
	require.False(t, ok)
}
