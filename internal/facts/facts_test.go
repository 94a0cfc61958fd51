package facts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"awdw/internal/dimensions"
	"awdw/internal/runcontrol"
	"awdw/internal/storage"
	"awdw/internal/testdb"
)

var loadDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// setup returns a fact loader over the seeded source and a warehouse whose
// dimensions are already loaded.
func setup(t *testing.T) (*Loader, storage.Store, storage.Store) {
	t.Helper()

	ctx := context.Background()
	src := testdb.Source(t)
	dw := testdb.Warehouse(t)

	dl := &dimensions.Loader{Source: src, Sink: dw, Schema: testdb.Schema, IncludeDiscontinued: true}
	for _, tbl := range dimensions.Tables {
		_, err := dl.LoadTable(ctx, tbl)
		require.NoError(t, err)
	}
	_, err := dl.LoadProducts(ctx, loadDay)
	require.NoError(t, err)
	_, err = dl.LoadCustomers(ctx, loadDay)
	require.NoError(t, err)

	return &Loader{
		Source:    src,
		Sink:      dw,
		Schema:    testdb.Schema,
		BatchSize: 2,
		Logger:    zaptest.NewLogger(t),
	}, src, dw
}

func keyOf(t *testing.T, q storage.Querier, table, keyCol, nkCol string, nk int64) int64 {
	t.Helper()
	row, err := q.FetchOne(context.Background(),
		"SELECT "+keyCol+" AS k FROM dw."+table+" WHERE "+nkCol+" = ?", nk)
	require.NoError(t, err)
	require.NotNil(t, row, "%s nk=%d", table, nk)
	k, _ := row.Int64("k")
	return k
}

func watermark(t *testing.T, q storage.Querier) (int64, bool) {
	t.Helper()
	v, ok, err := runcontrol.New(testdb.Schema).Load(context.Background(), q, runcontrol.SalesPipeline)
	require.NoError(t, err)
	return v, ok
}
