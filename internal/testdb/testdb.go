// Package testdb builds SQLite source and warehouse databases for tests.
//
// The source mirrors the AdventureWorks OLTP schemas (sales, person,
// production, purchasing) as attached databases; the warehouse attaches "dw".
package testdb

import (
	"context"
	_ "embed"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"awdw/internal/storage"
	_ "awdw/internal/storage/sqlite"
)

// Schema is the warehouse schema the fixtures create.
const Schema = "dw"

var (
	//go:embed sql/source.sql
	SourceDDL string

	//go:embed sql/warehouse.sql
	WarehouseDDL string

	//go:embed sql/seed.sql
	Seed string
)

var sourceSchemas = []string{"person", "production", "purchasing", "sales"}

// SourceConfig returns a sqlite config for the source. An empty dir keeps
// every database in memory.
func SourceConfig(dir string) storage.Config {
	return config(dir, "source", sourceSchemas...)
}

// WarehouseConfig returns a sqlite config for the warehouse.
func WarehouseConfig(dir string) storage.Config {
	return config(dir, "warehouse", Schema)
}

func config(dir, main string, schemas ...string) storage.Config {
	cfg := storage.Config{Kind: "sqlite", DSN: ":memory:", Attach: map[string]string{}}
	if dir != "" {
		cfg.DSN = filepath.Join(dir, main+".db")
	}
	for _, s := range schemas {
		path := ":memory:"
		if dir != "" {
			path = filepath.Join(dir, main+"_"+s+".db")
		}
		cfg.Attach[s] = path
	}
	return cfg
}

// Source opens an in-memory source loaded with the seed data.
func Source(t *testing.T) storage.Store {
	t.Helper()
	return open(t, SourceConfig(""), SourceDDL, Seed)
}

// Warehouse opens an empty in-memory warehouse.
func Warehouse(t *testing.T) storage.Store {
	t.Helper()
	return open(t, WarehouseConfig(""), WarehouseDDL)
}

// Init creates file-backed databases for cfg and runs scripts once, for tests
// that reopen the same store several times.
func Init(t *testing.T, cfg storage.Config, scripts ...string) {
	t.Helper()

	s, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	for _, script := range scripts {
		MustExec(t, s, script)
	}
}

func open(t *testing.T, cfg storage.Config, scripts ...string) storage.Store {
	t.Helper()

	s, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, script := range scripts {
		MustExec(t, s, script)
	}
	return s
}

// MustExec runs every ";"-separated statement of script.
func MustExec(t *testing.T, q storage.Querier, script string) {
	t.Helper()

	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := q.Execute(context.Background(), stmt)
		require.NoError(t, err, "statement: %s", stmt)
	}
}

// Count returns the number of rows in table matching the optional where clause.
func Count(t *testing.T, q storage.Querier, table, where string, args ...any) int64 {
	t.Helper()

	query := "SELECT COUNT(*) AS n FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	row, err := q.FetchOne(context.Background(), query, args...)
	require.NoError(t, err)
	n, ok := row.Int64("n")
	require.True(t, ok)
	return n
}
