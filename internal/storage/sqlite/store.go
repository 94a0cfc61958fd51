package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"awdw/internal/storage"
	"awdw/internal/storage/sqlstore"
)

// Key design points vs Postgres:
//   - SQLite has no schemas. Schema-qualified names (sales.customer, dw.dim_date)
//     resolve against attached databases, configured through storage.Config.Attach.
//   - SQLite has no native TIMESTAMPTZ type, so timestamps are bound as
//     RFC3339Nano strings for reliable round-trip behavior.
//   - Decimals are bound as text; NUMERIC affinity stores them as numbers.

func init() {
	storage.Register("sqlite", Open)
}

// Open opens cfg.DSN (":memory:" is fine) and attaches every cfg.Attach entry.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: missing dsn")
	}

	s, err := sqlstore.Open(ctx, "sqlite", dsn, Options())
	if err != nil {
		return nil, err
	}
	if err := attach(ctx, s, cfg.Attach); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Options returns the sqlstore options for SQLite.
func Options() sqlstore.Options {
	return sqlstore.Options{
		Name:    "sqlite",
		Dialect: Dialect{},
		BindArg: bindArg,
	}
}

// attach runs ATTACH DATABASE for every schema, in name order so failures are
// reproducible.
func attach(ctx context.Context, s *sqlstore.Store, dbs map[string]string) error {
	names := make([]string, 0, len(dbs))
	for name := range dbs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := strings.TrimSpace(dbs[name])
		if path == "" {
			path = ":memory:"
		}
		q := fmt.Sprintf("ATTACH DATABASE ? AS %s", sqlIdent(name))
		if _, err := s.Execute(ctx, q, path); err != nil {
			return fmt.Errorf("sqlite: attach %s: %w", name, err)
		}
	}
	return nil
}

func bindArg(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatSQLiteTime(t)
	case decimal.Decimal:
		return t.String()
	case decimal.NullDecimal:
		if !t.Valid {
			return nil
		}
		return t.Decimal.String()
	default:
		return v
	}
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
