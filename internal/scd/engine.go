package scd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"awdw/internal/storage"
)

// Outcome is what Upsert did for one natural key.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Versioned
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Versioned:
		return "versioned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats tallies outcomes over a load.
type Stats struct {
	Inserted  int
	Unchanged int
	Versioned int
}

// Add counts one outcome.
func (s *Stats) Add(o Outcome) {
	switch o {
	case Inserted:
		s.Inserted++
	case Versioned:
		s.Versioned++
	default:
		s.Unchanged++
	}
}

// Total is the number of natural keys seen.
func (s Stats) Total() int { return s.Inserted + s.Unchanged + s.Versioned }

// Engine applies SCD2 upserts against the warehouse.
//
// The engine is the only writer of historized dimensions. It does not retry:
// a store error aborts the upsert of that natural key and is returned as is.
type Engine struct {
	store  storage.Store
	schema string
	log    *zap.Logger
}

// NewEngine returns an Engine writing tables in schema. A nil logger is replaced
// by a no-op logger.
func NewEngine(store storage.Store, schema string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, schema: schema, log: log}
}

// Upsert makes attrs the current version of natural key nk.
//
//   - No current row: inserts one valid from effective and returns its new key.
//   - Current row with equal attributes: returns the existing key, writes nothing.
//   - Any attribute differs: closes the current row at effective and inserts a
//     new current row in the same transaction, returning the new key.
//
// Attributes missing from attrs are treated as null.
func (e *Engine) Upsert(ctx context.Context, dim Dimension, nk int64, attrs map[string]any, effective time.Time) (int64, Outcome, error) {
	table := storage.Qualify(e.schema, dim.Table)

	current, err := e.current(ctx, table, dim, nk)
	if err != nil {
		return 0, Unchanged, err
	}

	values := make([]any, len(dim.Attributes))
	for i, a := range dim.Attributes {
		values[i] = canonical(a.Kind, attrs[a.Column])
	}

	if current == nil {
		key, err := e.insert(ctx, e.store, table, dim, nk, values, effective)
		if err != nil {
			return 0, Unchanged, err
		}
		return key, Inserted, nil
	}

	oldKey, ok := current.Int64(dim.KeyColumn)
	if !ok {
		return 0, Unchanged, fmt.Errorf("scd: %s nk=%d: current row has no %s", dim.Table, nk, dim.KeyColumn)
	}

	changed := changedColumns(dim, current, values)
	if len(changed) == 0 {
		return oldKey, Unchanged, nil
	}

	newKey, err := e.version(ctx, table, dim, nk, oldKey, values, effective)
	if err != nil {
		return 0, Unchanged, err
	}
	e.log.Debug("scd2 version",
		zap.String("table", dim.Table),
		zap.Int64("nk", nk),
		zap.Int64("old_key", oldKey),
		zap.Int64("new_key", newKey),
		zap.Strings("changed", changed),
	)
	return newKey, Versioned, nil
}

func (e *Engine) current(ctx context.Context, table string, dim Dimension, nk int64) (storage.Row, error) {
	cols := append([]string{dim.KeyColumn}, dim.Columns()...)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ?",
		strings.Join(cols, ", "), table, dim.NaturalKeyColumn, CurrentColumn)

	row, err := e.store.FetchOne(ctx, q, nk, true)
	if err != nil {
		return nil, fmt.Errorf("scd: lookup %s nk=%d: %w", dim.Table, nk, err)
	}
	return row, nil
}

func changedColumns(dim Dimension, current storage.Row, values []any) []string {
	var changed []string
	for i, a := range dim.Attributes {
		if !equal(a.Kind, current.Get(a.Column), values[i]) {
			changed = append(changed, a.Column)
		}
	}
	return changed
}

func (e *Engine) insert(ctx context.Context, q storage.Querier, table string, dim Dimension, nk int64, values []any, effective time.Time) (int64, error) {
	cols := append([]string{dim.NaturalKeyColumn}, dim.Columns()...)
	cols = append(cols, ValidFromColumn, CurrentColumn)

	args := make([]any, 0, len(cols))
	args = append(args, nk)
	args = append(args, values...)
	args = append(args, effective, true)

	stmt := e.store.Dialect().InsertReturning(table, cols, dim.KeyColumn)
	key, err := q.InsertReturning(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("scd: insert %s nk=%d: %w", dim.Table, nk, err)
	}
	return key, nil
}

// version closes oldKey and inserts the new current row in one transaction so
// a failure between the two statements never leaves zero or two current rows.
func (e *Engine) version(ctx context.Context, table string, dim Dimension, nk, oldKey int64, values []any, effective time.Time) (key int64, err error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("scd: begin %s nk=%d: %w", dim.Table, nk, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	closeStmt := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE %s = ?",
		table, ValidToColumn, CurrentColumn, dim.KeyColumn)
	n, err := tx.Execute(ctx, closeStmt, effective, false, oldKey)
	if err != nil {
		return 0, fmt.Errorf("scd: close %s key=%d: %w", dim.Table, oldKey, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("scd: close %s key=%d: affected %d rows", dim.Table, oldKey, n)
	}

	key, err = e.insert(ctx, tx, table, dim, nk, values, effective)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("scd: commit %s nk=%d: %w", dim.Table, nk, err)
	}
	return key, nil
}
