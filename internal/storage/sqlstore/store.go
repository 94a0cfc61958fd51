// Package sqlstore implements storage.Store on top of database/sql.
//
// The sqlite and mssql backends share this implementation and differ only in
// their Options: dialect, placeholder style and argument binding.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"awdw/internal/storage"
)

// Options customizes a Store for one driver.
type Options struct {
	// Name prefixes error messages ("sqlite", "mssql").
	Name string

	Dialect storage.Dialect

	// Placeholder renders the n-th parameter. Nil keeps "?".
	Placeholder func(n int) string

	// BindArg converts one argument before it reaches the driver. Nil passes
	// arguments through.
	BindArg func(v any) any
}

// Store implements storage.Store with a single database/sql connection.
type Store struct {
	db   *sql.DB
	opts Options
}

// conn is the subset of database/sql shared by *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens driverName with dsn and verifies connectivity.
func Open(ctx context.Context, driverName, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", opts.Name, err)
	}
	s := New(db, opts)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", opts.Name, err)
	}
	return s, nil
}

// New wraps an open *sql.DB. The pool is pinned to one connection so session
// state (attached databases, open transactions) is visible to every statement.
func New(db *sql.DB, opts Options) *Store {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &Store{db: db, opts: opts}
}

// DB exposes the underlying handle for backend-specific session setup.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() storage.Dialect { return s.opts.Dialect }

func (s *Store) FetchOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return s.fetchOne(ctx, s.db, query, args)
}

func (s *Store) FetchAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return s.fetchAll(ctx, s.db, query, args)
}

func (s *Store) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return s.execute(ctx, s.db, query, args)
}

func (s *Store) InsertReturning(ctx context.Context, query string, args ...any) (int64, error) {
	return s.insertReturning(ctx, s.db, query, args)
}

// Begin opens a transaction. Until it ends, the Store itself cannot run
// statements since the only connection belongs to the transaction.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", s.opts.Name, err)
	}
	return &Tx{s: s, tx: tx}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx implements storage.Tx over *sql.Tx.
type Tx struct {
	s  *Store
	tx *sql.Tx
}

func (t *Tx) FetchOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return t.s.fetchOne(ctx, t.tx, query, args)
}

func (t *Tx) FetchAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return t.s.fetchAll(ctx, t.tx, query, args)
}

func (t *Tx) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return t.s.execute(ctx, t.tx, query, args)
}

func (t *Tx) InsertReturning(ctx context.Context, query string, args ...any) (int64, error) {
	return t.s.insertReturning(ctx, t.tx, query, args)
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit() }

// Rollback after Commit is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *Store) fetchOne(ctx context.Context, c conn, query string, args []any) (storage.Row, error) {
	rows, err := s.fetchAll(ctx, c, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *Store) fetchAll(ctx context.Context, c conn, query string, args []any) ([]storage.Row, error) {
	rows, err := c.QueryContext(ctx, s.rebind(query), s.bind(args)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for i := range cols {
		cols[i] = strings.ToLower(cols[i])
	}

	out := []storage.Row{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(storage.Row, len(cols))
		for i, col := range cols {
			// TEXT and DECIMAL frequently arrive as []byte; strings are easier to
			// compare and safe to keep after the next Scan.
			if b, ok := vals[i].([]byte); ok {
				r[col] = string(b)
				continue
			}
			r[col] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) execute(ctx context.Context, c conn, query string, args []any) (int64, error) {
	res, err := c.ExecContext(ctx, s.rebind(query), s.bind(args)...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows for batches; that is not a failure.
		return 0, nil
	}
	return n, nil
}

func (s *Store) insertReturning(ctx context.Context, c conn, query string, args []any) (int64, error) {
	var id int64
	if err := c.QueryRowContext(ctx, s.rebind(query), s.bind(args)...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) rebind(query string) string {
	return storage.Rebind(query, s.opts.Placeholder)
}

func (s *Store) bind(args []any) []any {
	if s.opts.BindArg == nil || len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = s.opts.BindArg(a)
	}
	return out
}

// compile-time checks
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
	_ conn          = (*sql.DB)(nil)
	_ conn          = (*sql.Tx)(nil)
)
