package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
//
// When to use:
//   - Use Config when constructing a Store via Open.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Attach maps a schema name to a database path. Only the sqlite backend reads it
//     (ATTACH DATABASE path AS schema); other backends ignore it.
type Config struct {
	Kind   string            `koanf:"kind"`
	DSN    string            `koanf:"dsn"`
	Attach map[string]string `koanf:"attach"`
}

// Row is one result row keyed by lower-cased column name.
type Row map[string]any

// Querier is the fetch/execute surface shared by a Store and an open transaction.
//
// Queries are written with "?" placeholders; each backend rebinds them to its
// native form before execution.
type Querier interface {
	// FetchOne returns the first row of the result, or (nil, nil) when the
	// query returned no rows.
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)

	// FetchAll returns every row of the result. An empty result is an empty,
	// non-nil slice.
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)

	// Execute runs a statement and returns the affected row count.
	Execute(ctx context.Context, query string, args ...any) (int64, error)

	// InsertReturning runs an insert built with Dialect.InsertReturning and
	// returns the generated key produced by that same statement.
	InsertReturning(ctx context.Context, query string, args ...any) (int64, error)
}

// Tx is an explicit transaction. Statements issued through a Tx are committed
// together by Commit.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is one connection to a relational store. Statements issued directly on
// a Store auto-commit.
type Store interface {
	Querier

	Dialect() Dialect

	// Begin opens a transaction. While it is open, callers must route every
	// statement through the Tx: backends hold a single connection.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the connection. Call once.
	Close() error
}

// ConflictAction selects what an upsert does when the natural key already exists.
type ConflictAction int

const (
	// DoUpdate overwrites the non-key columns of the existing row.
	DoUpdate ConflictAction = iota
	// DoNothing keeps the existing row untouched.
	DoNothing
)

// Dialect renders the few statements whose syntax differs between backends.
// Builders return SQL whose arguments are the values of cols, in order.
type Dialect interface {
	Name() string

	// Ident quotes an identifier.
	Ident(name string) string

	// Upsert inserts one row and resolves a conflict on keyCols per action.
	// keyCols must be a subset of cols.
	Upsert(table string, cols []string, keyCols []string, action ConflictAction) string

	// InsertReturning inserts one row and yields the generated keyCol value.
	InsertReturning(table string, cols []string, keyCol string) string

	// Truncate removes every row of table and, where supported, resets its identity.
	Truncate(table string) string
}

// Qualify returns schema.table, or table when schema is empty.
func Qualify(schema, table string) string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return table
	}
	return schema + "." + table
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
