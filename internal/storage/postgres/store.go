package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"awdw/internal/storage"
)

/*
Store implements storage.Store for Postgres.

It holds a single pgx connection: the loaders are sequential, and an explicit
transaction must see every statement the caller issues while it is open.

Queries arrive with "?" placeholders and are rebound to $n before execution.
NUMERIC values are handed back as decimal.Decimal so downstream comparisons stay
exact.
*/
type Store struct {
	conn *pgx.Conn
}

// querier is the subset of pgx satisfied by both *pgx.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects to Postgres using cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: missing dsn")
	}
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Dialect() storage.Dialect { return Dialect{} }

func (s *Store) FetchOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return fetchOne(ctx, s.conn, query, args)
}

func (s *Store) FetchAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return fetchAll(ctx, s.conn, query, args)
}

func (s *Store) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return execute(ctx, s.conn, query, args)
}

func (s *Store) InsertReturning(ctx context.Context, query string, args ...any) (int64, error) {
	return insertReturning(ctx, s.conn, query, args)
}

// Begin opens a transaction on the underlying connection.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Close closes the connection. It uses a background context so a cancelled run
// still releases the server session.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(context.Background())
}

// Tx implements storage.Tx over pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) FetchOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return fetchOne(ctx, t.tx, query, args)
}

func (t *Tx) FetchAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return fetchAll(ctx, t.tx, query, args)
}

func (t *Tx) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return execute(ctx, t.tx, query, args)
}

func (t *Tx) InsertReturning(ctx context.Context, query string, args ...any) (int64, error) {
	return insertReturning(ctx, t.tx, query, args)
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback is safe to call after Commit; pgx returns ErrTxClosed which is ignored.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func fetchOne(ctx context.Context, q querier, query string, args []any) (storage.Row, error) {
	rows, err := fetchAll(ctx, q, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func fetchAll(ctx context.Context, q querier, query string, args []any) ([]storage.Row, error) {
	rows, err := q.Query(ctx, rebind(query), bindArgs(args)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []storage.Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r := make(storage.Row, len(fields))
		for i, f := range fields {
			r[strings.ToLower(f.Name)] = fromPG(vals[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func execute(ctx context.Context, q querier, query string, args []any) (int64, error) {
	tag, err := q.Exec(ctx, rebind(query), bindArgs(args)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func insertReturning(ctx context.Context, q querier, query string, args []any) (int64, error) {
	var id int64
	if err := q.QueryRow(ctx, rebind(query), bindArgs(args)...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func rebind(query string) string {
	return storage.Rebind(query, storage.DollarPlaceholder)
}

// bindArgs converts decimal arguments to pgtype.Numeric so NUMERIC columns are
// written without a text round-trip.
func bindArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case decimal.Decimal:
			out[i] = pgtype.Numeric{Int: v.Coefficient(), Exp: v.Exponent(), Valid: true}
		case decimal.NullDecimal:
			if !v.Valid {
				out[i] = nil
				continue
			}
			out[i] = pgtype.Numeric{Int: v.Decimal.Coefficient(), Exp: v.Decimal.Exponent(), Valid: true}
		default:
			out[i] = a
		}
	}
	return out
}

// fromPG maps pgx decoded values onto the types storage.Row accessors expect.
func fromPG(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid || t.NaN || t.InfinityModifier != pgtype.Finite || t.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(t.Int, t.Exp)
	default:
		return v
	}
}
