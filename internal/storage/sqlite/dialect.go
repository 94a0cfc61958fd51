package sqlite

import (
	"strings"

	"awdw/internal/storage"
)

// Dialect renders SQLite statements. SQLite 3.35+ understands ON CONFLICT and
// RETURNING with the same shape as Postgres.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Ident(name string) string { return sqlIdent(name) }

func (Dialect) Upsert(table string, cols []string, keyCols []string, action storage.ConflictAction) string {
	return storage.BuildOnConflictUpsert(sqlIdent, table, cols, keyCols, action)
}

func (Dialect) InsertReturning(table string, cols []string, keyCol string) string {
	return storage.BuildInsertReturning(sqlIdent, table, cols, keyCol)
}

// Truncate uses DELETE; SQLite has no TRUNCATE statement.
func (Dialect) Truncate(table string) string {
	return "DELETE FROM " + table
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return storage.QuoteDouble(strings.TrimSpace(id))
}
