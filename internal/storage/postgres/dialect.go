package postgres

import (
	"awdw/internal/storage"
)

// Dialect renders Postgres-specific statements.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

// Ident quotes an identifier. AdventureWorks ports and the warehouse DDL use
// lower-case names, so quoting never changes resolution.
func (Dialect) Ident(name string) string { return pgIdent(name) }

func (Dialect) Upsert(table string, cols []string, keyCols []string, action storage.ConflictAction) string {
	return storage.BuildOnConflictUpsert(pgIdent, table, cols, keyCols, action)
}

func (Dialect) InsertReturning(table string, cols []string, keyCol string) string {
	return storage.BuildInsertReturning(pgIdent, table, cols, keyCol)
}

// Truncate also restarts the table's identity sequence.
func (Dialect) Truncate(table string) string {
	return "TRUNCATE TABLE " + table + " RESTART IDENTITY"
}

func pgIdent(id string) string { return storage.QuoteDouble(id) }
