package mssql

import (
	"fmt"
	"strings"

	"awdw/internal/storage"
)

// Dialect renders T-SQL statements.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) Ident(name string) string { return mssqlIdent(name) }

// Upsert renders an update-then-insert batch. Parameters reference column
// positions directly (@p1 is cols[0]) so each value is bound once even though
// it appears in both statements.
//
// Example (cols = nk, name; keyCols = nk):
//
//	UPDATE t SET [name] = @p2 WHERE [nk] = @p1;
//	IF @@ROWCOUNT = 0 INSERT INTO t ([nk], [name]) VALUES (@p1, @p2);
func (Dialect) Upsert(table string, cols []string, keyCols []string, action storage.ConflictAction) string {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[strings.ToLower(c)] = i + 1
	}

	where := make([]string, 0, len(keyCols))
	for _, k := range keyCols {
		where = append(where, fmt.Sprintf("%s = @p%d", mssqlIdent(k), pos[strings.ToLower(k)]))
	}
	whereSQL := strings.Join(where, " AND ")

	values := make([]string, len(cols))
	for i := range cols {
		values[i] = fmt.Sprintf("@p%d", i+1)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		table, storage.JoinIdents(mssqlIdent, cols), strings.Join(values, ", "))

	rest := storage.NonKeyColumns(cols, keyCols)
	if action == storage.DoNothing || len(rest) == 0 {
		return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE %s) %s", table, whereSQL, insertSQL)
	}

	set := make([]string, 0, len(rest))
	for _, c := range rest {
		set = append(set, fmt.Sprintf("%s = @p%d", mssqlIdent(c), pos[strings.ToLower(c)]))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s; IF @@ROWCOUNT = 0 %s",
		table, strings.Join(set, ", "), whereSQL, insertSQL)
}

func (Dialect) InsertReturning(table string, cols []string, keyCol string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		table, storage.JoinIdents(mssqlIdent, cols), mssqlIdent(keyCol), storage.Placeholders(len(cols)))
}

func (Dialect) Truncate(table string) string {
	return "TRUNCATE TABLE " + table
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(strings.TrimSpace(name), "]", "]]") + "]"
}
