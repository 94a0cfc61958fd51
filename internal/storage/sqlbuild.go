package storage

import (
	"fmt"
	"strings"
)

// Rebind rewrites "?" placeholders using placeholder(n) for the n-th (1-based)
// parameter. Question marks inside single-quoted literals, double-quoted
// identifiers and -- comments are left alone.
//
// Why this exists:
//   - Loaders write one query text for every backend.
//   - It is pure, so placeholder numbering is unit tested without a database.
func Rebind(query string, placeholder func(n int) string) string {
	if placeholder == nil || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)

	n := 0
	var quote byte
	inComment := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			inComment = true
		case c == '?':
			n++
			b.WriteString(placeholder(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// DollarPlaceholder renders Postgres-style $n parameters.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// AtPPlaceholder renders SQL Server-style @pN parameters.
func AtPPlaceholder(n int) string { return fmt.Sprintf("@p%d", n) }

// Placeholders returns "?, ?, ..." with n entries.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// JoinIdents quotes every column with ident and joins them with ", ".
func JoinIdents(ident func(string) string, cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, ident(c))
	}
	return strings.Join(out, ", ")
}

// BuildOnConflictUpsert renders the INSERT ... ON CONFLICT form shared by
// Postgres and SQLite.
//
// When every column is part of the key, DoUpdate degrades to DO NOTHING since
// there is nothing left to overwrite.
func BuildOnConflictUpsert(ident func(string) string, table string, cols, keyCols []string, action ConflictAction) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(JoinIdents(ident, cols))
	b.WriteString(") VALUES (")
	b.WriteString(Placeholders(len(cols)))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(JoinIdents(ident, keyCols))
	b.WriteString(")")

	rest := NonKeyColumns(cols, keyCols)
	if action == DoNothing || len(rest) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	b.WriteString(" DO UPDATE SET ")
	for i, c := range rest {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(ident(c))
	}
	return b.String()
}

// BuildInsert renders a plain single-row INSERT. The syntax is the same on
// every backend.
func BuildInsert(ident func(string) string, table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, JoinIdents(ident, cols), Placeholders(len(cols)))
}

// BuildInsertReturning renders INSERT ... RETURNING, shared by Postgres and SQLite.
func BuildInsertReturning(ident func(string) string, table string, cols []string, keyCol string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table, JoinIdents(ident, cols), Placeholders(len(cols)), ident(keyCol))
}

// NonKeyColumns returns cols minus keyCols, preserving order.
func NonKeyColumns(cols, keyCols []string) []string {
	keys := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		keys[strings.ToLower(k)] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !keys[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out
}

// QuoteDouble quotes an identifier with ANSI double quotes.
func QuoteDouble(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
