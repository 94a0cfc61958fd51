package scd

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"awdw/internal/storage"
)

// isNull treats nil, "" and empty bytes as the same absent value. Zero is not null.
func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	case decimal.NullDecimal:
		return !t.Valid
	default:
		return false
	}
}

// equal reports whether a stored and an incoming attribute value are the same.
// Values that cannot be coerced to kind fall back to text comparison.
func equal(kind Kind, a, b any) bool {
	an, bn := isNull(a), isNull(b)
	if an || bn {
		return an == bn
	}

	switch kind {
	case Decimal:
		da, okA := storage.AsDecimal(a)
		db, okB := storage.AsDecimal(b)
		if okA && okB {
			return da.Equal(db)
		}
	case Integer:
		ia, okA := storage.AsInt64(a)
		ib, okB := storage.AsInt64(b)
		if okA && okB {
			return ia == ib
		}
	}

	sa, _ := storage.AsString(a)
	sb, _ := storage.AsString(b)
	return norm.NFC.String(sa) == norm.NFC.String(sb)
}

// canonical converts v to the Go type bound for kind, keeping nil as nil.
func canonical(kind Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case Decimal:
		if d, ok := storage.AsDecimal(v); ok {
			return d
		}
	case Integer:
		if i, ok := storage.AsInt64(v); ok {
			return i
		}
	case Text:
		if s, ok := storage.AsString(v); ok {
			return norm.NFC.String(s)
		}
	}
	return v
}
