package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Get returns the raw value of col, or nil when the column is absent.
func (r Row) Get(col string) any {
	if r == nil {
		return nil
	}
	return r[strings.ToLower(col)]
}

// Int64 reads col as an integer. ok is false for NULL or non-integral values.
func (r Row) Int64(col string) (int64, bool) {
	return AsInt64(r.Get(col))
}

// Decimal reads col as an exact decimal. ok is false for NULL or unparsable values.
func (r Row) Decimal(col string) (decimal.Decimal, bool) {
	return AsDecimal(r.Get(col))
}

// String reads col as text. ok is false for NULL.
func (r Row) String(col string) (string, bool) {
	return AsString(r.Get(col))
}

// Time reads col as a timestamp. ok is false for NULL or unparsable values.
func (r Row) Time(col string) (time.Time, bool) {
	return AsTime(r.Get(col))
}

// Bool reads col as a boolean. Integer 0/1 and "true"/"false" text are accepted
// since SQLite and SQL Server hand booleans back as numbers.
func (r Row) Bool(col string) (bool, bool) {
	return AsBool(r.Get(col))
}

// NullableInt64 returns col as int64 or nil, ready to bind as a query argument.
func (r Row) NullableInt64(col string) any {
	if v, ok := r.Int64(col); ok {
		return v
	}
	return nil
}

// NullableDecimal returns col as decimal.Decimal or nil.
func (r Row) NullableDecimal(col string) any {
	if v, ok := r.Decimal(col); ok {
		return v
	}
	return nil
}

// AsInt64 coerces a driver value to int64.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case decimal.Decimal:
		if !t.IsInteger() {
			return 0, false
		}
		return t.IntPart(), true
	case []byte:
		return AsInt64(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if d, err := decimal.NewFromString(s); err == nil && d.IsInteger() {
			return d.IntPart(), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsBool coerces a driver value to bool.
func AsBool(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, false
	case bool:
		return t, true
	case []byte:
		return AsBool(string(t))
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		n, ok := AsInt64(v)
		if !ok {
			return false, false
		}
		return n != 0, true
	}
}

// AsDecimal coerces a driver value to an exact decimal.
//
// Floats go through decimal.NewFromFloat, which picks the shortest decimal
// that round-trips, so 3578.27 stays 3578.27 rather than its binary expansion.
func AsDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case decimal.NullDecimal:
		return t.Decimal, t.Valid
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int16:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case []byte:
		return AsDecimal(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// AsString coerces a driver value to text.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprint(v), true
	}
}

// AsTime coerces a driver value to time.Time.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case []byte:
		return AsTime(string(t))
	case string:
		ts, err := ParseTime(t)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

// ParseTime parses timestamps that drivers hand back as text into time.Time.
//
// Supported formats:
//   - RFC3339Nano (what the sqlite backend writes)
//   - RFC3339
//   - "2006-01-02 15:04:05Z07:00"
//   - "2006-01-02 15:04:05.999999999Z07:00"
//   - "2006-01-02 15:04:05.999999999 -0700 MST" (time.Time.String)
//   - "2006-01-02 15:04:05" (interpreted as UTC)
//   - "2006-01-02" (interpreted as UTC)
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}
	for _, layout := range zoned {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
