package scd

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind Kind
		a, b any
		want bool
	}{
		{name: "both_nil", kind: Text, a: nil, b: nil, want: true},
		{name: "empty_is_null", kind: Text, a: "", b: nil, want: true},
		{name: "empty_bytes_is_null", kind: Text, a: []byte{}, b: "", want: true},
		{name: "null_vs_value", kind: Text, a: nil, b: "Red", want: false},
		{name: "same_text", kind: Text, a: "Red", b: []byte("Red"), want: true},
		{name: "nfc_vs_nfd", kind: Text, a: "Caf\u00e9", b: "Cafe\u0301", want: true},
		{name: "case_matters", kind: Text, a: "red", b: "Red", want: false},
		{name: "trailing_zeros", kind: Decimal, a: "18.5", b: decimal.RequireFromString("18.5000"), want: true},
		{name: "float_vs_decimal", kind: Decimal, a: 13.0863, b: decimal.RequireFromString("13.0863"), want: true},
		{name: "int_vs_decimal", kind: Decimal, a: int64(18), b: "18.00", want: true},
		{name: "decimal_differs", kind: Decimal, a: "18.5", b: "18.51", want: false},
		{name: "zero_is_not_null", kind: Decimal, a: int64(0), b: nil, want: false},
		{name: "null_decimal", kind: Decimal, a: decimal.NullDecimal{}, b: nil, want: true},
		{name: "int_kinds", kind: Integer, a: int32(9), b: int64(9), want: true},
		{name: "int_text", kind: Integer, a: "9", b: int64(9), want: true},
		{name: "int_differs", kind: Integer, a: int64(9), b: int64(5), want: false},
		{name: "uncoercible_falls_back_to_text", kind: Integer, a: "n/a", b: "n/a", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := equal(tt.kind, tt.a, tt.b); got != tt.want {
				t.Fatalf("equal(%v, %#v, %#v)=%v want %v", tt.kind, tt.a, tt.b, got, tt.want)
			}
			if got := equal(tt.kind, tt.b, tt.a); got != tt.want {
				t.Fatalf("equal not symmetric for %#v, %#v", tt.a, tt.b)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	if got := canonical(Decimal, 13.0863); !got.(decimal.Decimal).Equal(decimal.RequireFromString("13.0863")) {
		t.Fatalf("decimal canonical=%v", got)
	}
	if got := canonical(Integer, "42"); got != int64(42) {
		t.Fatalf("integer canonical=%#v", got)
	}
	if got := canonical(Text, []byte("Cafe\u0301")); got != "Caf\u00e9" {
		t.Fatalf("text canonical=%q", got)
	}
	if got := canonical(Text, nil); got != nil {
		t.Fatalf("nil canonical=%#v", got)
	}
}
