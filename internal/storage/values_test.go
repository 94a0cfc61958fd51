package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRow_AccessorsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	r := Row{"productid": int32(707), "listprice": "34.9900", "name": []byte("Sport-100")}

	id, ok := r.Int64("ProductID")
	require.True(t, ok)
	require.Equal(t, int64(707), id)

	price, ok := r.Decimal("ListPrice")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.RequireFromString("34.99")))

	name, ok := r.String("Name")
	require.True(t, ok)
	require.Equal(t, "Sport-100", name)

	_, ok = r.Int64("missing")
	require.False(t, ok)
	require.Nil(t, r.NullableInt64("missing"))
	require.Equal(t, int64(707), r.NullableInt64("productid"))
}

func TestAsInt64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{nil, 0, false},
		{int16(3), 3, true},
		{int32(4), 4, true},
		{int64(5), 5, true},
		{float64(6), 6, true},
		{float64(6.5), 0, false},
		{decimal.NewFromInt(7), 7, true},
		{decimal.RequireFromString("7.25"), 0, false},
		{"8", 8, true},
		{"9.000", 9, true},
		{"", 0, false},
		{[]byte("10"), 10, true},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := AsInt64(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("AsInt64(%#v)=(%d,%v) want (%d,%v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAsBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   bool
		wantOK bool
	}{
		{nil, false, false},
		{true, true, true},
		{int64(1), true, true},
		{int64(0), false, true},
		{"true", true, true},
		{[]byte("0"), false, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		got, ok := AsBool(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("AsBool(%#v)=(%v,%v) want (%v,%v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAsDecimal_FloatKeepsShortestForm(t *testing.T) {
	t.Parallel()

	d, ok := AsDecimal(3578.27)
	require.True(t, ok)
	require.Equal(t, "3578.27", d.String())

	_, ok = AsDecimal("abc")
	require.False(t, ok)

	_, ok = AsDecimal(decimal.NullDecimal{})
	require.False(t, ok)
}

func TestAsTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2011, 5, 31, 0, 0, 0, 0, time.UTC)

	for _, in := range []any{want, "2011-05-31", "2011-05-31 00:00:00", "2011-05-31T00:00:00Z", []byte("2011-05-31 00:00:00.000")} {
		got, ok := AsTime(in)
		require.True(t, ok, "input %#v", in)
		require.True(t, got.Equal(want), "input %#v got %s", in, got)
	}

	_, ok := AsTime(time.Time{})
	require.False(t, ok)
	_, ok = AsTime("not-a-time")
	require.False(t, ok)
}

func TestParseTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", want: time.Date(2026, 1, 27, 12, 17, 8, 123456789, time.UTC)},
		{name: "rfc3339", in: "2026-01-27T12:17:08Z", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "space_tz", in: "2026-01-27 12:17:08+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "space_tz_nanos", in: "2026-01-27 12:17:08.000000000+00:00", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "no_tz_assume_utc", in: "2026-01-27 12:17:08", want: time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC)},
		{name: "date_only", in: "2026-01-27", want: time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC)},
		{name: "empty", in: " ", wantErr: true},
		{name: "invalid", in: "not-a-time", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTime(%q) err=%v wantErr=%v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}
