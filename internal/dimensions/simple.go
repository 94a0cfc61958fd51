// Package dimensions loads warehouse dimensions from the OLTP source.
//
// Product and customer go through the SCD2 engine. The remaining dimensions
// keep no history and are upserted in place by natural key.
package dimensions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"awdw/internal/storage"
)

// Table describes a non-historized dimension. Query must alias its columns to
// the sink column names in Columns; Columns[0] is the natural key.
type Table struct {
	Name    string
	Columns []string
	Query   string

	// Values builds the bound values for one source row. Nil reads Columns
	// from the row by name.
	Values func(r storage.Row) []any
}

// NaturalKey returns the natural key column.
func (t Table) NaturalKey() string { return t.Columns[0] }

var (
	Territory = Table{
		Name:    "dim_territory",
		Columns: []string{"territory_nk", "name", "country_region_code", "group"},
		Query: `SELECT territoryid AS territory_nk, name, countryregioncode AS country_region_code, "group"
			FROM sales.salesterritory`,
	}

	Employee = Table{
		Name:    "dim_employee",
		Columns: []string{"employee_nk", "employee_name"},
		Query: `SELECT sp.businessentityid AS employee_nk, p.firstname, p.lastname
			FROM sales.salesperson sp
			JOIN person.person p ON p.businessentityid = sp.businessentityid`,
		Values: func(r storage.Row) []any {
			return []any{r.NullableInt64("employee_nk"), FullName(r.Get("firstname"), r.Get("lastname"))}
		},
	}

	Store = Table{
		Name:    "dim_store",
		Columns: []string{"store_nk", "store_name"},
		Query:   `SELECT businessentityid AS store_nk, name AS store_name FROM sales.store`,
	}

	ShipMethod = Table{
		Name:    "dim_shipmethod",
		Columns: []string{"ship_method_nk", "name"},
		Query:   `SELECT shipmethodid AS ship_method_nk, name FROM purchasing.shipmethod`,
	}

	Promotion = Table{
		Name:    "dim_promotion",
		Columns: []string{"promotion_nk", "description", "discount_pct", "type", "category"},
		Query: `SELECT specialofferid AS promotion_nk, description, discountpct AS discount_pct, type, category
			FROM sales.specialoffer`,
		Values: func(r storage.Row) []any {
			return []any{r.NullableInt64("promotion_nk"), r.Get("description"), r.NullableDecimal("discount_pct"), r.Get("type"), r.Get("category")}
		},
	}

	Vendor = Table{
		Name:    "dim_vendor",
		Columns: []string{"vendor_nk", "vendor_name"},
		Query:   `SELECT businessentityid AS vendor_nk, name AS vendor_name FROM purchasing.vendor`,
	}

	CreditCard = Table{
		Name:    "dim_creditcard",
		Columns: []string{"credit_card_nk", "card_type"},
		Query:   `SELECT creditcardid AS credit_card_nk, cardtype AS card_type FROM sales.creditcard`,
	}

	Location = Table{
		Name:    "dim_location",
		Columns: []string{"location_nk", "location_name"},
		Query:   `SELECT locationid AS location_nk, name AS location_name FROM production.location`,
	}
)

// Tables lists the non-historized dimensions in load order.
var Tables = []Table{Territory, Employee, Store, ShipMethod, Promotion, Vendor, CreditCard, Location}

// Loader extracts dimensions from Source and writes them to Sink.
type Loader struct {
	Source storage.Querier
	Sink   storage.Store

	// Schema qualifies every warehouse table.
	Schema string

	// IncludeDiscontinued keeps products with a discontinued date.
	IncludeDiscontinued bool

	Logger *zap.Logger
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// LoadTable upserts every source row of t by natural key and returns the
// number of rows written. Each row auto-commits.
func (l *Loader) LoadTable(ctx context.Context, t Table) (int, error) {
	rows, err := l.Source.FetchAll(ctx, t.Query)
	if err != nil {
		return 0, fmt.Errorf("%s: extract: %w", t.Name, err)
	}

	stmt := l.Sink.Dialect().Upsert(storage.Qualify(l.Schema, t.Name), t.Columns, []string{t.NaturalKey()}, storage.DoUpdate)
	for i, r := range rows {
		vals := rowValues(t, r)
		if vals[0] == nil {
			return i, fmt.Errorf("%s: row %d: missing %s", t.Name, i, t.NaturalKey())
		}
		if _, err := l.Sink.Execute(ctx, stmt, vals...); err != nil {
			return i, fmt.Errorf("%s: upsert %s=%v: %w", t.Name, t.NaturalKey(), vals[0], err)
		}
	}

	l.logger().Debug("dimension loaded", zap.String("table", t.Name), zap.Int("rows", len(rows)))
	return len(rows), nil
}

func rowValues(t Table, r storage.Row) []any {
	if t.Values != nil {
		return t.Values(r)
	}
	vals := make([]any, len(t.Columns))
	vals[0] = r.NullableInt64(t.Columns[0])
	for i := 1; i < len(t.Columns); i++ {
		vals[i] = r.Get(t.Columns[i])
	}
	return vals
}

// FullName joins first and last name. It returns "N/A" unless both parts are
// present.
func FullName(first, last any) string {
	parts := make([]string, 0, 2)
	for _, v := range []any{first, last} {
		s, ok := storage.AsString(v)
		if !ok || strings.TrimSpace(s) == "" {
			return "N/A"
		}
		parts = append(parts, strings.TrimSpace(s))
	}
	return strings.Join(parts, " ")
}
