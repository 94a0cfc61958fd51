// Package facts loads the sales, purchases and inventory snapshot fact tables.
package facts

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"awdw/internal/storage"
)

// Lookup maps a natural key to a dimension surrogate key.
type Lookup struct {
	Table            string
	KeyColumn        string
	NaturalKeyColumn string

	// Current restricts historized dimensions to their current row.
	Current bool

	// Extra columns fetched with the key.
	Extra []string
}

var (
	ProductLookup    = Lookup{Table: "dim_product", KeyColumn: "product_key", NaturalKeyColumn: "product_nk", Current: true, Extra: []string{"standard_cost"}}
	CustomerLookup   = Lookup{Table: "dim_customer", KeyColumn: "customer_key", NaturalKeyColumn: "customer_nk", Current: true}
	TerritoryLookup  = Lookup{Table: "dim_territory", KeyColumn: "territory_key", NaturalKeyColumn: "territory_nk"}
	EmployeeLookup   = Lookup{Table: "dim_employee", KeyColumn: "employee_key", NaturalKeyColumn: "employee_nk"}
	StoreLookup      = Lookup{Table: "dim_store", KeyColumn: "store_key", NaturalKeyColumn: "store_nk"}
	ShipMethodLookup = Lookup{Table: "dim_shipmethod", KeyColumn: "ship_method_key", NaturalKeyColumn: "ship_method_nk"}
	PromotionLookup  = Lookup{Table: "dim_promotion", KeyColumn: "promotion_key", NaturalKeyColumn: "promotion_nk"}
	CreditCardLookup = Lookup{Table: "dim_creditcard", KeyColumn: "credit_card_key", NaturalKeyColumn: "credit_card_nk"}
	VendorLookup     = Lookup{Table: "dim_vendor", KeyColumn: "vendor_key", NaturalKeyColumn: "vendor_nk"}
	LocationLookup   = Lookup{Table: "dim_location", KeyColumn: "location_key", NaturalKeyColumn: "location_nk"}
)

// Resolver resolves natural keys against the warehouse, caching hits and
// misses for the life of one load. Dimensions must not change while a
// Resolver is in use.
type Resolver struct {
	schema string
	cache  map[string]map[int64]storage.Row
	hits   int
	misses int
}

// NewResolver returns a Resolver over tables in schema.
func NewResolver(schema string) *Resolver {
	return &Resolver{schema: schema, cache: map[string]map[int64]storage.Row{}}
}

// Row returns the dimension row for nk, or nil when nk is null or unknown.
// q is the sink or a transaction open on it.
func (r *Resolver) Row(ctx context.Context, q storage.Querier, l Lookup, nk any) (storage.Row, error) {
	id, ok := storage.AsInt64(nk)
	if !ok {
		return nil, nil
	}

	byNK := r.cache[l.Table]
	if byNK == nil {
		byNK = map[int64]storage.Row{}
		r.cache[l.Table] = byNK
	}
	if row, seen := byNK[id]; seen {
		r.hits++
		return row, nil
	}
	r.misses++

	cols := append([]string{l.KeyColumn}, l.Extra...)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(cols, ", "), storage.Qualify(r.schema, l.Table), l.NaturalKeyColumn)
	args := []any{id}
	if l.Current {
		query += " AND is_current = ?"
		args = append(args, true)
	}

	row, err := q.FetchOne(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %s=%d: %w", l.Table, l.NaturalKeyColumn, id, err)
	}
	byNK[id] = row
	return row, nil
}

// Key returns the surrogate key for nk as an int64, or nil when it cannot be
// resolved. The result binds directly as a nullable foreign key.
func (r *Resolver) Key(ctx context.Context, q storage.Querier, l Lookup, nk any) (any, error) {
	row, err := r.Row(ctx, q, l, nk)
	if err != nil || row == nil {
		return nil, err
	}
	return row.NullableInt64(l.KeyColumn), nil
}

// Product returns the current product key (or nil) and its standard cost, zero
// when the product or its cost is unknown.
func (r *Resolver) Product(ctx context.Context, q storage.Querier, nk any) (any, decimal.Decimal, error) {
	row, err := r.Row(ctx, q, ProductLookup, nk)
	if err != nil || row == nil {
		return nil, decimal.Zero, err
	}
	cost, _ := row.Decimal("standard_cost")
	return row.NullableInt64(ProductLookup.KeyColumn), cost, nil
}

// Stats returns cache hits and store lookups so far.
func (r *Resolver) Stats() (hits, misses int) { return r.hits, r.misses }
