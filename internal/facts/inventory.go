package facts

import (
	"context"
	"fmt"
	"time"

	"awdw/internal/dimensions"
)

// InventoryTable is the inventory snapshot fact table.
const InventoryTable = "fact_inventory_snapshot"

const inventoryQuery = `SELECT productid, locationid, quantity
FROM production.productinventory
ORDER BY productid, locationid`

var inventoryColumns = []string{"snapshot_date_key", "product_key", "location_key", "quantity_on_hand"}

// LoadInventorySnapshot appends the current product inventory keyed by the
// date of snapshot. Earlier snapshots for the same date are kept.
func (l *Loader) LoadInventorySnapshot(ctx context.Context, snapshot time.Time) (FactResult, error) {
	var res FactResult

	rows, err := l.Source.FetchAll(ctx, inventoryQuery)
	if err != nil {
		return res, fmt.Errorf("%s: extract: %w", InventoryTable, err)
	}
	res.Extracted = len(rows)

	dateKey := dimensions.DateKey(snapshot)
	resolver := NewResolver(l.Schema)
	stmt := l.insertStmt(InventoryTable, inventoryColumns)

	for _, r := range rows {
		productKey, _, err := resolver.Product(ctx, l.Sink, r.Get("productid"))
		if err != nil {
			return res, fmt.Errorf("%s: %w", InventoryTable, err)
		}
		locationKey, err := resolver.Key(ctx, l.Sink, LocationLookup, r.Get("locationid"))
		if err != nil {
			return res, fmt.Errorf("%s: %w", InventoryTable, err)
		}

		if _, err := l.Sink.Execute(ctx, stmt, dateKey, productKey, locationKey, r.NullableInt64("quantity")); err != nil {
			return res, fmt.Errorf("%s: insert product %v location %v: %w",
				InventoryTable, r.Get("productid"), r.Get("locationid"), err)
		}
		res.Inserted++
	}
	return res, nil
}
