package facts

import (
	"context"
	"fmt"
	"strconv"

	"awdw/internal/dimensions"
	"awdw/internal/storage"
)

// PurchasesTable is the purchases fact table.
const PurchasesTable = "fact_purchases"

// Each product is placed at its smallest inventory location so a purchase
// line never fans out across the product's inventory rows.
const purchasesQuery = `SELECT
	d.purchaseorderdetailid,
	h.purchaseorderid,
	h.orderdate,
	h.vendorid,
	d.productid,
	d.orderqty,
	d.unitprice,
	pi.locationid
FROM purchasing.purchaseorderdetail d
JOIN purchasing.purchaseorderheader h ON h.purchaseorderid = d.purchaseorderid
LEFT JOIN (
	SELECT productid, MIN(locationid) AS locationid
	FROM production.productinventory
	GROUP BY productid
) pi ON pi.productid = d.productid
ORDER BY d.purchaseorderdetailid`

var purchasesColumns = []string{
	"order_date_key", "vendor_key", "product_key", "location_key",
	"purchase_order_number", "purchase_order_line_id",
	"order_qty", "unit_price", "line_total",
}

// FactResult summarizes a full-refresh fact load.
type FactResult struct {
	Extracted int
	Inserted  int
	Skipped   int
}

// LoadPurchases reloads fact_purchases from every purchase order line. With
// truncate the table is emptied first; without it the lines are appended
// again. Lines without an order date are skipped. Each row auto-commits.
func (l *Loader) LoadPurchases(ctx context.Context, truncate bool) (FactResult, error) {
	var res FactResult

	if truncate {
		if _, err := l.Sink.Execute(ctx, l.Sink.Dialect().Truncate(l.table(PurchasesTable))); err != nil {
			return res, fmt.Errorf("%s: truncate: %w", PurchasesTable, err)
		}
	}

	rows, err := l.Source.FetchAll(ctx, purchasesQuery)
	if err != nil {
		return res, fmt.Errorf("%s: extract: %w", PurchasesTable, err)
	}
	res.Extracted = len(rows)

	resolver := NewResolver(l.Schema)
	stmt := l.insertStmt(PurchasesTable, purchasesColumns)

	for _, r := range rows {
		orderDate := optionalTime(r.Get("orderdate"))
		if orderDate == nil {
			res.Skipped++
			continue
		}

		args, err := l.purchaseFact(ctx, resolver, r)
		if err != nil {
			return res, fmt.Errorf("%s: %w", PurchasesTable, err)
		}
		args = append([]any{dimensions.DateKey(*orderDate)}, args...)

		if _, err := l.Sink.Execute(ctx, stmt, args...); err != nil {
			return res, fmt.Errorf("%s: insert line %v: %w", PurchasesTable, r.Get("purchaseorderdetailid"), err)
		}
		res.Inserted++
	}
	return res, nil
}

// purchaseFact returns every purchases column value but the order date key.
func (l *Loader) purchaseFact(ctx context.Context, resolver *Resolver, r storage.Row) ([]any, error) {
	vendorKey, err := resolver.Key(ctx, l.Sink, VendorLookup, r.Get("vendorid"))
	if err != nil {
		return nil, err
	}
	productKey, _, err := resolver.Product(ctx, l.Sink, r.Get("productid"))
	if err != nil {
		return nil, err
	}
	locationKey, err := resolver.Key(ctx, l.Sink, LocationLookup, r.Get("locationid"))
	if err != nil {
		return nil, err
	}

	var number any
	if id, ok := r.Int64("purchaseorderid"); ok {
		number = strconv.FormatInt(id, 10)
	}

	qty := decimalOrZero(r, "orderqty")
	price := decimalOrZero(r, "unitprice")
	return []any{
		vendorKey, productKey, locationKey,
		number, r.NullableInt64("purchaseorderdetailid"),
		r.NullableInt64("orderqty"), price, qty.Mul(price).Round(Scale),
	}, nil
}
