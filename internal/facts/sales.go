package facts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"awdw/internal/dimensions"
	"awdw/internal/metrics"
	"awdw/internal/runcontrol"
	"awdw/internal/storage"
)

// SalesTable is the sales fact table.
const SalesTable = "fact_sales"

const salesQuery = `SELECT
	d.salesorderdetailid,
	h.salesordernumber,
	h.orderdate,
	h.duedate,
	h.shipdate,
	h.subtotal AS order_subtotal,
	h.taxamt,
	h.freight,
	h.creditcardid,
	h.territoryid,
	h.shipmethodid,
	h.salespersonid,
	c.customerid,
	c.storeid,
	d.productid,
	d.specialofferid,
	d.orderqty,
	d.unitprice,
	d.unitpricediscount
FROM sales.salesorderdetail d
JOIN sales.salesorderheader h ON h.salesorderid = d.salesorderid
JOIN sales.customer c ON c.customerid = h.customerid`

var salesColumns = []string{
	"order_date_key", "due_date_key", "ship_date_key",
	"customer_key", "product_key", "territory_key", "employee_key", "store_key", "ship_method_key",
	"promotion_key", "credit_card_key",
	"sales_order_number", "sales_order_line_id",
	"order_qty", "unit_price", "unit_price_discount",
	"line_subtotal", "tax_amount_alloc", "freight_amount_alloc", "total_due_line",
	"standard_cost_amount", "gross_margin_amount", "shipping_days", "on_time_delivery",
}

// SalesResult summarizes one sales load.
type SalesResult struct {
	Extracted int
	Inserted  int
	Skipped   int
	Batches   int

	// Watermark is the last processed line id after the run; HasWatermark is
	// false only when no run has ever processed a line.
	Watermark    int64
	HasWatermark bool
}

// LoadSales appends sales order lines to fact_sales.
//
// When incremental is true only lines above the stored watermark are read.
// Lines are processed in id order and committed in batches; each batch commits
// together with the watermark advanced to its highest line id, skipped lines
// included. A run that extracts nothing leaves the watermark untouched.
//
// With incremental false every source line is read again and appended, so
// lines already loaded are duplicated.
func (l *Loader) LoadSales(ctx context.Context, incremental bool) (SalesResult, error) {
	marks := runcontrol.New(l.Schema)

	last, hasLast, err := marks.Load(ctx, l.Sink, runcontrol.SalesPipeline)
	if err != nil {
		return SalesResult{}, fmt.Errorf("%s: %w", SalesTable, err)
	}
	res := SalesResult{Watermark: last, HasWatermark: hasLast}

	query, args := salesQuery, []any(nil)
	if incremental && hasLast {
		query += "\nWHERE d.salesorderdetailid > ?"
		args = append(args, last)
	}
	query += "\nORDER BY d.salesorderdetailid"

	rows, err := l.Source.FetchAll(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("%s: extract: %w", SalesTable, err)
	}
	res.Extracted = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	resolver := NewResolver(l.Schema)
	stmt := l.insertStmt(SalesTable, salesColumns)
	size := l.batchSize()

	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))

		inserted, skipped, maxID, err := l.salesBatch(ctx, resolver, marks, stmt, rows[start:end])
		if err != nil {
			return res, fmt.Errorf("%s: batch rows=%d..%d: %w", SalesTable, start, end-1, err)
		}

		res.Inserted += inserted
		res.Skipped += skipped
		res.Batches++
		res.Watermark, res.HasWatermark = maxID, true

		metrics.RecordBatch()
		metrics.RecordWatermark(runcontrol.SalesPipeline, maxID)
		l.logger().Debug("sales batch committed",
			zap.String("table", SalesTable),
			zap.Int("rows", end-start),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped),
			zap.Int64("watermark", maxID),
		)
	}

	hits, misses := resolver.Stats()
	l.logger().Debug("sales lookups", zap.Int("cache_hits", hits), zap.Int("cache_misses", misses))
	return res, nil
}

// salesBatch inserts one batch and advances the watermark in a single
// transaction.
func (l *Loader) salesBatch(ctx context.Context, resolver *Resolver, marks *runcontrol.Watermarks, stmt string, batch []storage.Row) (inserted, skipped int, maxID int64, err error) {
	tx, err := l.Sink.Begin(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, r := range batch {
		id, ok := r.Int64("salesorderdetailid")
		if !ok {
			return 0, 0, 0, fmt.Errorf("row without salesorderdetailid")
		}
		maxID = max(maxID, id)

		args, ok, err := l.salesFact(ctx, tx, resolver, r)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("line %d: %w", id, err)
		}
		if !ok {
			skipped++
			continue
		}
		if _, err := tx.Execute(ctx, stmt, args...); err != nil {
			return 0, 0, 0, fmt.Errorf("insert line %d: %w", id, err)
		}
		inserted++
	}

	if err := marks.Save(ctx, tx, l.Sink.Dialect(), runcontrol.SalesPipeline, maxID); err != nil {
		return 0, 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, skipped, maxID, nil
}

// salesFact resolves keys and measures for one line. ok is false when the
// order date is missing and the line must be skipped.
func (l *Loader) salesFact(ctx context.Context, q storage.Querier, resolver *Resolver, r storage.Row) (args []any, ok bool, err error) {
	orderDate := optionalTime(r.Get("orderdate"))
	if orderDate == nil {
		return nil, false, nil
	}
	dueDate := optionalTime(r.Get("duedate"))
	shipDate := optionalTime(r.Get("shipdate"))

	productKey, cost, err := resolver.Product(ctx, q, r.Get("productid"))
	if err != nil {
		return nil, false, err
	}

	keys := make([]any, 0, 7)
	for _, lk := range []struct {
		lookup Lookup
		col    string
	}{
		{CustomerLookup, "customerid"},
		{TerritoryLookup, "territoryid"},
		{EmployeeLookup, "salespersonid"},
		{StoreLookup, "storeid"},
		{ShipMethodLookup, "shipmethodid"},
		{PromotionLookup, "specialofferid"},
		{CreditCardLookup, "creditcardid"},
	} {
		k, err := resolver.Key(ctx, q, lk.lookup, r.Get(lk.col))
		if err != nil {
			return nil, false, err
		}
		keys = append(keys, k)
	}

	qty := decimalOrZero(r, "orderqty")
	price := decimalOrZero(r, "unitprice")
	discount := decimalOrZero(r, "unitpricediscount")
	m := ComputeSales(SalesLine{
		Qty:           qty,
		UnitPrice:     price,
		Discount:      discount,
		OrderSubtotal: decimalOrZero(r, "order_subtotal"),
		TaxAmt:        decimalOrZero(r, "taxamt"),
		Freight:       decimalOrZero(r, "freight"),
		StandardCost:  cost,
		OrderDate:     orderDate,
		DueDate:       dueDate,
		ShipDate:      shipDate,
	})

	number, _ := r.String("salesordernumber")
	args = []any{
		dimensions.DateKey(*orderDate), dateKey(dueDate), dateKey(shipDate),
		keys[0], productKey, keys[1], keys[2], keys[3], keys[4],
		keys[5], keys[6],
		number, r.NullableInt64("salesorderdetailid"),
		r.NullableInt64("orderqty"), price, discount,
		m.LineSubtotal, m.TaxAlloc, m.FreightAlloc, m.TotalDue,
		m.StandardCostAmount, m.GrossMargin, nullable(m.ShippingDays), nullable(m.OnTime),
	}
	return args, true, nil
}

func dateKey(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dimensions.DateKey(*t)
}
