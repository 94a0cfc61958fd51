package facts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for money measures (numeric(18,4)).
const Scale = 4

// SalesLine holds the source values the sales measures derive from.
type SalesLine struct {
	Qty           decimal.Decimal
	UnitPrice     decimal.Decimal
	Discount      decimal.Decimal
	OrderSubtotal decimal.Decimal
	TaxAmt        decimal.Decimal
	Freight       decimal.Decimal
	StandardCost  decimal.Decimal

	OrderDate *time.Time
	DueDate   *time.Time
	ShipDate  *time.Time
}

// SalesMeasures are the derived measures of one sales fact row.
type SalesMeasures struct {
	LineSubtotal       decimal.Decimal
	TaxAlloc           decimal.Decimal
	FreightAlloc       decimal.Decimal
	TotalDue           decimal.Decimal
	StandardCostAmount decimal.Decimal
	GrossMargin        decimal.Decimal

	// ShippingDays is nil when the order or ship date is missing.
	ShippingDays *int64
	// OnTime is nil when the ship or due date is missing.
	OnTime *bool
}

// ComputeSales derives every sales measure for l.
func ComputeSales(l SalesLine) SalesMeasures {
	sub := LineSubtotal(l.Qty, l.UnitPrice, l.Discount)
	tax := Allocate(sub, l.OrderSubtotal, l.TaxAmt)
	freight := Allocate(sub, l.OrderSubtotal, l.Freight)
	cost := l.StandardCost.Mul(l.Qty).Round(Scale)

	return SalesMeasures{
		LineSubtotal:       sub,
		TaxAlloc:           tax,
		FreightAlloc:       freight,
		TotalDue:           sub.Add(tax).Add(freight),
		StandardCostAmount: cost,
		GrossMargin:        sub.Sub(cost),
		ShippingDays:       ShippingDays(l.OrderDate, l.ShipDate),
		OnTime:             OnTime(l.ShipDate, l.DueDate),
	}
}

// LineSubtotal is qty × price × (1 − discount) at Scale places. It never
// trusts a precomputed line total.
func LineSubtotal(qty, price, discount decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Mul(decimal.NewFromInt(1).Sub(discount)).Round(Scale)
}

// Allocate apportions a header amount to a line by its share of the order
// subtotal. A zero order subtotal allocates nothing.
func Allocate(lineSubtotal, orderSubtotal, amount decimal.Decimal) decimal.Decimal {
	if orderSubtotal.IsZero() {
		return decimal.Zero
	}
	return lineSubtotal.Mul(amount).Div(orderSubtotal).Round(Scale)
}

// ShippingDays is the number of calendar days from order to ship.
func ShippingDays(order, ship *time.Time) *int64 {
	if order == nil || ship == nil {
		return nil
	}
	days := int64(dateOnly(*ship).Sub(dateOnly(*order)).Hours() / 24)
	return &days
}

// OnTime reports whether the order shipped no later than its due date. Like
// ShippingDays it compares calendar dates, so shipping any time on the due
// day is on time.
func OnTime(ship, due *time.Time) *bool {
	if ship == nil || due == nil {
		return nil
	}
	ok := !dateOnly(*ship).After(dateOnly(*due))
	return &ok
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
