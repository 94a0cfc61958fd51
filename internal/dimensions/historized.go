package dimensions

import (
	"context"
	"fmt"
	"time"

	"awdw/internal/scd"
	"awdw/internal/storage"
)

const productQuery = `SELECT
	p.productid AS product_nk,
	p.name AS product_name,
	p.productnumber AS product_number,
	p.color,
	p.size,
	p.style,
	sc.name AS subcategory,
	c.name AS category,
	p.standardcost AS standard_cost,
	p.listprice AS list_price
FROM production.product p
LEFT JOIN production.productsubcategory sc ON sc.productsubcategoryid = p.productsubcategoryid
LEFT JOIN production.productcategory c ON c.productcategoryid = sc.productcategoryid`

// Email and phone take the smallest value per person so a person with several
// addresses yields one stable row instead of a new version on every run.
const individualCustomerQuery = `SELECT
	c.customerid AS customer_nk,
	c.personid AS person_nk,
	pp.firstname,
	pp.lastname,
	(SELECT MIN(ea.emailaddress) FROM person.emailaddress ea WHERE ea.businessentityid = c.personid) AS email_address,
	(SELECT MIN(ph.phonenumber) FROM person.personphone ph WHERE ph.businessentityid = c.personid) AS phone,
	c.territoryid AS territory_nk
FROM sales.customer c
JOIN person.person pp ON pp.businessentityid = c.personid
WHERE c.personid IS NOT NULL AND c.storeid IS NULL
ORDER BY c.customerid`

const storeCustomerQuery = `SELECT
	c.customerid AS customer_nk,
	s.businessentityid AS store_nk,
	s.name AS customer_name,
	c.territoryid AS territory_nk
FROM sales.customer c
JOIN sales.store s ON s.businessentityid = c.storeid
WHERE c.storeid IS NOT NULL
ORDER BY c.customerid`

// Customer types.
const (
	CustomerIndividual = "Individual"
	CustomerStore      = "Store"
)

func (l *Loader) engine() *scd.Engine {
	return scd.NewEngine(l.Sink, l.Schema, l.logger())
}

// LoadProducts versions every source product into dim_product as of effective.
func (l *Loader) LoadProducts(ctx context.Context, effective time.Time) (scd.Stats, error) {
	q := productQuery
	if !l.IncludeDiscontinued {
		q += "\nWHERE p.discontinueddate IS NULL"
	}
	q += "\nORDER BY p.productid"

	rows, err := l.Source.FetchAll(ctx, q)
	if err != nil {
		return scd.Stats{}, fmt.Errorf("%s: extract: %w", scd.ProductDimension.Table, err)
	}
	return l.upsertAll(ctx, scd.ProductDimension, rows, effective, func(r storage.Row) map[string]any {
		attrs := make(map[string]any, len(scd.ProductDimension.Attributes))
		for _, col := range scd.ProductDimension.Columns() {
			attrs[col] = r.Get(col)
		}
		return attrs
	})
}

// LoadCustomers versions individual and store customers into dim_customer as
// of effective. A customer linked to a store is typed "Store" and carries no
// person even when the source row references one (the store contact).
func (l *Loader) LoadCustomers(ctx context.Context, effective time.Time) (scd.Stats, error) {
	dim := scd.CustomerDimension

	individuals, err := l.Source.FetchAll(ctx, individualCustomerQuery)
	if err != nil {
		return scd.Stats{}, fmt.Errorf("%s: extract individuals: %w", dim.Table, err)
	}
	stores, err := l.Source.FetchAll(ctx, storeCustomerQuery)
	if err != nil {
		return scd.Stats{}, fmt.Errorf("%s: extract stores: %w", dim.Table, err)
	}

	stats, err := l.upsertAll(ctx, dim, individuals, effective, func(r storage.Row) map[string]any {
		return map[string]any{
			"customer_type": CustomerIndividual,
			"person_nk":     r.Get("person_nk"),
			"store_nk":      nil,
			"customer_name": FullName(r.Get("firstname"), r.Get("lastname")),
			"email_address": r.Get("email_address"),
			"phone":         r.Get("phone"),
			"territory_nk":  r.Get("territory_nk"),
		}
	})
	if err != nil {
		return stats, err
	}

	more, err := l.upsertAll(ctx, dim, stores, effective, func(r storage.Row) map[string]any {
		return map[string]any{
			"customer_type": CustomerStore,
			"person_nk":     nil,
			"store_nk":      r.Get("store_nk"),
			"customer_name": r.Get("customer_name"),
			"email_address": nil,
			"phone":         nil,
			"territory_nk":  r.Get("territory_nk"),
		}
	})
	stats.Inserted += more.Inserted
	stats.Unchanged += more.Unchanged
	stats.Versioned += more.Versioned
	return stats, err
}

func (l *Loader) upsertAll(ctx context.Context, dim scd.Dimension, rows []storage.Row, effective time.Time, attrs func(storage.Row) map[string]any) (scd.Stats, error) {
	var stats scd.Stats
	e := l.engine()
	for _, r := range rows {
		nk, ok := r.Int64(dim.NaturalKeyColumn)
		if !ok {
			return stats, fmt.Errorf("%s: row without %s", dim.Table, dim.NaturalKeyColumn)
		}
		_, outcome, err := e.Upsert(ctx, dim, nk, attrs(r), effective)
		if err != nil {
			return stats, err
		}
		stats.Add(outcome)
	}
	return stats, nil
}
