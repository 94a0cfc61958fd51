// Package scd maintains type 2 slowly changing dimensions: one open, current
// row per natural key and a closed row for every superseded version.
package scd

// Kind selects how an attribute is compared.
type Kind int

const (
	// Text compares after Unicode NFC normalization.
	Text Kind = iota
	// Decimal compares exact numeric values, so 18.5 equals 18.5000.
	Decimal
	// Integer compares whole numbers.
	Integer
)

// Attribute is one tracked column. A change in any attribute creates a new version.
type Attribute struct {
	Column string
	Kind   Kind
}

// Validity columns shared by every historized dimension.
const (
	ValidFromColumn = "valid_from"
	ValidToColumn   = "valid_to"
	CurrentColumn   = "is_current"
)

// Dimension describes a historized dimension table.
type Dimension struct {
	Table            string
	KeyColumn        string
	NaturalKeyColumn string
	Attributes       []Attribute
}

// Columns returns the tracked attribute column names in declaration order.
func (d Dimension) Columns() []string {
	out := make([]string, len(d.Attributes))
	for i, a := range d.Attributes {
		out[i] = a.Column
	}
	return out
}

var ProductDimension = Dimension{
	Table:            "dim_product",
	KeyColumn:        "product_key",
	NaturalKeyColumn: "product_nk",
	Attributes: []Attribute{
		{Column: "product_name", Kind: Text},
		{Column: "product_number", Kind: Text},
		{Column: "color", Kind: Text},
		{Column: "size", Kind: Text},
		{Column: "style", Kind: Text},
		{Column: "subcategory", Kind: Text},
		{Column: "category", Kind: Text},
		{Column: "standard_cost", Kind: Decimal},
		{Column: "list_price", Kind: Decimal},
	},
}

var CustomerDimension = Dimension{
	Table:            "dim_customer",
	KeyColumn:        "customer_key",
	NaturalKeyColumn: "customer_nk",
	Attributes: []Attribute{
		{Column: "customer_type", Kind: Text},
		{Column: "person_nk", Kind: Integer},
		{Column: "store_nk", Kind: Integer},
		{Column: "customer_name", Kind: Text},
		{Column: "email_address", Kind: Text},
		{Column: "phone", Kind: Text},
		{Column: "territory_nk", Kind: Integer},
	},
}
