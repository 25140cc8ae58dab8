package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a product detail record as served by the upstream catalog.
type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Availability bool
}

// Catalog defines the read operations the upstream product service offers.
type Catalog interface {
	// SimilarIDs returns the identifiers the catalog designates as similar to
	// productID, in the catalog's order.
	SimilarIDs(ctx context.Context, productID string) ([]string, error)
	// Product returns the detail record for id. A nil product with a nil
	// error means the catalog has no data for id.
	Product(ctx context.Context, id string) (*Product, error)
}
