package product

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("product: not found")
	ErrInactive = errors.New("product: not available for sale")
)

// Product is the catalog view the checkout flow consumes: price in minor
// units, current stock count, and whether the product is sellable.
type Product struct {
	ID     string
	Name   string
	SKU    string
	Price  int64
	Stock  int
	Active bool
}

// HasStock is the advisory availability pre-check. It does not reserve
// anything; the binding check happens inside the settle decrement.
func (p *Product) HasStock(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

type Catalog interface {
	FindProduct(ctx context.Context, id string) (*Product, error)
	SaveProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context) ([]*Product, error)
}
