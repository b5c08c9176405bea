// Package cart is the per-session shopping cart and its priced view.
package cart

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/catalog"
)

// Cart maps a product id to a positive quantity. The zero value is not usable; use New.
type Cart map[int64]int

func New() Cart { return Cart{} }

// Add puts one more unit of the product in the cart.
func (c Cart) Add(productID int64) { c[productID]++ }

// Remove drops the whole line, whatever its quantity.
func (c Cart) Remove(productID int64) { delete(c, productID) }

func (c Cart) Quantity(productID int64) int { return c[productID] }

func (c Cart) TotalQuantity() int {
	n := 0
	for _, q := range c {
		n += q
	}
	return n
}

// IDs are sorted ascending, the order rows are locked in at checkout.
func (c Cart) IDs() []int64 {
	ids := make([]int64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c Cart) IsEmpty() bool { return len(c) == 0 }

func (c Cart) Clear() {
	for id := range c {
		delete(c, id)
	}
}

// Clone copies the cart, skipping non-positive quantities.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, q := range c {
		if q > 0 {
			out[id] = q
		}
	}
	return out
}

// Lookup resolves product ids against the live catalog. Unknown ids are simply absent.
type Lookup interface {
	ProductsByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error)
}

type Line struct {
	Product   catalog.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type View struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// View prices the cart with current catalog data. Products that no longer exist are left out.
func (c Cart) View(ctx context.Context, lookup Lookup) (View, error) {
	v := View{Lines: []Line{}, Total: decimal.Zero}
	if c.IsEmpty() {
		return v, nil
	}
	products, err := lookup.ProductsByIDs(ctx, c.IDs())
	if err != nil {
		return View{}, err
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	for _, p := range products {
		q := c[p.ID]
		if q <= 0 {
			continue
		}
		unit := p.EffectivePrice()
		sub := unit.Mul(decimal.NewFromInt(int64(q)))
		v.Lines = append(v.Lines, Line{Product: p, Quantity: q, UnitPrice: unit, Subtotal: sub})
		v.Total = v.Total.Add(sub)
		v.Count += q
	}
	return v, nil
}
