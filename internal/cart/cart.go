// Package cart holds the in-progress line items of one wizard session.
// Nothing here is persisted; the whole cart is discarded on completion or
// abandonment.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"` // product name snapshot
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type ExceedsStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *ExceedsStockError) Error() string {
	return fmt.Sprintf("product %d: %d requested exceeds %d in stock", e.ProductID, e.Requested, e.Available)
}

type Cart struct {
	items []Item
}

func New() *Cart { return &Cart{} }

// Add merges into an existing line for the same product, otherwise appends.
// The merged quantity is held to the stock known at add time; the
// authoritative check happens again at commit.
func (c *Cart) Add(productID int64, name string, qty int64, unitPrice decimal.Decimal, stock int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	for i, it := range c.items {
		if it.ProductID != productID {
			continue
		}
		merged := it.Quantity + qty
		if merged > stock {
			return &ExceedsStockError{ProductID: productID, Requested: merged, Available: stock}
		}
		c.items[i].Quantity = merged
		c.items[i].LineTotal = c.items[i].UnitPrice.Mul(decimal.NewFromInt(merged))
		return nil
	}
	if qty > stock {
		return &ExceedsStockError{ProductID: productID, Requested: qty, Available: stock}
	}
	c.items = append(c.items, Item{
		ProductID: productID,
		Name:      name,
		Quantity:  qty,
		UnitPrice: unitPrice,
		LineTotal: unitPrice.Mul(decimal.NewFromInt(qty)),
	})
	return nil
}

func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("no cart item at index %d", index)
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return nil
}

func (c *Cart) Clear() { c.items = nil }

func (c *Cart) Len() int { return len(c.items) }

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.LineTotal)
	}
	return total
}

// Items returns a snapshot in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}
