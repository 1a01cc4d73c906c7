// Package inventory owns the stock invariant: a product's stock_quantity
// never goes negative and moves only through committed deductions and
// their compensations.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

// Ledger serializes check-then-write per product. When the gateway can do
// an atomic floor-checked adjustment it is used directly; otherwise a
// striped in-process lock makes the re-read and the write one critical
// section.
type Ledger struct {
	gw    gateway.Gateway
	locks [64]sync.Mutex
}

func NewLedger(gw gateway.Gateway) *Ledger {
	return &Ledger{gw: gw}
}

func (l *Ledger) lock(productID int64) *sync.Mutex {
	return &l.locks[uint64(productID)%uint64(len(l.locks))]
}

func (l *Ledger) stock(ctx context.Context, productID int64) (int64, error) {
	row, err := l.gw.Get(ctx, schema.TableProducts, productID)
	if err != nil {
		return 0, err
	}
	n, _ := row["stock_quantity"].(int64)
	return n, nil
}

func (l *Ledger) CheckAvailable(ctx context.Context, productID, qty int64) (bool, error) {
	cur, err := l.stock(ctx, productID)
	if err != nil {
		return false, err
	}
	return qty <= cur, nil
}

// ReserveAndDeduct re-reads current stock and writes stock-qty as one
// critical section. Stock that moved since it was last shown to the caller
// is caught here, not at display time.
func (l *Ledger) ReserveAndDeduct(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("deduct qty must be positive, got %d", qty)
	}
	if adj, ok := l.gw.(gateway.StockAdjuster); ok {
		cur, err := adj.AdjustStock(ctx, productID, -qty)
		if errors.Is(err, gateway.ErrStockFloor) {
			return &InsufficientStockError{ProductID: productID, Requested: qty, Available: cur}
		}
		return err
	}

	mu := l.lock(productID)
	mu.Lock()
	defer mu.Unlock()
	cur, err := l.stock(ctx, productID)
	if err != nil {
		return err
	}
	if qty > cur {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: cur}
	}
	_, err = l.gw.Update(ctx, schema.TableProducts, productID, gateway.Record{"stock_quantity": cur - qty})
	return err
}

// Restock reverses a deduction during commit compensation.
func (l *Ledger) Restock(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("restock qty must be positive, got %d", qty)
	}
	if adj, ok := l.gw.(gateway.StockAdjuster); ok {
		_, err := adj.AdjustStock(ctx, productID, qty)
		return err
	}

	mu := l.lock(productID)
	mu.Lock()
	defer mu.Unlock()
	cur, err := l.stock(ctx, productID)
	if err != nil {
		return err
	}
	_, err = l.gw.Update(ctx, schema.TableProducts, productID, gateway.Record{"stock_quantity": cur + qty})
	return err
}
