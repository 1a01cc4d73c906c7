// Package gateway executes typed CRUD against a backing store, driven by
// the schema registry. Both implementations (Postgres, Memory) share the
// same validation and delete-policy semantics.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Record is one row keyed by column name. Values are normalized per the
// schema: Text/Choice/Date -> string, Integer -> int64, Decimal ->
// decimal.Decimal, Reference and identifiers -> int64.
type Record = map[string]any

type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpContains Op = "contains" // case-insensitive substring, text columns
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Filter       { return Filter{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Filter      { return Filter{Column: column, Op: OpNeq, Value: v} }
func Contains(column string, v any) Filter { return Filter{Column: column, Op: OpContains, Value: v} }

// Query options compose conjunctively. A query matching nothing succeeds
// with an empty result.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

type Gateway interface {
	Query(ctx context.Context, table string, q Query) ([]Record, error)
	Get(ctx context.Context, table string, id int64) (Record, error)
	Insert(ctx context.Context, table string, vals Record) (Record, error)
	Update(ctx context.Context, table string, id int64, vals Record) (Record, error)
	Delete(ctx context.Context, table string, id int64) error
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	SumDecimal(ctx context.Context, table, column string, filters ...Filter) (decimal.Decimal, error)
}

// StockAdjuster is implemented by gateways that can apply a stock delta
// with an atomic floor check. The inventory ledger prefers it over its own
// read-check-write section when available.
type StockAdjuster interface {
	// AdjustStock applies delta to the product's stock_quantity and returns
	// the new value. A delta that would take stock below zero returns
	// ErrStockFloor with the current value untouched.
	AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error)
}
