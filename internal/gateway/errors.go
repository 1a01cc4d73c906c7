package gateway

import (
	"errors"
	"fmt"
)

// ErrStockFloor is returned by StockAdjuster when a negative delta would
// take stock_quantity below zero.
var ErrStockFloor = errors.New("stock floor reached")

// ValidationError: a required attribute is absent, malformed, outside its
// choice set, or a reference does not resolve. Recoverable by the caller.
type ValidationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Reason)
}

type NotFoundError struct {
	Table string
	ID    int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s id %d not found", e.Table, e.ID)
}

// ReferentialIntegrityError: delete rejected because rows in By still
// reference the target.
type ReferentialIntegrityError struct {
	Table string
	ID    int64
	By    string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s id %d still referenced by %s", e.Table, e.ID, e.By)
}

// StoreError wraps an underlying I/O failure.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, table string, err error) error {
	return &StoreError{Op: op, Table: table, Err: err}
}
