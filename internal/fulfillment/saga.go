// Package fulfillment drives the order wizard: a linear, re-editable
// sequence of captures ending in one multi-entity commit with full
// compensation on partial failure.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/cart"
	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/inventory"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

// CommitError wraps a failure during the multi-entity commit. Compensated
// tells the caller whether every write of this commit was reverted; when it
// is false the store needs manual reconciliation and CompensationErr holds
// what stopped the rollback.
type CommitError struct {
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *CommitError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("commit failed (all writes reverted): %v", e.Cause)
	}
	return fmt.Sprintf("commit failed, compensation incomplete: %v (compensation: %v)", e.Cause, e.CompensationErr)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// Summary of a completed commit.
type Summary struct {
	OrderID           int64           `json:"order_id"`
	ItemCount         int             `json:"item_count"`
	Total             decimal.Decimal `json:"total"`
	PaymentRecorded   bool            `json:"payment_recorded"`
	TransportRecorded bool            `json:"transport_recorded"`
}

// Saga is one order-fulfillment session. It is a single logical actor:
// callers serialize access (the session manager does) and nothing inside
// suspends mid-step.
type Saga struct {
	gw       gateway.Gateway
	ledger   *inventory.Ledger
	pub      Publisher
	compPub  Publisher
	producer string

	step      Step
	orderInfo *OrderInfo
	cart      *cart.Cart
	payment   *PaymentInfo
	transport *TransportInfo
}

// New wires the saga to its store and event publishers: pub carries
// fulfilled events, compPub carries compensation events. Either may be
// nil to disable that stream.
func New(gw gateway.Gateway, ledger *inventory.Ledger, pub, compPub Publisher, producer string) *Saga {
	return &Saga{gw: gw, ledger: ledger, pub: pub, compPub: compPub, producer: producer, step: StepOrderInfo, cart: cart.New()}
}

func (s *Saga) Step() Step { return s.step }

// Captures, pre-filled when a step is re-entered. Nil until first submitted.
func (s *Saga) OrderInfo() *OrderInfo     { return s.orderInfo }
func (s *Saga) Payment() *PaymentInfo     { return s.payment }
func (s *Saga) Transport() *TransportInfo { return s.transport }

func (s *Saga) CartItems() []cart.Item     { return s.cart.Items() }
func (s *Saga) CartTotal() decimal.Decimal { return s.cart.Total() }

func (s *Saga) requireStep(want Step) error {
	if s.step != want {
		return fmt.Errorf("step is %s, want %s", s.step, want)
	}
	return nil
}

// SubmitOrderInfo captures S1 and advances. Guards: at least one customer
// and one employee exist, the chosen ids resolve, and at least one product
// has stock so S2 is enterable.
func (s *Saga) SubmitOrderInfo(ctx context.Context, info OrderInfo) error {
	if err := s.requireStep(StepOrderInfo); err != nil {
		return err
	}
	for _, table := range []string{schema.TableCustomers, schema.TableEmployees} {
		n, err := s.gw.Count(ctx, table)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("need at least one row in %s before creating orders", table)
		}
	}
	if _, err := s.gw.Get(ctx, schema.TableCustomers, info.CustomerID); err != nil {
		return err
	}
	if _, err := s.gw.Get(ctx, schema.TableEmployees, info.EmployeeID); err != nil {
		return err
	}
	if info.OrderDate == "" {
		return errors.New("order date required")
	}
	if !oneOf(schema.OrderStatuses, info.Status) {
		return fmt.Errorf("unknown order status %q", info.Status)
	}
	sellable, err := s.gw.Count(ctx, schema.TableProducts, gateway.Neq("stock_quantity", 0))
	if err != nil {
		return err
	}
	if sellable == 0 {
		return errors.New("no products with stock available")
	}
	s.orderInfo = &info
	s.step = forwardNext[s.step]
	return nil
}

// AddCartItem reads the product through the gateway and adds it to the
// cart. A nil unitPrice takes the product's current unit_price; staff may
// override it per line.
func (s *Saga) AddCartItem(ctx context.Context, productID, qty int64, unitPrice *decimal.Decimal) error {
	if err := s.requireStep(StepBuildCart); err != nil {
		return err
	}
	prod, err := s.gw.Get(ctx, schema.TableProducts, productID)
	if err != nil {
		return err
	}
	stock, _ := prod["stock_quantity"].(int64)
	name, _ := prod["name"].(string)
	price, _ := prod["unit_price"].(decimal.Decimal)
	if unitPrice != nil {
		price = *unitPrice
	}
	return s.cart.Add(productID, name, qty, price, stock)
}

func (s *Saga) RemoveCartItem(index int) error {
	if err := s.requireStep(StepBuildCart); err != nil {
		return err
	}
	return s.cart.Remove(index)
}

func (s *Saga) ClearCart() error {
	if err := s.requireStep(StepBuildCart); err != nil {
		return err
	}
	s.cart.Clear()
	return nil
}

// ConfirmCart advances past S2; an empty cart cannot advance.
func (s *Saga) ConfirmCart() error {
	if err := s.requireStep(StepBuildCart); err != nil {
		return err
	}
	if s.cart.Len() == 0 {
		return errors.New("cart is empty")
	}
	s.step = forwardNext[s.step]
	return nil
}

func (s *Saga) SubmitPayment(p PaymentInfo) error {
	if err := s.requireStep(StepPayment); err != nil {
		return err
	}
	if p.Date == "" {
		return errors.New("payment date required")
	}
	if !oneOf(schema.PaymentModes, p.Mode) {
		return fmt.Errorf("unknown payment mode %q", p.Mode)
	}
	if p.Amount.IsNegative() {
		return errors.New("payment amount cannot be negative")
	}
	p.Skipped = false
	s.payment = &p
	s.step = forwardNext[s.step]
	return nil
}

func (s *Saga) SkipPayment() error {
	if err := s.requireStep(StepPayment); err != nil {
		return err
	}
	s.payment = &PaymentInfo{Skipped: true}
	s.step = forwardNext[s.step]
	return nil
}

func (s *Saga) SubmitTransport(t TransportInfo) error {
	if err := s.requireStep(StepTransport); err != nil {
		return err
	}
	if t.VehicleNumber == "" || t.DriverName == "" {
		return errors.New("vehicle number and driver name required")
	}
	if !oneOf(schema.TransportModes, t.Mode) {
		return fmt.Errorf("unknown transport mode %q", t.Mode)
	}
	if !oneOf(schema.TransportStatuses, t.Status) {
		return fmt.Errorf("unknown transport status %q", t.Status)
	}
	t.Skipped = false
	s.transport = &t
	s.step = forwardNext[s.step]
	return nil
}

func (s *Saga) SkipTransport() error {
	if err := s.requireStep(StepTransport); err != nil {
		return err
	}
	s.transport = &TransportInfo{Skipped: true}
	s.step = forwardNext[s.step]
	return nil
}

// Edit re-enters an earlier step with its capture pre-filled. Later
// captures stay until their forward transition is re-confirmed.
func (s *Saga) Edit(target Step) error {
	if !CanEdit(s.step, target) {
		return fmt.Errorf("cannot edit %s from %s", target, s.step)
	}
	s.step = target
	return nil
}

// Commit runs the multi-entity write. Once it starts it runs to completion
// or to compensation; there is no cancellation mid-commit. On success the
// saga resets to a fresh S1.
func (s *Saga) Commit(ctx context.Context) (*Summary, error) {
	if err := s.requireStep(StepCommit); err != nil {
		return nil, err
	}
	items := s.cart.Items()
	if len(items) == 0 {
		return nil, errors.New("cart is empty")
	}

	orderRow, err := s.gw.Insert(ctx, schema.TableOrders, gateway.Record{
		"customer_id": s.orderInfo.CustomerID,
		"employee_id": s.orderInfo.EmployeeID,
		"order_date":  s.orderInfo.OrderDate,
		"status":      s.orderInfo.Status,
	})
	if err != nil {
		// nothing persisted yet, safe to abort
		return nil, &CommitError{Cause: err, Compensated: true}
	}
	orderID, _ := orderRow["order_id"].(int64)

	var deducted []cart.Item
	for _, it := range items {
		_, err := s.gw.Insert(ctx, schema.TableOrderItems, gateway.Record{
			"order_id":   orderID,
			"product_id": it.ProductID,
			"quantity":   it.Quantity,
			"line_total": it.LineTotal,
		})
		if err != nil {
			return nil, s.compensate(ctx, orderID, deducted, err)
		}
		if err := s.ledger.ReserveAndDeduct(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, s.compensate(ctx, orderID, deducted, err)
		}
		deducted = append(deducted, it)
	}

	paymentRecorded := false
	if s.payment != nil && !s.payment.Skipped && s.payment.Amount.IsPositive() {
		_, err := s.gw.Insert(ctx, schema.TablePayments, gateway.Record{
			"order_id":     orderID,
			"payment_date": s.payment.Date,
			"amount":       s.payment.Amount,
			"payment_mode": s.payment.Mode,
		})
		if err != nil {
			return nil, s.compensate(ctx, orderID, deducted, err)
		}
		paymentRecorded = true
	}

	transportRecorded := false
	if s.transport != nil && !s.transport.Skipped &&
		s.transport.VehicleNumber != "" && s.transport.DriverName != "" {
		row := gateway.Record{
			"order_id":       orderID,
			"vehicle_number": s.transport.VehicleNumber,
			"driver_name":    s.transport.DriverName,
			"transport_mode": s.transport.Mode,
			"status":         s.transport.Status,
		}
		// the dates are optional and an absent date must stay absent
		if s.transport.DepartureDate != "" {
			row["departure_date"] = s.transport.DepartureDate
		}
		if s.transport.ArrivalDate != "" {
			row["arrival_date"] = s.transport.ArrivalDate
		}
		_, err := s.gw.Insert(ctx, schema.TableTransportation, row)
		if err != nil {
			return nil, s.compensate(ctx, orderID, deducted, err)
		}
		transportRecorded = true
	}

	sum := &Summary{
		OrderID:           orderID,
		ItemCount:         len(items),
		Total:             s.cart.Total(),
		PaymentRecorded:   paymentRecorded,
		TransportRecorded: transportRecorded,
	}
	s.publishFulfilled(sum, items)
	s.reset()
	return sum, nil
}

// compensate restocks every deduction of this commit and deletes the order
// row, which takes the inserted children (items, payment, transport) with
// it. A store failure here is the unrecoverable case: every attempted
// revert is logged for manual reconciliation.
func (s *Saga) compensate(ctx context.Context, orderID int64, deducted []cart.Item, cause error) error {
	var compErr error
	for _, it := range deducted {
		if err := s.ledger.Restock(ctx, it.ProductID, it.Quantity); err != nil {
			log.Printf("UNRECONCILED: restock product=%d qty=%d for order=%d failed: %v",
				it.ProductID, it.Quantity, orderID, err)
			compErr = errors.Join(compErr, err)
		}
	}
	if err := s.gw.Delete(ctx, schema.TableOrders, orderID); err != nil {
		log.Printf("UNRECONCILED: delete order=%d (and children) failed: %v", orderID, err)
		compErr = errors.Join(compErr, err)
	}
	ce := &CommitError{Cause: cause, Compensated: compErr == nil, CompensationErr: compErr}
	s.publishCompensated(orderID, cause, ce.Compensated)
	return ce
}

func (s *Saga) publishFulfilled(sum *Summary, items []cart.Item) {
	if s.pub == nil {
		return
	}
	lines := make([]ItemLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, ItemLine{ProductID: it.ProductID, Quantity: it.Quantity, LineTotal: it.LineTotal})
	}
	payload := OrderFulfilledPayload{
		OrderID:           sum.OrderID,
		CustomerID:        s.orderInfo.CustomerID,
		Items:             lines,
		Total:             sum.Total,
		PaymentRecorded:   sum.PaymentRecorded,
		TransportRecorded: sum.TransportRecorded,
	}
	if sum.PaymentRecorded {
		payload.PaymentAmount = s.payment.Amount
	}
	s.pub.Publish(PartitionKey(sum.OrderID), newEnvelope(EventOrderFulfilled, s.producer, sum.OrderID, payload),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderFulfilled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Saga) publishCompensated(orderID int64, cause error, compensated bool) {
	if s.compPub == nil {
		return
	}
	payload := OrderCompensatedPayload{OrderID: orderID, Reason: cause.Error(), Compensated: compensated}
	s.compPub.Publish(PartitionKey(orderID), newEnvelope(EventOrderCompensated, s.producer, orderID, payload),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCompensated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Saga) reset() {
	s.step = StepOrderInfo
	s.orderInfo = nil
	s.payment = nil
	s.transport = nil
	s.cart = cart.New()
}

func oneOf(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
