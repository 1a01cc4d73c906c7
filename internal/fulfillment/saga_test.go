package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/inventory"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedStore loads the minimum graph a wizard run needs: one customer, one
// employee, one supplier and two products.
func seedStore(t *testing.T) (*gateway.Memory, map[string]int64) {
	t.Helper()
	ctx := context.Background()
	mem := gateway.NewMemory(schema.Default())
	ids := map[string]int64{}

	sup, err := mem.Insert(ctx, schema.TableSuppliers, gateway.Record{"name": "Agro Traders"})
	require.NoError(t, err)
	ids["supplier"] = sup["supplier_id"].(int64)

	rice, err := mem.Insert(ctx, schema.TableProducts, gateway.Record{
		"name": "Basmati Rice 25kg", "unit_price": "50.00",
		"stock_quantity": 10, "supplier_id": ids["supplier"],
	})
	require.NoError(t, err)
	ids["rice"] = rice["product_id"].(int64)

	oil, err := mem.Insert(ctx, schema.TableProducts, gateway.Record{
		"name": "Sunflower Oil 15L", "unit_price": "120.50",
		"stock_quantity": 4, "supplier_id": ids["supplier"],
	})
	require.NoError(t, err)
	ids["oil"] = oil["product_id"].(int64)

	cust, err := mem.Insert(ctx, schema.TableCustomers, gateway.Record{"name": "Sharma Stores"})
	require.NoError(t, err)
	ids["customer"] = cust["customer_id"].(int64)

	emp, err := mem.Insert(ctx, schema.TableEmployees, gateway.Record{"name": "Ravi"})
	require.NoError(t, err)
	ids["employee"] = emp["employee_id"].(int64)

	return mem, ids
}

func newSaga(gw gateway.Gateway, pub, compPub Publisher) *Saga {
	return New(gw, inventory.NewLedger(gw), pub, compPub, "test-api")
}

func orderInfo(ids map[string]int64) OrderInfo {
	return OrderInfo{
		CustomerID: ids["customer"],
		EmployeeID: ids["employee"],
		OrderDate:  "2025-03-10",
		Status:     "Pending",
	}
}

// toCommit walks a saga to the commit step with 3 units of rice carted.
func toCommit(t *testing.T, s *Saga, ids map[string]int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 3, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SkipPayment())
	require.NoError(t, s.SkipTransport())
	require.Equal(t, StepCommit, s.Step())
}

// faultGateway fails the nth insert into one table. Not a StockAdjuster,
// so the ledger falls back to its own critical section.
type faultGateway struct {
	gateway.Gateway
	failTable string
	failOn    int
	seen      int
}

var errStoreDown = errors.New("store unavailable")

func (f *faultGateway) Insert(ctx context.Context, table string, vals gateway.Record) (gateway.Record, error) {
	if table == f.failTable {
		f.seen++
		if f.seen == f.failOn {
			return nil, errStoreDown
		}
	}
	return f.Gateway.Insert(ctx, table, vals)
}

type fakePub struct {
	msgs []Envelope
}

func (p *fakePub) Publish(key, value []byte, headers ...kafkago.Header) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	p.msgs = append(p.msgs, env)
}

func TestCommitMinimalOrder(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()
	toCommit(t, s, ids)

	sum, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ItemCount)
	assert.True(t, sum.Total.Equal(d("150.00")))
	assert.False(t, sum.PaymentRecorded)
	assert.False(t, sum.TransportRecorded)

	order, err := mem.Get(ctx, schema.TableOrders, sum.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "Pending", order["status"])
	assert.Equal(t, ids["customer"], order["customer_id"])

	items, err := mem.Query(ctx, schema.TableOrderItems, gateway.Query{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, sum.OrderID, items[0]["order_id"])
	assert.Equal(t, ids["rice"], items[0]["product_id"])
	assert.Equal(t, int64(3), items[0]["quantity"])
	assert.True(t, items[0]["line_total"].(decimal.Decimal).Equal(d("150.00")))

	rice, err := mem.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(7), rice["stock_quantity"])

	n, err := mem.Count(ctx, schema.TablePayments)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = mem.Count(ctx, schema.TableTransportation)
	require.NoError(t, err)
	assert.Zero(t, n)

	// a committed saga is a fresh one
	assert.Equal(t, StepOrderInfo, s.Step())
	assert.Nil(t, s.OrderInfo())
	assert.Empty(t, s.CartItems())
}

func TestCommitWithPaymentAndTransport(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 3, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Amount: d("150.00"), Mode: "Cash"}))
	require.NoError(t, s.SubmitTransport(TransportInfo{
		VehicleNumber: "MH12AB1234", DriverName: "Suresh",
		Mode: "Truck", Status: "In Transit", DepartureDate: "2025-03-11",
	}))

	sum, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, sum.PaymentRecorded)
	assert.True(t, sum.TransportRecorded)

	pays, err := mem.Query(ctx, schema.TablePayments, gateway.Query{})
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, sum.OrderID, pays[0]["order_id"])
	assert.True(t, pays[0]["amount"].(decimal.Decimal).Equal(d("150.00")))
	assert.Equal(t, "Cash", pays[0]["payment_mode"])

	trans, err := mem.Query(ctx, schema.TableTransportation, gateway.Query{})
	require.NoError(t, err)
	require.Len(t, trans, 1)
	assert.Equal(t, "MH12AB1234", trans[0]["vehicle_number"])
	assert.Equal(t, "In Transit", trans[0]["status"])
}

func TestStepOrderEnforced(t *testing.T) {
	mem, ids := seedStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(s *Saga) error
	}{
		{"add item before order info", func(s *Saga) error {
			return s.AddCartItem(ctx, ids["rice"], 1, nil)
		}},
		{"confirm cart before order info", func(s *Saga) error {
			return s.ConfirmCart()
		}},
		{"payment before cart", func(s *Saga) error {
			return s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Mode: "Cash"})
		}},
		{"transport before payment", func(s *Saga) error {
			return s.SubmitTransport(TransportInfo{VehicleNumber: "X", DriverName: "Y", Mode: "Truck", Status: "In Transit"})
		}},
		{"commit before anything", func(s *Saga) error {
			_, err := s.Commit(ctx)
			return err
		}},
		{"double submit of order info", func(s *Saga) error {
			if err := s.SubmitOrderInfo(ctx, orderInfo(ids)); err != nil {
				return nil
			}
			return s.SubmitOrderInfo(ctx, orderInfo(ids))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSaga(mem, nil, nil)
			assert.Error(t, tt.call(s))
		})
	}
}

func TestSubmitOrderInfoGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		mem := gateway.NewMemory(schema.Default())
		s := newSaga(mem, nil, nil)
		err := s.SubmitOrderInfo(ctx, OrderInfo{CustomerID: 1, EmployeeID: 1, OrderDate: "2025-03-10", Status: "Pending"})
		assert.ErrorContains(t, err, "at least one row")
	})

	t.Run("unknown customer", func(t *testing.T) {
		mem, ids := seedStore(t)
		s := newSaga(mem, nil, nil)
		info := orderInfo(ids)
		info.CustomerID = 999
		var nf *gateway.NotFoundError
		assert.ErrorAs(t, s.SubmitOrderInfo(ctx, info), &nf)
	})

	t.Run("missing date", func(t *testing.T) {
		mem, ids := seedStore(t)
		s := newSaga(mem, nil, nil)
		info := orderInfo(ids)
		info.OrderDate = ""
		assert.ErrorContains(t, s.SubmitOrderInfo(ctx, info), "order date")
	})

	t.Run("bad status", func(t *testing.T) {
		mem, ids := seedStore(t)
		s := newSaga(mem, nil, nil)
		info := orderInfo(ids)
		info.Status = "Shipped"
		assert.ErrorContains(t, s.SubmitOrderInfo(ctx, info), "order status")
	})

	t.Run("nothing sellable", func(t *testing.T) {
		mem, ids := seedStore(t)
		_, err := mem.Update(ctx, schema.TableProducts, ids["rice"], gateway.Record{"stock_quantity": 0})
		require.NoError(t, err)
		_, err = mem.Update(ctx, schema.TableProducts, ids["oil"], gateway.Record{"stock_quantity": 0})
		require.NoError(t, err)
		s := newSaga(mem, nil, nil)
		assert.ErrorContains(t, s.SubmitOrderInfo(ctx, orderInfo(ids)), "no products with stock")
	})
}

func TestCartStepValidation(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))

	assert.ErrorContains(t, s.ConfirmCart(), "cart is empty")

	var nf *gateway.NotFoundError
	assert.ErrorAs(t, s.AddCartItem(ctx, 999, 1, nil), &nf)

	override := d("45.00")
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 2, &override))
	items := s.CartItems()
	require.Len(t, items, 1)
	assert.True(t, items[0].UnitPrice.Equal(override))
	assert.True(t, s.CartTotal().Equal(d("90.00")))

	require.NoError(t, s.RemoveCartItem(0))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 1, nil))
	require.NoError(t, s.ClearCart())
	assert.Empty(t, s.CartItems())
}

func TestPaymentValidation(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 1, nil))
	require.NoError(t, s.ConfirmCart())

	assert.ErrorContains(t, s.SubmitPayment(PaymentInfo{Mode: "Cash"}), "payment date")
	assert.ErrorContains(t, s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Mode: "Barter"}), "payment mode")
	assert.ErrorContains(t, s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Mode: "Cash", Amount: d("-1")}), "negative")

	require.NoError(t, s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Mode: "UPI", Amount: d("25")}))
	assert.Equal(t, StepTransport, s.Step())
}

func TestTransportValidation(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()
	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 1, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SkipPayment())

	assert.Error(t, s.SubmitTransport(TransportInfo{DriverName: "Suresh", Mode: "Truck", Status: "In Transit"}))
	assert.Error(t, s.SubmitTransport(TransportInfo{VehicleNumber: "MH12", Mode: "Truck", Status: "In Transit"}))
	assert.ErrorContains(t, s.SubmitTransport(TransportInfo{
		VehicleNumber: "MH12", DriverName: "Suresh", Mode: "Bicycle", Status: "In Transit",
	}), "transport mode")
	assert.ErrorContains(t, s.SubmitTransport(TransportInfo{
		VehicleNumber: "MH12", DriverName: "Suresh", Mode: "Truck", Status: "Lost",
	}), "transport status")
}

func TestEditRevisitsEarlierSteps(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()
	toCommit(t, s, ids)

	// forward edits never
	assert.Error(t, s.Edit(StepCommit))

	require.NoError(t, s.Edit(StepBuildCart))
	assert.Equal(t, StepBuildCart, s.Step())
	// earlier captures survive the edit
	require.NotNil(t, s.OrderInfo())
	assert.Len(t, s.CartItems(), 1)

	require.NoError(t, s.AddCartItem(ctx, ids["oil"], 1, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SkipPayment())
	require.NoError(t, s.SkipTransport())

	sum, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ItemCount)

	// back at the start, nothing is editable
	assert.Error(t, s.Edit(StepOrderInfo))
}

func TestCommitCompensatesOnStoreFailure(t *testing.T) {
	mem, ids := seedStore(t)
	gw := &faultGateway{Gateway: mem, failTable: schema.TablePayments, failOn: 1}
	s := newSaga(gw, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 3, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SubmitPayment(PaymentInfo{Date: "2025-03-10", Amount: d("150.00"), Mode: "Cash"}))
	require.NoError(t, s.SkipTransport())

	_, err := s.Commit(ctx)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Compensated)
	assert.ErrorIs(t, err, errStoreDown)

	// no partial artifacts survive
	for _, table := range []string{schema.TableOrders, schema.TableOrderItems, schema.TablePayments} {
		n, err := mem.Count(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
	rice, err := mem.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(10), rice["stock_quantity"])
}

func TestCommitCompensatesOnStockShortfall(t *testing.T) {
	mem, ids := seedStore(t)
	s := newSaga(mem, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.SubmitOrderInfo(ctx, orderInfo(ids)))
	require.NoError(t, s.AddCartItem(ctx, ids["rice"], 3, nil))
	require.NoError(t, s.AddCartItem(ctx, ids["oil"], 4, nil))
	require.NoError(t, s.ConfirmCart())
	require.NoError(t, s.SkipPayment())
	require.NoError(t, s.SkipTransport())

	// oil moved between cart build and commit
	_, err := mem.Update(ctx, schema.TableProducts, ids["oil"], gateway.Record{"stock_quantity": 2})
	require.NoError(t, err)

	_, err = s.Commit(ctx)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Compensated)
	var is *inventory.InsufficientStockError
	require.ErrorAs(t, err, &is)
	assert.Equal(t, ids["oil"], is.ProductID)

	// the rice deduction was rolled back, the oil row untouched
	rice, err := mem.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(10), rice["stock_quantity"])
	oil, err := mem.Get(ctx, schema.TableProducts, ids["oil"])
	require.NoError(t, err)
	assert.Equal(t, int64(2), oil["stock_quantity"])

	n, err := mem.Count(ctx, schema.TableOrders)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = mem.Count(ctx, schema.TableOrderItems)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFulfilledEventPublished(t *testing.T) {
	mem, ids := seedStore(t)
	pub := &fakePub{}
	compPub := &fakePub{}
	s := newSaga(mem, pub, compPub)
	ctx := context.Background()
	toCommit(t, s, ids)

	sum, err := s.Commit(ctx)
	require.NoError(t, err)

	assert.Empty(t, compPub.msgs)
	require.Len(t, pub.msgs, 1)
	env := pub.msgs[0]
	assert.Equal(t, EventOrderFulfilled, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "test-api", env.Producer)
	assert.NotEmpty(t, env.EventID)

	var p OrderFulfilledPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, sum.OrderID, p.OrderID)
	assert.Equal(t, ids["customer"], p.CustomerID)
	require.Len(t, p.Items, 1)
	assert.Equal(t, int64(3), p.Items[0].Quantity)
	assert.True(t, p.Total.Equal(d("150.00")))
	assert.False(t, p.PaymentRecorded)
}

func TestCompensatedEventPublished(t *testing.T) {
	mem, ids := seedStore(t)
	gw := &faultGateway{Gateway: mem, failTable: schema.TableOrderItems, failOn: 1}
	pub := &fakePub{}
	compPub := &fakePub{}
	s := newSaga(gw, pub, compPub)
	ctx := context.Background()
	toCommit(t, s, ids)

	_, err := s.Commit(ctx)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)

	// compensation rides its own topic, never the fulfilled one
	assert.Empty(t, pub.msgs)
	require.Len(t, compPub.msgs, 1)
	env := compPub.msgs[0]
	assert.Equal(t, EventOrderCompensated, env.EventType)

	var p OrderCompensatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.True(t, p.Compensated)
	assert.Contains(t, p.Reason, "store unavailable")
}
