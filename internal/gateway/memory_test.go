package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-shop/backoffice/internal/schema"
)

// seedMemory loads one supplier, two products, one customer and one
// employee; most gateway tests need that much of the graph in place.
func seedMemory(t *testing.T) (*Memory, map[string]int64) {
	t.Helper()
	m := NewMemory(schema.Default())
	ctx := context.Background()
	ids := map[string]int64{}

	sup, err := m.Insert(ctx, schema.TableSuppliers, Record{"name": "Agro Traders", "city": "Pune"})
	require.NoError(t, err)
	ids["supplier"] = sup["supplier_id"].(int64)

	p1, err := m.Insert(ctx, schema.TableProducts, Record{
		"name": "Basmati Rice 25kg", "category": "Grains",
		"unit_price": "50.00", "stock_quantity": 10, "supplier_id": ids["supplier"],
	})
	require.NoError(t, err)
	ids["rice"] = p1["product_id"].(int64)

	p2, err := m.Insert(ctx, schema.TableProducts, Record{
		"name": "Sunflower Oil 15L", "category": "Oils",
		"unit_price": "120.50", "stock_quantity": 4, "supplier_id": ids["supplier"],
	})
	require.NoError(t, err)
	ids["oil"] = p2["product_id"].(int64)

	cust, err := m.Insert(ctx, schema.TableCustomers, Record{"name": "Sharma Stores", "city": "Pune"})
	require.NoError(t, err)
	ids["customer"] = cust["customer_id"].(int64)

	emp, err := m.Insert(ctx, schema.TableEmployees, Record{"name": "Ravi", "role": "Sales"})
	require.NoError(t, err)
	ids["employee"] = emp["employee_id"].(int64)

	return m, ids
}

func TestMemoryInsertNormalizes(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	row, err := m.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(10), row["stock_quantity"])
	price, ok := row["unit_price"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("50.00")))
}

func TestMemoryInsertValidation(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		table  string
		vals   Record
		column string
	}{
		{
			name:   "missing required column",
			table:  schema.TableProducts,
			vals:   Record{"name": "Sugar", "unit_price": "30", "supplier_id": ids["supplier"]},
			column: "stock_quantity",
		},
		{
			name:   "unknown column",
			table:  schema.TableCustomers,
			vals:   Record{"name": "X", "nickname": "Y"},
			column: "nickname",
		},
		{
			name:   "blank required text",
			table:  schema.TableCustomers,
			vals:   Record{"name": "   "},
			column: "name",
		},
		{
			name:  "choice outside set",
			table: schema.TableOrders,
			vals: Record{
				"customer_id": ids["customer"], "employee_id": ids["employee"],
				"order_date": "2025-01-15", "status": "Shipped",
			},
			column: "status",
		},
		{
			name:  "unresolved reference",
			table: schema.TableProducts,
			vals: Record{
				"name": "Sugar", "unit_price": "30", "stock_quantity": 5, "supplier_id": int64(999),
			},
			column: "supplier_id",
		},
		{
			name:  "non-positive reference id",
			table: schema.TableProducts,
			vals: Record{
				"name": "Sugar", "unit_price": "30", "stock_quantity": 5, "supplier_id": 0,
			},
			column: "supplier_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Insert(ctx, tt.table, tt.vals)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.column, ve.Column)
		})
	}

	_, err := m.Insert(ctx, "no_such_table", Record{"name": "x"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "unknown table", ve.Reason)
}

func TestMemoryNumericBounds(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		table  string
		vals   Record
		column string
	}{
		{
			name:  "negative stock quantity",
			table: schema.TableProducts,
			vals: Record{
				"name": "Jaggery 5kg", "unit_price": "30", "stock_quantity": -7,
				"supplier_id": ids["supplier"],
			},
			column: "stock_quantity",
		},
		{
			name:  "negative unit price",
			table: schema.TableProducts,
			vals: Record{
				"name": "Jaggery 5kg", "unit_price": "-5.00", "stock_quantity": 5,
				"supplier_id": ids["supplier"],
			},
			column: "unit_price",
		},
		{
			name:  "zero order item quantity",
			table: schema.TableOrderItems,
			vals: Record{
				"order_id": int64(1), "product_id": ids["rice"],
				"quantity": 0, "line_total": "0",
			},
			column: "quantity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Insert(ctx, tt.table, tt.vals)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.column, ve.Column)
			assert.Contains(t, ve.Reason, "must be at least")
		})
	}

	// updates go through the same coercion
	_, err := m.Update(ctx, schema.TableProducts, ids["rice"], Record{"stock_quantity": -3})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "stock_quantity", ve.Column)
}

func TestMemoryGetNotFound(t *testing.T) {
	m, _ := seedMemory(t)
	_, err := m.Get(context.Background(), schema.TableCustomers, 999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, schema.TableCustomers, nf.Table)
	assert.Equal(t, int64(999), nf.ID)
}

func TestMemoryUpdate(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	row, err := m.Update(ctx, schema.TableProducts, ids["rice"], Record{"stock_quantity": 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), row["stock_quantity"])
	assert.Equal(t, "Basmati Rice 25kg", row["name"])

	_, err = m.Update(ctx, schema.TableProducts, 999, Record{"stock_quantity": 1})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = m.Update(ctx, schema.TableProducts, ids["rice"], Record{"supplier_id": int64(999)})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reference does not resolve", ve.Reason)
}

func TestMemoryQueryFilters(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		q         Query
		wantNames []string
	}{
		{
			name:      "eq on category",
			q:         Query{Filters: []Filter{Eq("category", "Grains")}},
			wantNames: []string{"Basmati Rice 25kg"},
		},
		{
			name:      "neq on category",
			q:         Query{Filters: []Filter{Neq("category", "Grains")}},
			wantNames: []string{"Sunflower Oil 15L"},
		},
		{
			name:      "contains is case-insensitive",
			q:         Query{Filters: []Filter{Contains("name", "RICE")}},
			wantNames: []string{"Basmati Rice 25kg"},
		},
		{
			name:      "conjunctive filters narrow",
			q:         Query{Filters: []Filter{Contains("name", "25kg"), Eq("category", "Oils")}},
			wantNames: nil,
		},
		{
			name:      "eq on identifier",
			q:         Query{Filters: []Filter{Eq("product_id", ids["oil"])}},
			wantNames: []string{"Sunflower Oil 15L"},
		},
		{
			name:      "order by name desc",
			q:         Query{OrderBy: "name", Desc: true},
			wantNames: []string{"Sunflower Oil 15L", "Basmati Rice 25kg"},
		},
		{
			name:      "limit",
			q:         Query{OrderBy: "name", Limit: 1},
			wantNames: []string{"Basmati Rice 25kg"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := m.Query(ctx, schema.TableProducts, tt.q)
			require.NoError(t, err)
			var names []string
			for _, r := range rows {
				names = append(names, r["name"].(string))
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}

	_, err := m.Query(ctx, schema.TableProducts, Query{OrderBy: "nope"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "unknown column", ve.Reason)

	_, err = m.Query(ctx, schema.TableProducts, Query{Filters: []Filter{Eq("nope", 1)}})
	require.ErrorAs(t, err, &ve)
}

func TestMemoryQueryReturnsClones(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	row, err := m.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	row["stock_quantity"] = int64(-5)

	again, err := m.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(10), again["stock_quantity"])
}

func TestMemoryDeletePolicies(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	// supplier is pinned by its products
	err := m.Delete(ctx, schema.TableSuppliers, ids["supplier"])
	var ri *ReferentialIntegrityError
	require.ErrorAs(t, err, &ri)
	assert.Equal(t, schema.TableProducts, ri.By)

	order, err := m.Insert(ctx, schema.TableOrders, Record{
		"customer_id": ids["customer"], "employee_id": ids["employee"],
		"order_date": "2025-01-15", "status": "Pending",
	})
	require.NoError(t, err)
	orderID := order["order_id"].(int64)

	item, err := m.Insert(ctx, schema.TableOrderItems, Record{
		"order_id": orderID, "product_id": ids["rice"], "quantity": 2, "line_total": "100.00",
	})
	require.NoError(t, err)
	pay, err := m.Insert(ctx, schema.TablePayments, Record{
		"order_id": orderID, "payment_date": "2025-01-15", "amount": "100.00", "payment_mode": "Cash",
	})
	require.NoError(t, err)

	// products are pinned by order items until the order goes
	err = m.Delete(ctx, schema.TableProducts, ids["rice"])
	require.ErrorAs(t, err, &ri)
	assert.Equal(t, schema.TableOrderItems, ri.By)

	// deleting the order cascades to its children
	require.NoError(t, m.Delete(ctx, schema.TableOrders, orderID))
	var nf *NotFoundError
	_, err = m.Get(ctx, schema.TableOrderItems, item["order_item_id"].(int64))
	require.ErrorAs(t, err, &nf)
	_, err = m.Get(ctx, schema.TablePayments, pay["payment_id"].(int64))
	require.ErrorAs(t, err, &nf)

	err = m.Delete(ctx, schema.TableOrders, orderID)
	require.ErrorAs(t, err, &nf)
}

func TestMemoryCountAndSum(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	n, err := m.Count(ctx, schema.TableProducts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.Count(ctx, schema.TableProducts, Neq("stock_quantity", 0))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.Update(ctx, schema.TableProducts, ids["oil"], Record{"stock_quantity": 0})
	require.NoError(t, err)
	n, err = m.Count(ctx, schema.TableProducts, Neq("stock_quantity", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := m.SumDecimal(ctx, schema.TableProducts, "unit_price")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("170.50")))

	sum, err = m.SumDecimal(ctx, schema.TableProducts, "unit_price", Eq("category", "Grains"))
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(50)))
}

func TestMemoryAdjustStock(t *testing.T) {
	m, ids := seedMemory(t)
	ctx := context.Background()

	next, err := m.AdjustStock(ctx, ids["rice"], -3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), next)

	cur, err := m.AdjustStock(ctx, ids["rice"], -8)
	require.ErrorIs(t, err, ErrStockFloor)
	assert.Equal(t, int64(7), cur)

	row, err := m.Get(ctx, schema.TableProducts, ids["rice"])
	require.NoError(t, err)
	assert.Equal(t, int64(7), row["stock_quantity"])

	next, err = m.AdjustStock(ctx, ids["rice"], 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), next)

	_, err = m.AdjustStock(ctx, 999, -1)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
