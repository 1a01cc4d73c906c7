package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/schema"
)

// Memory holds every table in process. It is the reference semantics for
// the gateway contract and the store used by the test suite.
type Memory struct {
	reg *schema.Registry

	mu   sync.RWMutex
	rows map[string]map[int64]Record
	seq  map[string]int64
}

func NewMemory(reg *schema.Registry) *Memory {
	return &Memory{
		reg:  reg,
		rows: make(map[string]map[int64]Record),
		seq:  make(map[string]int64),
	}
}

func (m *Memory) table(name string) (schema.Table, error) {
	t, ok := m.reg.Table(name)
	if !ok {
		return schema.Table{}, &ValidationError{Table: name, Reason: "unknown table"}
	}
	return t, nil
}

func (m *Memory) Query(ctx context.Context, table string, q Query) ([]Record, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = t.ID
	}
	if !t.HasColumn(orderBy) {
		return nil, &ValidationError{Table: table, Column: orderBy, Reason: "unknown column"}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, row := range m.rows[table] {
		keep := true
		for _, f := range q.Filters {
			ok, err := matches(t, row, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, cloneRecord(row))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compareValues(out[i][orderBy], out[j][orderBy])
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, table string, id int64) (Record, error) {
	if _, err := m.table(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[table][id]
	if !ok {
		return nil, &NotFoundError{Table: table, ID: id}
	}
	return cloneRecord(row), nil
}

func (m *Memory) Insert(ctx context.Context, table string, vals Record) (Record, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	row, err := normalizeInsert(t, vals)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rc := range refChecks(t, row) {
		if _, ok := m.rows[rc.Table][rc.ID]; !ok {
			return nil, &ValidationError{Table: table, Column: rc.Column, Reason: "reference does not resolve"}
		}
	}
	m.seq[table]++
	id := m.seq[table]
	row[t.ID] = id
	if m.rows[table] == nil {
		m.rows[table] = make(map[int64]Record)
	}
	m.rows[table][id] = row
	return cloneRecord(row), nil
}

func (m *Memory) Update(ctx context.Context, table string, id int64, vals Record) (Record, error) {
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	changes, err := normalizeUpdate(t, vals)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[table][id]
	if !ok {
		return nil, &NotFoundError{Table: table, ID: id}
	}
	for _, rc := range refChecks(t, changes) {
		if _, ok := m.rows[rc.Table][rc.ID]; !ok {
			return nil, &ValidationError{Table: table, Column: rc.Column, Reason: "reference does not resolve"}
		}
	}
	for k, v := range changes {
		row[k] = v
	}
	return cloneRecord(row), nil
}

func (m *Memory) Delete(ctx context.Context, table string, id int64) error {
	if _, err := m.table(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(table, id)
}

// deleteLocked applies the declared per-reference policy: restrict edges
// reject the delete while referencing rows exist, cascade edges take the
// children with the row.
func (m *Memory) deleteLocked(table string, id int64) error {
	if _, ok := m.rows[table][id]; !ok {
		return &NotFoundError{Table: table, ID: id}
	}
	for _, edge := range m.reg.Referencing(table) {
		var children []int64
		for cid, row := range m.rows[edge.From] {
			if v, ok := row[edge.FromColumn].(int64); ok && v == id {
				children = append(children, cid)
			}
		}
		if len(children) == 0 {
			continue
		}
		if edge.OnDelete == schema.Restrict {
			return &ReferentialIntegrityError{Table: table, ID: id, By: edge.From}
		}
		for _, cid := range children {
			if err := m.deleteLocked(edge.From, cid); err != nil {
				return err
			}
		}
	}
	delete(m.rows[table], id)
	return nil
}

func (m *Memory) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	rows, err := m.Query(ctx, table, Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (m *Memory) SumDecimal(ctx context.Context, table, column string, filters ...Filter) (decimal.Decimal, error) {
	rows, err := m.Query(ctx, table, Query{Filters: filters})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, row := range rows {
		if d, ok := row[column].(decimal.Decimal); ok {
			sum = sum.Add(d)
		}
	}
	return sum, nil
}

// AdjustStock implements StockAdjuster with the table lock as the critical
// section; the floor check and the write cannot interleave.
func (m *Memory) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[schema.TableProducts][productID]
	if !ok {
		return 0, &NotFoundError{Table: schema.TableProducts, ID: productID}
	}
	stock, _ := row["stock_quantity"].(int64)
	next := stock + delta
	if next < 0 {
		return stock, ErrStockFloor
	}
	row["stock_quantity"] = next
	return next, nil
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
