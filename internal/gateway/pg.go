package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/schema"
)

// Postgres runs the gateway against pgx. Table and column identifiers are
// never taken from input: everything interpolated into SQL is validated
// against the registry first, values always ride as parameters.
type Postgres struct {
	Reg *schema.Registry
	DB  *pgxpool.Pool
}

func NewPostgres(reg *schema.Registry, db *pgxpool.Pool) *Postgres {
	return &Postgres{Reg: reg, DB: db}
}

func (p *Postgres) table(name string) (schema.Table, error) {
	t, ok := p.Reg.Table(name)
	if !ok {
		return schema.Table{}, &ValidationError{Table: name, Reason: "unknown table"}
	}
	return t, nil
}

func selectList(t schema.Table) string {
	cols := append([]string{t.ID}, t.ColumnNames()...)
	return strings.Join(cols, ", ")
}

// whereClause renders conjunctive filters; args start at $1.
func whereClause(t schema.Table, filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var parts []string
	var args []any
	for _, f := range filters {
		if !t.HasColumn(f.Column) {
			return "", nil, &ValidationError{Table: t.Name, Column: f.Column, Reason: "unknown column"}
		}
		n := len(args) + 1
		switch f.Op {
		case OpEq:
			parts = append(parts, fmt.Sprintf("%s = $%d", f.Column, n))
			args = append(args, sqlValue(f.Value))
		case OpNeq:
			parts = append(parts, fmt.Sprintf("%s <> $%d", f.Column, n))
			args = append(args, sqlValue(f.Value))
		case OpContains:
			s, ok := f.Value.(string)
			if !ok {
				return "", nil, &ValidationError{Table: t.Name, Column: f.Column, Reason: "contains needs text"}
			}
			parts = append(parts, fmt.Sprintf("%s ILIKE $%d", f.Column, n))
			args = append(args, "%"+s+"%")
		default:
			return "", nil, &ValidationError{Table: t.Name, Column: f.Column, Reason: fmt.Sprintf("unknown op %q", f.Op)}
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sqlValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}

func (p *Postgres) Query(ctx context.Context, table string, q Query) ([]Record, error) {
	t, err := p.table(table)
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
	where, args, err := whereClause(t, q.Filters)
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s", selectList(t), t.Name, where, orderBy, dir)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := p.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr("query", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(t, rows)
		if err != nil {
			return nil, storeErr("query", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", table, err)
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, table string, id int64) (Record, error) {
	t, err := p.table(table)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", selectList(t), t.Name, t.ID)
	rows, err := p.DB.Query(ctx, sql, id)
	if err != nil {
		return nil, storeErr("get", table, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storeErr("get", table, err)
		}
		return nil, &NotFoundError{Table: table, ID: id}
	}
	rec, err := scanRecord(t, rows)
	if err != nil {
		return nil, storeErr("get", table, err)
	}
	return rec, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, vals Record) (Record, error) {
	t, err := p.table(table)
	if err != nil {
		return nil, err
	}
	row, err := normalizeInsert(t, vals)
	if err != nil {
		return nil, err
	}
	for _, rc := range refChecks(t, row) {
		ok, err := p.exists(ctx, rc.Table, rc.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ValidationError{Table: table, Column: rc.Column, Reason: "reference does not resolve"}
		}
	}

	cols := make([]string, 0, len(row))
	ph := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, c := range t.Columns {
		v, ok := row[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		ph = append(ph, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, sqlValue(v))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.Name, strings.Join(cols, ", "), strings.Join(ph, ", "), t.ID)
	var id int64
	if err := p.DB.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return nil, storeErr("insert", table, err)
	}
	row[t.ID] = id
	return row, nil
}

func (p *Postgres) Update(ctx context.Context, table string, id int64, vals Record) (Record, error) {
	t, err := p.table(table)
	if err != nil {
		return nil, err
	}
	changes, err := normalizeUpdate(t, vals)
	if err != nil {
		return nil, err
	}
	for _, rc := range refChecks(t, changes) {
		ok, err := p.exists(ctx, rc.Table, rc.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ValidationError{Table: table, Column: rc.Column, Reason: "reference does not resolve"}
		}
	}

	sets := make([]string, 0, len(changes))
	args := make([]any, 0, len(changes)+1)
	for _, c := range t.Columns {
		v, ok := changes[c.Name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)+1))
		args = append(args, sqlValue(v))
	}
	if len(sets) == 0 {
		return p.Get(ctx, table, id)
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		t.Name, strings.Join(sets, ", "), t.ID, len(args))
	ct, err := p.DB.Exec(ctx, sql, args...)
	if err != nil {
		return nil, storeErr("update", table, err)
	}
	if ct.RowsAffected() == 0 {
		return nil, &NotFoundError{Table: table, ID: id}
	}
	return p.Get(ctx, table, id)
}

func (p *Postgres) Delete(ctx context.Context, table string, id int64) error {
	t, err := p.table(table)
	if err != nil {
		return err
	}
	ok, err := p.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Table: table, ID: id}
	}
	for _, edge := range p.Reg.Referencing(table) {
		child, _ := p.Reg.Table(edge.From)
		var n int
		sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", child.Name, edge.FromColumn)
		if err := p.DB.QueryRow(ctx, sql, id).Scan(&n); err != nil {
			return storeErr("delete", table, err)
		}
		if n == 0 {
			continue
		}
		if edge.OnDelete == schema.Restrict {
			return &ReferentialIntegrityError{Table: table, ID: id, By: edge.From}
		}
		childRows, err := p.Query(ctx, edge.From, Query{Filters: []Filter{Eq(edge.FromColumn, id)}})
		if err != nil {
			return err
		}
		for _, cr := range childRows {
			cid, _ := cr[child.ID].(int64)
			if err := p.Delete(ctx, edge.From, cid); err != nil {
				return err
			}
		}
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", t.Name, t.ID)
	if _, err := p.DB.Exec(ctx, sql, id); err != nil {
		return storeErr("delete", table, err)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	t, err := p.table(table)
	if err != nil {
		return 0, err
	}
	where, args, err := whereClause(t, filters)
	if err != nil {
		return 0, err
	}
	var n int
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.Name, where)
	if err := p.DB.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, storeErr("count", table, err)
	}
	return n, nil
}

func (p *Postgres) SumDecimal(ctx context.Context, table, column string, filters ...Filter) (decimal.Decimal, error) {
	t, err := p.table(table)
	if err != nil {
		return decimal.Zero, err
	}
	if !t.HasColumn(column) {
		return decimal.Zero, &ValidationError{Table: table, Column: column, Reason: "unknown column"}
	}
	where, args, err := whereClause(t, filters)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	sql := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) FROM %s%s", column, t.Name, where)
	if err := p.DB.QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return decimal.Zero, storeErr("sum", table, err)
	}
	return sum, nil
}

// AdjustStock pushes the floor check into the store so concurrent
// deductions cannot interleave, the same way the reservation UPDATE in a
// FOR UPDATE transaction would.
func (p *Postgres) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	var next int64
	err := p.DB.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2
		WHERE product_id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity`, productID, delta).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storeErr("adjust_stock", schema.TableProducts, err)
	}
	// missing row vs floor
	var cur int64
	err = p.DB.QueryRow(ctx,
		`SELECT stock_quantity FROM products WHERE product_id = $1`, productID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &NotFoundError{Table: schema.TableProducts, ID: productID}
	}
	if err != nil {
		return 0, storeErr("adjust_stock", schema.TableProducts, err)
	}
	return cur, ErrStockFloor
}

func (p *Postgres) exists(ctx context.Context, table string, id int64) (bool, error) {
	t, err := p.table(table)
	if err != nil {
		return false, err
	}
	var ok bool
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", t.Name, t.ID)
	if err := p.DB.QueryRow(ctx, sql, id).Scan(&ok); err != nil {
		return false, storeErr("exists", table, err)
	}
	return ok, nil
}

func scanRecord(t schema.Table, rows pgx.Rows) (Record, error) {
	var id int64
	dests := make([]any, 0, len(t.Columns)+1)
	dests = append(dests, &id)

	type holder struct {
		col schema.Column
		s   *string
		n   *int64
		d   *decimal.Decimal
		tm  *time.Time
	}
	holders := make([]*holder, len(t.Columns))
	for i, c := range t.Columns {
		h := &holder{col: c}
		holders[i] = h
		switch c.Type {
		case schema.Integer, schema.Reference:
			dests = append(dests, &h.n)
		case schema.Decimal:
			dests = append(dests, &h.d)
		case schema.Date:
			dests = append(dests, &h.tm)
		default:
			dests = append(dests, &h.s)
		}
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}

	rec := Record{t.ID: id}
	for _, h := range holders {
		switch h.col.Type {
		case schema.Integer, schema.Reference:
			if h.n != nil {
				rec[h.col.Name] = *h.n
			}
		case schema.Decimal:
			if h.d != nil {
				rec[h.col.Name] = *h.d
			}
		case schema.Date:
			if h.tm != nil {
				rec[h.col.Name] = h.tm.Format("2006-01-02")
			}
		default:
			if h.s != nil {
				rec[h.col.Name] = *h.s
			}
		}
	}
	return rec, nil
}
