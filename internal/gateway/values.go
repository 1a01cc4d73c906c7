package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/schema"
)

// normalizeInsert coerces every value to its schema type and checks that
// required columns are present. Unknown columns are rejected.
func normalizeInsert(t schema.Table, vals Record) (Record, error) {
	out := make(Record, len(vals))
	for name, v := range vals {
		col, ok := t.Column(name)
		if !ok {
			return nil, &ValidationError{Table: t.Name, Column: name, Reason: "unknown column"}
		}
		cv, err := coerce(t.Name, col, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	for _, col := range t.Columns {
		if _, ok := out[col.Name]; !ok {
			if col.Required {
				return nil, &ValidationError{Table: t.Name, Column: col.Name, Reason: "required"}
			}
		}
	}
	return out, nil
}

// normalizeUpdate coerces only the provided columns.
func normalizeUpdate(t schema.Table, vals Record) (Record, error) {
	out := make(Record, len(vals))
	for name, v := range vals {
		col, ok := t.Column(name)
		if !ok {
			return nil, &ValidationError{Table: t.Name, Column: name, Reason: "unknown column"}
		}
		cv, err := coerce(t.Name, col, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

func coerce(table string, col schema.Column, v any) (any, error) {
	bad := func(reason string) error {
		return &ValidationError{Table: table, Column: col.Name, Reason: reason}
	}
	switch col.Type {
	case schema.Text:
		s, ok := v.(string)
		if !ok {
			return nil, bad(fmt.Sprintf("want text, got %T", v))
		}
		if col.Required && strings.TrimSpace(s) == "" {
			return nil, bad("required")
		}
		return s, nil

	case schema.Date:
		switch d := v.(type) {
		case string:
			if d == "" {
				return nil, bad("empty date")
			}
			return d, nil
		case time.Time:
			return d.Format("2006-01-02"), nil
		default:
			return nil, bad(fmt.Sprintf("want date, got %T", v))
		}

	case schema.Choice:
		s, ok := v.(string)
		if !ok {
			return nil, bad(fmt.Sprintf("want choice, got %T", v))
		}
		for _, c := range col.Choices {
			if c == s {
				return s, nil
			}
		}
		return nil, bad(fmt.Sprintf("%q not in choices", s))

	case schema.Integer, schema.Reference:
		n, err := toInt64(v)
		if err != nil {
			return nil, bad(err.Error())
		}
		if col.Type == schema.Reference && n <= 0 {
			return nil, bad("reference must be a positive id")
		}
		if col.Min != nil && n < *col.Min {
			return nil, bad(fmt.Sprintf("must be at least %d", *col.Min))
		}
		return n, nil

	case schema.Decimal:
		d, err := toDecimal(v)
		if err != nil {
			return nil, bad(err.Error())
		}
		if col.Min != nil && d.LessThan(decimal.NewFromInt(*col.Min)) {
			return nil, bad(fmt.Sprintf("must be at least %d", *col.Min))
		}
		return d, nil
	}
	return nil, bad(fmt.Sprintf("unhandled type %q", col.Type))
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		out, err := decimal.NewFromString(d)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad decimal %q", d)
		}
		return out, nil
	case float64:
		return decimal.NewFromFloat(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	default:
		return decimal.Zero, fmt.Errorf("want decimal, got %T", v)
	}
}

// matches evaluates one filter against a normalized row. The filter value
// is coerced to the column type first so callers can pass raw input.
func matches(t schema.Table, row Record, f Filter) (bool, error) {
	if !t.HasColumn(f.Column) {
		return false, &ValidationError{Table: t.Name, Column: f.Column, Reason: "unknown column"}
	}
	have, ok := row[f.Column]
	if !ok {
		return false, nil
	}
	if f.Op == OpContains {
		hs, ok1 := have.(string)
		ws, ok2 := f.Value.(string)
		if !ok1 || !ok2 {
			return false, &ValidationError{Table: t.Name, Column: f.Column, Reason: "contains needs text"}
		}
		return strings.Contains(strings.ToLower(hs), strings.ToLower(ws)), nil
	}

	want := f.Value
	if col, isCol := t.Column(f.Column); isCol {
		cv, err := coerce(t.Name, col, f.Value)
		if err != nil {
			return false, err
		}
		want = cv
	} else {
		// identifier column
		n, err := toInt64(f.Value)
		if err != nil {
			return false, &ValidationError{Table: t.Name, Column: f.Column, Reason: err.Error()}
		}
		want = n
	}

	eq := equalValues(have, want)
	if f.Op == OpNeq {
		return !eq, nil
	}
	return eq, nil
}

func equalValues(a, b any) bool {
	if da, ok := a.(decimal.Decimal); ok {
		if db, ok := b.(decimal.Decimal); ok {
			return da.Equal(db)
		}
		return false
	}
	return a == b
}

// compareValues orders two normalized values of the same column.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case decimal.Decimal:
		bv, _ := b.(decimal.Decimal)
		return av.Cmp(bv)
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	}
	return 0
}

type refCheck struct {
	Column string
	Table  string
	ID     int64
}

// refChecks lists the reference resolutions a mutation needs.
func refChecks(t schema.Table, vals Record) []refCheck {
	var out []refCheck
	for _, col := range t.Columns {
		if col.Ref == nil {
			continue
		}
		v, ok := vals[col.Name]
		if !ok {
			continue
		}
		id, _ := v.(int64)
		out = append(out, refCheck{Column: col.Name, Table: col.Ref.Table, ID: id})
	}
	return out
}
