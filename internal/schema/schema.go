package schema

import (
	"fmt"
	"strings"
)

type FieldType string

const (
	Text      FieldType = "text"
	Integer   FieldType = "integer"
	Decimal   FieldType = "decimal"
	Date      FieldType = "date"
	Choice    FieldType = "choice"
	Reference FieldType = "reference"
)

type DeletePolicy string

const (
	Restrict DeletePolicy = "RESTRICT"
	Cascade  DeletePolicy = "CASCADE"
)

// Ref points a column at the identifier of another table.
type Ref struct {
	Table    string
	Column   string
	OnDelete DeletePolicy
}

type Column struct {
	Name     string
	Type     FieldType
	Required bool
	Choices  []string // only for Choice
	Ref      *Ref     // only for Reference
	Min      *int64   // inclusive lower bound, Integer and Decimal only
}

type Table struct {
	Name    string
	ID      string // identifier column, store-assigned
	Columns []Column
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// HasColumn reports whether name is the identifier or a declared column.
func (t Table) HasColumn(name string) bool {
	if name == t.ID {
		return true
	}
	_, ok := t.Column(name)
	return ok
}

type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema: %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("schema: %s: %s", e.Table, e.Reason)
}

// RefEdge is an inbound reference: From.FromColumn points at To's identifier.
type RefEdge struct {
	From       string
	FromColumn string
	To         string
	OnDelete   DeletePolicy
}

type Registry struct {
	tables map[string]Table
	order  []string
	inRefs map[string][]RefEdge
}

var validTypes = map[FieldType]bool{
	Text: true, Integer: true, Decimal: true, Date: true, Choice: true, Reference: true,
}

// NewRegistry validates the declaration once; configuration mistakes fail
// here, never at query time.
func NewRegistry(tables []Table) (*Registry, error) {
	r := &Registry{
		tables: make(map[string]Table, len(tables)),
		inRefs: make(map[string][]RefEdge),
	}
	for _, t := range tables {
		if t.Name == "" {
			return nil, &SchemaError{Table: t.Name, Reason: "empty table name"}
		}
		if _, dup := r.tables[t.Name]; dup {
			return nil, &SchemaError{Table: t.Name, Reason: "duplicate table"}
		}
		if t.ID == "" {
			return nil, &SchemaError{Table: t.Name, Reason: "missing identifier column"}
		}
		seen := map[string]bool{t.ID: true}
		for _, c := range t.Columns {
			if seen[c.Name] {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: "duplicate column"}
			}
			seen[c.Name] = true
			if !validTypes[c.Type] {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: fmt.Sprintf("unknown type %q", c.Type)}
			}
			if c.Type == Choice && len(c.Choices) == 0 {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: "choice column without choices"}
			}
			if c.Type == Reference && c.Ref == nil {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: "reference column without target"}
			}
			if c.Type != Reference && c.Ref != nil {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: "ref on non-reference column"}
			}
			if c.Min != nil && c.Type != Integer && c.Type != Decimal {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: "min bound on non-numeric column"}
			}
		}
		r.tables[t.Name] = t
		r.order = append(r.order, t.Name)
	}

	// references are resolvable only after every table is registered
	for _, t := range tables {
		for _, c := range t.Columns {
			if c.Ref == nil {
				continue
			}
			target, ok := r.tables[c.Ref.Table]
			if !ok {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: fmt.Sprintf("reference to unknown table %q", c.Ref.Table)}
			}
			if c.Ref.Column != target.ID {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: fmt.Sprintf("reference must target %s.%s", target.Name, target.ID)}
			}
			if c.Ref.OnDelete != Restrict && c.Ref.OnDelete != Cascade {
				return nil, &SchemaError{Table: t.Name, Column: c.Name, Reason: fmt.Sprintf("unknown delete policy %q", c.Ref.OnDelete)}
			}
			r.inRefs[c.Ref.Table] = append(r.inRefs[c.Ref.Table], RefEdge{
				From: t.Name, FromColumn: c.Name, To: c.Ref.Table, OnDelete: c.Ref.OnDelete,
			})
		}
	}
	return r, nil
}

func (r *Registry) Table(name string) (Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns the declarations in registration order.
func (r *Registry) Tables() []Table {
	out := make([]Table, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tables[n])
	}
	return out
}

// Referencing lists every reference column pointing at table.
func (r *Registry) Referencing(table string) []RefEdge {
	return r.inRefs[table]
}

// DDL renders CREATE TABLE statements in registration order. Referential
// actions are left to the gateway so the Memory and Postgres gateways
// enforce the same policy; the store only gets NOT NULL and choice checks.
func (r *Registry) DDL() []string {
	out := make([]string, 0, len(r.order))
	for _, t := range r.Tables() {
		var b strings.Builder
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
		fmt.Fprintf(&b, "\t%s BIGSERIAL PRIMARY KEY", t.ID)
		for _, c := range t.Columns {
			b.WriteString(",\n\t")
			b.WriteString(c.Name)
			b.WriteString(" ")
			b.WriteString(sqlType(c))
			if c.Required {
				b.WriteString(" NOT NULL")
			}
			if c.Type == Choice {
				fmt.Fprintf(&b, " CHECK (%s IN (%s))", c.Name, quoteAll(c.Choices))
			}
			if c.Min != nil {
				fmt.Fprintf(&b, " CHECK (%s >= %d)", c.Name, *c.Min)
			}
		}
		b.WriteString("\n)")
		out = append(out, b.String())
	}
	return out
}

func sqlType(c Column) string {
	switch c.Type {
	case Integer:
		return "INTEGER"
	case Decimal:
		return "NUMERIC(12,2)"
	case Date:
		return "DATE"
	case Reference:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func quoteAll(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
