package httpx

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

// BulkHandler moves table data in and out as CSV. Import inserts row by
// row through the gateway so every record gets the same validation a
// form submit would.
type BulkHandler struct {
	Reg *schema.Registry
	GW  gateway.Gateway
}

func (h *BulkHandler) Register(r *chi.Mux) {
	r.Get("/bulk/{table}/export", h.export)
	r.Get("/bulk/{table}/template", h.template)
	r.With(RequireManager).Post("/bulk/{table}/import", h.importCSV)
}

func (h *BulkHandler) table(w http.ResponseWriter, r *http.Request) (schema.Table, bool) {
	name := chi.URLParam(r, "table")
	t, ok := genericTable(h.Reg, name)
	if !ok {
		errJSON(w, http.StatusNotFound, fmt.Errorf("unknown table %q", name))
		return schema.Table{}, false
	}
	return t, true
}

func (h *BulkHandler) export(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	rows, err := h.GW.Query(ctx, t.Name, gateway.Query{Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", t.Name))
	cw := csv.NewWriter(w)
	header := append([]string{t.ID}, t.ColumnNames()...)
	_ = cw.Write(header)
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = cell(row[col])
		}
		_ = cw.Write(rec)
	}
	cw.Flush()
}

// template is the header row plus one sample line, without the identifier
// column: the store assigns it.
func (h *BulkHandler) template(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_template.csv", t.Name))
	cw := csv.NewWriter(w)
	_ = cw.Write(t.ColumnNames())
	sample := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case schema.Integer, schema.Reference:
			sample[i] = "1"
		case schema.Decimal:
			sample[i] = "100.00"
		case schema.Date:
			sample[i] = time.Now().Format("2006-01-02")
		case schema.Choice:
			sample[i] = c.Choices[0]
		default:
			sample[i] = "Sample " + c.Name
		}
	}
	_ = cw.Write(sample)
	cw.Flush()
}

func (h *BulkHandler) importCSV(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	cr := csv.NewReader(r.Body)
	header, err := cr.Read()
	if err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("read csv header: %w", err))
		return
	}
	for _, col := range header {
		if col == t.ID {
			errJSON(w, http.StatusBadRequest, fmt.Errorf("do not include the %s column", t.ID))
			return
		}
		if _, ok := t.Column(col); !ok {
			errJSON(w, http.StatusBadRequest, fmt.Errorf("unknown column %q", col))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	imported, skipped := 0, 0
	var firstErr string
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errJSON(w, http.StatusBadRequest, fmt.Errorf("read csv: %w", err))
			return
		}
		vals := make(gateway.Record, len(header))
		rowErr := false
		for i, col := range header {
			if i >= len(line) {
				break
			}
			v, err := csvValue(t, col, line[i])
			if err != nil {
				rowErr = true
				break
			}
			vals[col] = v
		}
		if !rowErr {
			if _, err := h.GW.Insert(ctx, t.Name, vals); err != nil {
				rowErr = true
				if firstErr == "" {
					firstErr = err.Error()
				}
			}
		}
		if rowErr {
			skipped++
			continue
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported":    imported,
		"skipped":     skipped,
		"first_error": firstErr,
	})
}

func csvValue(t schema.Table, col, raw string) (any, error) {
	c, _ := t.Column(col)
	switch c.Type {
	case schema.Integer, schema.Reference:
		return strconv.ParseInt(raw, 10, 64)
	default:
		return raw, nil
	}
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
