package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

// TablesHandler is the generic table surface: list with filters, create,
// update, delete — one thin mapping onto the gateway per route.
type TablesHandler struct {
	Reg *schema.Registry
	GW  gateway.Gateway
}

func (h *TablesHandler) Register(r *chi.Mux) {
	r.Get("/tables/{table}", h.list)
	r.Get("/tables/{table}/{id}", h.get)
	r.Post("/tables/{table}", h.create)
	r.With(RequireManager).Put("/tables/{table}/{id}", h.update)
	r.With(RequireManager).Delete("/tables/{table}/{id}", h.del)
}

func (h *TablesHandler) table(w http.ResponseWriter, r *http.Request) (schema.Table, bool) {
	name := chi.URLParam(r, "table")
	t, ok := genericTable(h.Reg, name)
	if !ok {
		errJSON(w, http.StatusNotFound, fmt.Errorf("unknown table %q", name))
		return schema.Table{}, false
	}
	return t, true
}

// genericTable resolves a table for the generic CRUD and bulk surfaces.
// Accounts are only reachable through UsersHandler: password hashes never
// leave that handler and its Manager gating cannot be sidestepped here.
func genericTable(reg *schema.Registry, name string) (schema.Table, bool) {
	if name == schema.TableUsers {
		return schema.Table{}, false
	}
	return reg.Table(name)
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("bad id"))
		return 0, false
	}
	return id, true
}

// list accepts ?limit, ?order_by, ?dir=asc|desc, ?search (substring over
// the name column) and ?eq.<col>= / ?neq.<col>= filters.
func (h *TablesHandler) list(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	q := gateway.Query{Limit: 50}
	params := r.URL.Query()
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errJSON(w, http.StatusBadRequest, fmt.Errorf("bad limit %q", v))
			return
		}
		q.Limit = n
	}
	if v := params.Get("order_by"); v != "" {
		q.OrderBy = v
	}
	q.Desc = strings.EqualFold(params.Get("dir"), "desc")
	if v := params.Get("search"); v != "" {
		if _, has := t.Column("name"); !has {
			errJSON(w, http.StatusBadRequest, fmt.Errorf("table %s is not searchable", t.Name))
			return
		}
		q.Filters = append(q.Filters, gateway.Contains("name", v))
	}
	for key, vals := range params {
		var op gateway.Op
		switch {
		case strings.HasPrefix(key, "eq."):
			op = gateway.OpEq
		case strings.HasPrefix(key, "neq."):
			op = gateway.OpNeq
		default:
			continue
		}
		col := key[strings.Index(key, ".")+1:]
		v, err := filterValue(t, col, vals[0])
		if err != nil {
			writeError(w, err)
			return
		}
		q.Filters = append(q.Filters, gateway.Filter{Column: col, Op: op, Value: v})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := h.GW.Query(ctx, t.Name, q)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []gateway.Record{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// filterValue converts a query-string value to the column's type; numeric
// columns otherwise reject the raw string.
func filterValue(t schema.Table, col, raw string) (any, error) {
	c, ok := t.Column(col)
	if !ok {
		if col == t.ID {
			return strconv.ParseInt(raw, 10, 64)
		}
		return nil, &gateway.ValidationError{Table: t.Name, Column: col, Reason: "unknown column"}
	}
	switch c.Type {
	case schema.Integer, schema.Reference:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &gateway.ValidationError{Table: t.Name, Column: col, Reason: "want integer"}
		}
		return n, nil
	default:
		return raw, nil
	}
}

func (h *TablesHandler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	row, err := h.GW.Get(ctx, t.Name, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *TablesHandler) create(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	var vals gateway.Record
	if err := json.NewDecoder(r.Body).Decode(&vals); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	row, err := h.GW.Insert(ctx, t.Name, vals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *TablesHandler) update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var vals gateway.Record
	if err := json.NewDecoder(r.Body).Decode(&vals); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	row, err := h.GW.Update(ctx, t.Name, id, vals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *TablesHandler) del(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.GW.Delete(ctx, t.Name, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
