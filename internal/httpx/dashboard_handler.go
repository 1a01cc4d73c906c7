package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/redisx"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

// DashboardHandler serves the landing-page aggregates: row counts,
// recorded revenue, pending orders, plus the counters the reporting
// consumer keeps in redis.
type DashboardHandler struct {
	GW    gateway.Gateway
	Redis *redis.Client // nil disables the KPI block
}

func (h *DashboardHandler) Register(r *chi.Mux) {
	r.Get("/dashboard", h.dashboard)
}

func (h *DashboardHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts := map[string]int{}
	for _, table := range []string{
		schema.TableCustomers, schema.TableSuppliers, schema.TableProducts,
		schema.TableEmployees, schema.TableOrders,
	} {
		n, err := h.GW.Count(ctx, table)
		if err != nil {
			writeError(w, err)
			return
		}
		counts[table] = n
	}
	revenue, err := h.GW.SumDecimal(ctx, schema.TablePayments, "amount")
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := h.GW.Count(ctx, schema.TableOrders, gateway.Neq("status", "Delivered"))
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{
		"counts":         counts,
		"revenue":        revenue,
		"pending_orders": pending,
	}
	if h.Redis != nil {
		body["fulfillment_kpis"] = h.kpis(ctx)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *DashboardHandler) kpis(ctx context.Context) map[string]any {
	orders, _ := h.Redis.Get(ctx, redisx.KeyKPIOrders).Int64()
	items, _ := h.Redis.Get(ctx, redisx.KeyKPIItems).Int64()
	paise, _ := h.Redis.Get(ctx, redisx.KeyKPIRevenuePaise).Int64()
	return map[string]any{
		"orders_fulfilled": orders,
		"items_sold":       items,
		"revenue":          decimal.NewFromInt(paise).Div(decimal.NewFromInt(100)),
	}
}
