package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/cart"
	"github.com/wholesale-shop/backoffice/internal/fulfillment"
)

// WizardHandler exposes the fulfillment saga as step-capture endpoints.
// The handler only moves payloads and actions; every rule lives in the
// saga.
type WizardHandler struct {
	Sessions *fulfillment.SessionManager
}

func (h *WizardHandler) Register(r *chi.Mux) {
	r.Post("/wizard", h.create)
	r.Get("/wizard/{id}", h.state)
	r.Delete("/wizard/{id}", h.abandon)
	r.Post("/wizard/{id}/order-info", h.orderInfo)
	r.Post("/wizard/{id}/cart/items", h.addItem)
	r.Delete("/wizard/{id}/cart/items/{index}", h.removeItem)
	r.Delete("/wizard/{id}/cart", h.clearCart)
	r.Post("/wizard/{id}/cart/confirm", h.confirmCart)
	r.Post("/wizard/{id}/payment", h.payment)
	r.Post("/wizard/{id}/payment/skip", h.skipPayment)
	r.Post("/wizard/{id}/transport", h.transport)
	r.Post("/wizard/{id}/transport/skip", h.skipTransport)
	r.Post("/wizard/{id}/edit", h.edit)
	r.Post("/wizard/{id}/commit", h.commit)
}

type wizardState struct {
	SessionID string                     `json:"session_id"`
	Step      fulfillment.Step           `json:"step"`
	OrderInfo *fulfillment.OrderInfo     `json:"order_info,omitempty"`
	CartItems []cart.Item                `json:"cart_items"`
	CartTotal decimal.Decimal            `json:"cart_total"`
	Payment   *fulfillment.PaymentInfo   `json:"payment,omitempty"`
	Transport *fulfillment.TransportInfo `json:"transport,omitempty"`
}

func (h *WizardHandler) session(w http.ResponseWriter, r *http.Request) (*fulfillment.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		errJSON(w, http.StatusNotFound, err)
		return nil, false
	}
	return s, true
}

func stateOf(id string, s *fulfillment.Saga) wizardState {
	return wizardState{
		SessionID: id,
		Step:      s.Step(),
		OrderInfo: s.OrderInfo(),
		CartItems: s.CartItems(),
		CartTotal: s.CartTotal(),
		Payment:   s.Payment(),
		Transport: s.Transport(),
	}
}

// respondState runs fn on the session's saga and replies with the fresh
// state, or the mapped error.
func (h *WizardHandler) respondState(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *fulfillment.Saga) error) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var state wizardState
	err := sess.Do(func(s *fulfillment.Saga) error {
		if err := fn(ctx, s); err != nil {
			return err
		}
		state = stateOf(sess.ID, s)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *WizardHandler) create(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	_ = s.Do(func(saga *fulfillment.Saga) error {
		writeJSON(w, http.StatusCreated, stateOf(s.ID, saga))
		return nil
	})
}

func (h *WizardHandler) state(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error { return nil })
}

func (h *WizardHandler) abandon(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	h.Sessions.Abandon(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"abandoned": chi.URLParam(r, "id")})
}

func (h *WizardHandler) orderInfo(w http.ResponseWriter, r *http.Request) {
	var info fulfillment.OrderInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.SubmitOrderInfo(ctx, info)
	})
}

type addItemReq struct {
	ProductID int64    `json:"product_id"`
	Quantity  int64    `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"` // overrides the catalogue price
}

func (h *WizardHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	var price *decimal.Decimal
	if req.UnitPrice != nil {
		d := decimal.NewFromFloat(*req.UnitPrice)
		price = &d
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.AddCartItem(ctx, req.ProductID, req.Quantity, price)
	})
}

func (h *WizardHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("bad index"))
		return
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.RemoveCartItem(idx)
	})
}

func (h *WizardHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.ClearCart()
	})
}

func (h *WizardHandler) confirmCart(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.ConfirmCart()
	})
}

type paymentReq struct {
	Date   string   `json:"date"`
	Amount *float64 `json:"amount,omitempty"` // defaults to the cart total
	Mode   string   `json:"mode"`
}

func (h *WizardHandler) payment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		amount := s.CartTotal()
		if req.Amount != nil {
			amount = decimal.NewFromFloat(*req.Amount)
		}
		return s.SubmitPayment(fulfillment.PaymentInfo{Date: req.Date, Amount: amount, Mode: req.Mode})
	})
}

func (h *WizardHandler) skipPayment(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.SkipPayment()
	})
}

func (h *WizardHandler) transport(w http.ResponseWriter, r *http.Request) {
	var info fulfillment.TransportInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.SubmitTransport(info)
	})
}

func (h *WizardHandler) skipTransport(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.SkipTransport()
	})
}

func (h *WizardHandler) edit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step fulfillment.Step `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	h.respondState(w, r, func(ctx context.Context, s *fulfillment.Saga) error {
		return s.Edit(req.Step)
	})
}

func (h *WizardHandler) commit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	// no cancellation once the multi-entity write starts
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var summary *fulfillment.Summary
	err := sess.Do(func(s *fulfillment.Saga) error {
		var err error
		summary, err = s.Commit(ctx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}
