package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wholesale-shop/backoffice/internal/cart"
	"github.com/wholesale-shop/backoffice/internal/fulfillment"
	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/inventory"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func errJSON(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *gateway.ValidationError
		nf *gateway.NotFoundError
		ri *gateway.ReferentialIntegrityError
		se *gateway.StoreError
		is *inventory.InsufficientStockError
		xs *cart.ExceedsStockError
		ce *fulfillment.CommitError
	)
	switch {
	case errors.As(err, &ve):
		errJSON(w, http.StatusBadRequest, err)
	case errors.As(err, &nf):
		errJSON(w, http.StatusNotFound, err)
	case errors.As(err, &ri):
		errJSON(w, http.StatusConflict, err)
	case errors.As(err, &is), errors.As(err, &xs):
		errJSON(w, http.StatusConflict, err)
	case errors.As(err, &ce):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":       ce.Cause.Error(),
			"compensated": ce.Compensated,
		})
	case errors.As(err, &se):
		errJSON(w, http.StatusBadGateway, err)
	default:
		errJSON(w, http.StatusBadRequest, err)
	}
}
