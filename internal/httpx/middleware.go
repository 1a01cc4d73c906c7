package httpx

import (
	"errors"
	"net/http"
)

// Role gating is the caller's policy, not the core's: the authenticated
// role arrives as a header from the auth layer and only the routes are
// gated, never the gateway itself.
const roleHeader = "X-Role"

func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(roleHeader) != "Manager" {
			errJSON(w, http.StatusForbidden, errors.New("manager role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
