package httpx

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wholesale-shop/backoffice/internal/gateway"
	"github.com/wholesale-shop/backoffice/internal/schema"
)

// UsersHandler covers staff account management and the login check the
// auth collaborator calls to obtain the role flag. Session issuance stays
// outside this service.
type UsersHandler struct {
	GW gateway.Gateway
}

func (h *UsersHandler) Register(r *chi.Mux) {
	r.Post("/users/login", h.login)
	r.With(RequireManager).Get("/users", h.list)
	r.With(RequireManager).Post("/users", h.create)
	r.With(RequireManager).Post("/users/{id}/activate", h.setActive(1))
	r.With(RequireManager).Post("/users/{id}/deactivate", h.setActive(0))
	r.With(RequireManager).Post("/users/{id}/password", h.resetPassword)
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := h.GW.Query(ctx, schema.TableUsers, gateway.Query{OrderBy: "username"})
	if err != nil {
		writeError(w, err)
		return
	}
	for _, row := range rows {
		delete(row, "password_hash")
	}
	if rows == nil {
		rows = []gateway.Record{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type createUserReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	if req.Username == "" || req.Password == "" || req.Name == "" {
		errJSON(w, http.StatusBadRequest, errors.New("username, password and name required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	taken, err := h.GW.Count(ctx, schema.TableUsers, gateway.Eq("username", req.Username))
	if err != nil {
		writeError(w, err)
		return
	}
	if taken > 0 {
		errJSON(w, http.StatusConflict, fmt.Errorf("username %q taken", req.Username))
		return
	}
	row, err := h.GW.Insert(ctx, schema.TableUsers, gateway.Record{
		"username":      req.Username,
		"password_hash": hashPassword(req.Password),
		"name":          req.Name,
		"email":         req.Email,
		"role":          req.Role,
		"is_active":     1,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	delete(row, "password_hash")
	writeJSON(w, http.StatusCreated, row)
}

func (h *UsersHandler) setActive(active int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		row, err := h.GW.Update(ctx, schema.TableUsers, id, gateway.Record{"is_active": active})
		if err != nil {
			writeError(w, err)
			return
		}
		delete(row, "password_hash")
		writeJSON(w, http.StatusOK, row)
	}
}

func (h *UsersHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		errJSON(w, http.StatusBadRequest, errors.New("password required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := h.GW.Update(ctx, schema.TableUsers, id, gateway.Record{"password_hash": hashPassword(req.Password)}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *UsersHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errJSON(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := h.GW.Query(ctx, schema.TableUsers, gateway.Query{Filters: []gateway.Filter{
		gateway.Eq("username", req.Username),
		gateway.Eq("is_active", 1),
	}})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(rows) == 0 || !verifyPassword(req.Password, rows[0]["password_hash"].(string)) {
		errJSON(w, http.StatusUnauthorized, errors.New("invalid username or password"))
		return
	}
	u := rows[0]
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": u["user_id"],
		"name":    u["name"],
		"role":    u["role"],
	})
}

// salted SHA-256, stored as "salt$hash"
func hashPassword(password string) string {
	salt := make([]byte, 32)
	_, _ = rand.Read(salt)
	hexSalt := hex.EncodeToString(salt)
	sum := sha256.Sum256([]byte(password + hexSalt))
	return hexSalt + "$" + hex.EncodeToString(sum[:])
}

func verifyPassword(password, stored string) bool {
	salt, want, found := strings.Cut(stored, "$")
	if !found {
		return false
	}
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:]) == want
}
