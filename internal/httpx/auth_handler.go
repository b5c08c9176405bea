package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/session"
)

type AuthHandler struct {
	Users    Authenticator
	Sessions SessionManager
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login binds the user to the session and moves it to a fresh id. The cart
// collected while anonymous is kept.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := session.FromContext(r.Context())
	s.UserID = &u.ID
	if err := h.Sessions.Rotate(r.Context(), w, s); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user logged in", "user_id", u.ID)
	writeJSON(w, http.StatusOK, u.Identity())
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if err := h.Sessions.Destroy(r.Context(), w, s); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !auth.Authenticated(id) {
		writeError(w, r, apperr.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, id)
}
