package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/session"
	"github.com/ariefcatur/go-storefront/internal/users"
)

type UserLoader interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// WithIdentity resolves the session's user id into an auth.Identity. A user
// that no longer exists is treated as anonymous.
func WithIdentity(loader UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s.UserID == nil {
				next.ServeHTTP(w, r)
				return
			}
			u, err := loader.Get(r.Context(), *s.UserID)
			switch {
			case err == nil:
				r = r.WithContext(auth.WithIdentity(r.Context(), u.Identity()))
			case errors.Is(err, apperr.ErrNotFound):
			default:
				slog.Error("load session user", "user_id", *s.UserID, "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability answers 401 for anonymous callers and 403 for callers
// lacking the capability.
func RequireCapability(can auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			switch {
			case !auth.Authenticated(id):
				writeError(w, r, apperr.ErrUnauthorized)
			case !can(id):
				writeError(w, r, apperr.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
