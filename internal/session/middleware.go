package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

const CookieName = "sid"

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session. Outside the middleware it returns a fresh one.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return New()
}

// Manager binds a Store to the session cookie.
type Manager struct {
	Store  Store
	TTL    time.Duration
	Secure bool
}

// Middleware loads the session named by the cookie, or starts a new one.
// Either way the response carries a cookie good for a full TTL.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s *Session
		if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
			loaded, err := m.Store.Load(r.Context(), c.Value)
			switch {
			case err == nil:
				s = loaded
				// Load slid the stored TTL; move the cookie expiry along with it.
				m.setCookie(w, s.ID)
			case errors.Is(err, apperr.ErrNotFound):
			default:
				slog.Error("session load failed", "error", err)
			}
		}
		if s == nil {
			s = New()
			m.setCookie(w, s.ID)
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (m *Manager) Save(ctx context.Context, s *Session) error { return m.Store.Save(ctx, s) }

// Rotate moves the session to a new id, e.g. on login, and points the cookie at it.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, s *Session) error {
	old := s.ID
	s.ID = New().ID
	if err := m.Store.Save(ctx, s); err != nil {
		return err
	}
	if err := m.Store.Destroy(ctx, old); err != nil {
		slog.Warn("destroy old session", "error", err)
	}
	m.setCookie(w, s.ID)
	return nil
}

// Destroy ends the session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return m.Store.Destroy(ctx, s.ID)
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
