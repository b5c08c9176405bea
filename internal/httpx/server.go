package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/metrics"
)

const requestTimeout = 15 * time.Second

type Options struct {
	Metrics     *metrics.ServerMetrics
	CORSOrigins []string
	MediaDir    string
	MediaURL    string
}

// NewRouter builds the base router: request ids, logging, recovery, CORS,
// metrics, health and the media file server.
func NewRouter(o Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	if len(o.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   o.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if o.Metrics != nil {
		r.Use(o.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", o.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if o.MediaDir != "" && o.MediaURL != "" {
		r.Handle(o.MediaURL+"*", http.StripPrefix(o.MediaURL, http.FileServer(http.Dir(o.MediaDir))))
	}
	return r
}

// Registrar is implemented by every handler group.
type Registrar interface {
	Register(r chi.Router)
}

type Stack struct {
	Sessions func(http.Handler) http.Handler
	Users    UserLoader
	// Feed is the staff websocket. It is mounted outside the request timeout.
	Feed   http.Handler
	Admin  Registrar
	Public []Registrar
}

// Mount wires the session-aware routes onto r. Everything under /admin
// requires the admin capability.
func Mount(r chi.Router, s Stack) {
	r.Group(func(r chi.Router) {
		r.Use(s.Sessions, WithIdentity(s.Users))
		if s.Feed != nil {
			r.With(RequireCapability(auth.CanAdmin)).Get("/admin/orders/feed", s.Feed.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			for _, h := range s.Public {
				h.Register(r)
			}
			if s.Admin != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Use(RequireCapability(auth.CanAdmin))
					s.Admin.Register(r)
				})
			}
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
