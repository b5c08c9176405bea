package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/feed"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/media"
	"github.com/ariefcatur/go-storefront/internal/metrics"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/reviews"
	"github.com/ariefcatur/go-storefront/internal/session"
	"github.com/ariefcatur/go-storefront/internal/users"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, or nothing when no brokers are configured
	var pub kafkax.Publisher = kafkax.Discard{}
	var prod *kafkax.Producer
	if cfg.EventsEnabled() {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		prod.Start()
		pub = prod
	} else {
		slog.Info("KAFKA_BROKERS empty, domain events disabled")
	}
	events := kafkax.Emitter{Pub: pub, Producer: cfg.ServiceName}

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	userRepo := &users.Repo{DB: db}
	reviewRepo := &reviews.Repo{DB: db}
	sessions := &session.Manager{
		Store:  &session.RedisStore{RDB: rdb, TTL: cfg.SessionTTL},
		TTL:    cfg.SessionTTL,
		Secure: cfg.CookieSecure,
	}
	cache := &orders.StatusCache{RDB: rdb}
	hub := feed.NewHub(allowOrigins(cfg.CORSOrigins))
	m := metrics.NewServerMetrics("api")

	checkout := &orders.Checkout{
		Orders:   orderRepo,
		Catalog:  catalogRepo,
		Sessions: sessions,
		Cache:    cache,
		Events:   events,
		Feed:     hub,
	}
	status := &orders.Admin{Orders: orderRepo, Cache: cache, Events: events, Feed: hub}

	router := httpx.NewRouter(httpx.Options{
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		MediaDir:    cfg.MediaDir,
		MediaURL:    cfg.MediaURL,
	})
	httpx.Mount(router, httpx.Stack{
		Sessions: sessions.Middleware,
		Users:    userRepo,
		Feed:     hub,
		Admin: &httpx.AdminHandler{
			Catalog: catalogRepo,
			Orders:  orderRepo,
			Status:  status,
			Cache:   cache,
			Users:   userRepo,
			Reviews: reviewRepo,
			Media:   &media.Store{Dir: cfg.MediaDir, URL: cfg.MediaURL},
			Events:  events,
		},
		Public: []httpx.Registrar{
			&httpx.StorefrontHandler{Catalog: catalogRepo, Reviews: reviewRepo, Events: events},
			&httpx.CartHandler{Catalog: catalogRepo, Sessions: sessions, Checkout: checkout, Metrics: m},
			&httpx.OrdersHandler{Orders: orderRepo, Cache: cache},
			&httpx.AuthHandler{Users: userRepo, Sessions: sessions},
		},
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// graceful shutdown
	go func() {
		slog.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}

// allowOrigins lets the staff feed accept the configured CORS origins. With
// none configured the websocket same-origin default applies.
func allowOrigins(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		return slices.Contains(origins, origin) || slices.Contains(origins, "*")
	}
}
