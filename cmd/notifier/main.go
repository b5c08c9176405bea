package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/notify"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if !cfg.EventsEnabled() {
		slog.Error("KAFKA_BROKERS is required for the notifier")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (dedup markers)
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Mailer: SES when a sender is configured, otherwise log only
	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SESSender != "" {
		ses, err := notify.NewSESMailer(ctx, notify.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretKey,
			Sender:          cfg.SESSender,
		})
		if err != nil {
			slog.Error("ses mailer", "error", err)
			os.Exit(1)
		}
		mailer = ses
	} else {
		slog.Info("SES_SENDER empty, confirmations are logged only")
	}

	svc := &notify.Service{Mailer: mailer, Redis: rdb, ServiceName: cfg.ServiceName + "-notifier"}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderPlaced, cfg.NotifierWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		slog.Info("notifier consumer started",
			"group", cfg.NotifierGroup, "topic", orders.TopicOrderPlaced, "workers", cfg.NotifierWorkers)
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			slog.Error("consumer exit", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	slog.Info("shutting down consumer")
	cancel()
	<-done
}
