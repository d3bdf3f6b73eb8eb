// Command notifyd runs the notification service: the ingest API, the admin
// API, the digest scheduler and the optional Kafka event consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/ingest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/requestid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("notifyd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var s settings
	for _, load := range []func() error{
		func() error { return config.Load(&s.App) },
		func() error { return config.Load(&s.Log) },
		func() error { return config.Load(&s.HTTP) },
		func() error { return config.Load(&s.AWS) },
		func() error { return config.Load(&s.Email) },
		func() error { return config.Load(&s.Digest) },
		func() error { return config.Load(&s.Analytics) },
		func() error { return config.Load(&s.Kafka) },
		func() error { return config.Load(&s.RateLimit) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	log, err := logger.NewFromConfig(s.Log, logger.WithContextExtractors(requestid.LoggerExtractor()))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(log)

	svc, err := build(ctx, s, log)
	if err != nil {
		return err
	}
	defer svc.close()

	router := chi.NewRouter()
	router.Use(requestid.Middleware, middleware.Recoverer)
	router.Mount("/admin", svc.admin.Routes())
	router.Mount("/v1", svc.ingest.Routes())
	router.Get("/healthz", httpserver.Liveness())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.NewFromConfig(s.HTTP, httpserver.WithLogger(log)).Run(gctx, router)
	})
	g.Go(func() error {
		if err := svc.dispatcher.Scheduler().Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if s.Kafka.Enabled() {
		consumer := ingest.NewKafkaConsumer(ingest.NewKafkaReader(s.Kafka), svc.dispatcher, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	log.InfoContext(ctx, "notifyd started",
		slog.String("addr", s.HTTP.Addr),
		slog.String("template_store", s.App.TemplateStore),
		slog.String("analytics_store", s.App.AnalyticsStore),
		slog.Bool("kafka", s.Kafka.Enabled()),
	)
	return g.Wait()
}
