package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-housing-allocation/internal/config"
	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	kafkax "github.com/ariefcatur/go-housing-allocation/internal/kafka"
	"github.com/ariefcatur/go-housing-allocation/internal/metrics"
	"github.com/ariefcatur/go-housing-allocation/internal/postgres"
	"github.com/ariefcatur/go-housing-allocation/internal/projection"
	"github.com/ariefcatur/go-housing-allocation/internal/redisx"
	"github.com/ariefcatur/go-housing-allocation/migrations"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("projector stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	switch {
	case cfg.PostgresDSN == "":
		return errors.New("POSTGRES_DSN is required")
	case cfg.RedisAddr == "":
		return errors.New("REDIS_ADDR is required")
	case len(cfg.KafkaBrokers) == 0:
		return errors.New("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, migrations.FS); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	svc := &projection.Service{
		Audit:       &projection.AuditRepo{DB: db},
		Cache:       redisx.NewCache(rdb),
		ServiceName: cfg.ServiceName + "-projector",
		Metrics:     metrics.New(reg),
		Logger:      logger,
	}

	topics := []string{housing.TopicApplicationEvents, housing.TopicOfficerEvents}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("projector consumer started",
			"group", cfg.ProjectorGroup, "topics", topics, "workers", cfg.ProjectorWorkers)
		return cons.Start(gctx, svc.HandleEvent)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down projector")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
