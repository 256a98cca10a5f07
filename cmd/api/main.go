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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-housing-allocation/internal/allocation"
	"github.com/ariefcatur/go-housing-allocation/internal/config"
	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	"github.com/ariefcatur/go-housing-allocation/internal/httpx"
	kafkax "github.com/ariefcatur/go-housing-allocation/internal/kafka"
	"github.com/ariefcatur/go-housing-allocation/internal/metrics"
	"github.com/ariefcatur/go-housing-allocation/internal/postgres"
	"github.com/ariefcatur/go-housing-allocation/internal/redisx"
	"github.com/ariefcatur/go-housing-allocation/migrations"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var store housing.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, migrations.FS); err != nil {
			return err
		}
		store = &housing.Repo{DB: db}
	} else {
		logger.Warn("POSTGRES_DSN not set, records are kept in memory only")
		store = housing.NewMemoryStore()
	}

	snap, err := housing.LoadSnapshot(ctx, store)
	if err != nil {
		return err
	}
	applicants, err := store.LoadApplicants(ctx)
	if err != nil {
		return err
	}
	engine, err := allocation.NewEngine(snap, housing.NewDirectory(applicants...), allocation.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Info("allocation state loaded",
		"projects", len(snap.Projects), "applications", len(snap.Applications), "officers", len(snap.Officers))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []allocation.ServiceOption{
		allocation.WithMetrics(metrics.New(reg)),
		allocation.WithServiceLogger(logger),
		allocation.WithProducerName(cfg.ServiceName),
	}

	// Kafka producers
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		appEvents := kafkax.NewProducer(cfg.KafkaBrokers, housing.TopicApplicationEvents, 1024, logger)
		officerEvents := kafkax.NewProducer(cfg.KafkaBrokers, housing.TopicOfficerEvents, 256, logger)
		producers = append(producers, appEvents, officerEvents)
		opts = append(opts, allocation.WithPublishers(appEvents, officerEvents))
	}
	svc := allocation.NewService(engine, store, opts...)

	// Router
	router := httpx.NewRouter(reg)
	h := &httpx.AllocationHandler{Service: svc, Logger: logger}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		h.Cache = redisx.NewCache(rdb)
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// Producers outlive the signal: handlers still draining in srv.Shutdown
	// keep publishing, and Close flushes after they are done.
	sinks := make([]eventSink, 0, len(producers))
	for _, p := range producers {
		p.Start(context.Background())
		sinks = append(sinks, p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return drain(srv, sinks, svc.Flush, logger)
	})
	return g.Wait()
}

type server interface {
	Shutdown(ctx context.Context) error
}

type eventSink interface {
	Close()
	WaitClosed()
}

// drain stops the API in dependency order: HTTP handlers first, then the
// event producers, then a final write of the allocation state.
func drain(srv server, sinks []eventSink, flush func(context.Context) error, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	for _, p := range sinks {
		p.Close()
	}
	for _, p := range sinks {
		p.WaitClosed()
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	if ferr := flush(flushCtx); ferr != nil {
		logger.Error("final flush failed", "error", ferr)
	}
	return err
}
