package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/application"
	orchhttp "github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/http"
	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/memory"
	orchmsg "github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/messaging"
	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/redisstore"
	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/infrastructure/sqlite"
	"github.com/dmehra2102/order-fulfillment/pkg/config"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus/kafkabus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/logging"
	"github.com/dmehra2102/order-fulfillment/pkg/shutdown"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

func main() {
	cfg, err := config.Load("orchestrator-service")
	if err != nil {
		logging.New().Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.Tracing.Endpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown.Drain(5*time.Second, tp.Shutdown) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Saga.JournalPath), 0o755); err != nil {
		log.Error("journal dir failed", "path", cfg.Saga.JournalPath, "err", err)
		os.Exit(1)
	}
	journal, err := sqlite.Open(cfg.Saga.JournalPath)
	if err != nil {
		log.Error("journal open failed", "path", cfg.Saga.JournalPath, "err", err)
		os.Exit(1)
	}
	defer journal.Close()

	var store application.StateStore
	switch cfg.Saga.StateStore {
	case "redis":
		store = redisstore.NewStore(rdb, cfg.Saga.ResolvedTTL)
	default:
		store = memory.NewStore(cfg.Saga.ResolvedCapacity, cfg.Saga.ResolvedTTL)
	}
	log.Info("saga state store", "kind", cfg.Saga.StateStore, "dedupe", cfg.Saga.DedupeCompletions)

	transport := kafkabus.New(log, kafkabus.Config{
		Brokers:           cfg.Kafka.Brokers(),
		Partitions:        cfg.Kafka.Partitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
	})
	defer transport.Close()
	bus := eventbus.New(log, transport, idempotency.NewStore(rdb, cfg.Idempotency.TTL), cfg.Service)
	if err := bus.Declare(ctx, events.All()...); err != nil {
		log.Error("topic declaration failed", "err", err)
		os.Exit(1)
	}

	coord := application.NewCoordinator(log, store, bus,
		application.WithJournal(journal),
		application.WithDedupe(cfg.Saga.DedupeCompletions),
	)
	// The redis store survives restarts on its own; the memory store starts empty.
	if cfg.Saga.StateStore == "memory" {
		if _, err := coord.Rehydrate(ctx); err != nil {
			log.Error("saga rehydrate failed", "err", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      orchhttp.NewHandler(log, coord).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orchmsg.NewConsumer(log, bus, coord).Run(gctx) })
	g.Go(func() error {
		log.Info("admin http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown.Drain(10*time.Second, srv.Shutdown)
	})

	if err := g.Wait(); err != nil {
		log.Error("orchestrator-service stopped with error", "err", err)
	}
	log.Info("orchestrator-service shutdown")
}
