package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/application"
	invgrpc "github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/grpc"
	invhttp "github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/http"
	invmsg "github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/messaging"
	inventoryDB "github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/order-fulfillment/pkg/config"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus/kafkabus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/logging"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
	"github.com/dmehra2102/order-fulfillment/pkg/shutdown"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

func main() {
	cfg, err := config.Load("inventory-service")
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

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	for _, ddl := range []string{outbox.Schema, inventoryDB.Schema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			log.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

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

	repo := inventoryDB.NewRepository(log, pool)
	policy := cfg.Retry.Policy()
	svc := application.NewService(log, repo, bus, policy)

	// Outbox relay
	relay := outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), outbox.NewDispatcher(log, bus), cfg.Service+"-relay")

	// gRPC server
	gs, err := invgrpc.Run(cfg.GRPC.Addr, invgrpc.NewServer(log, svc))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	defer gs.GracefulStop()
	log.Info("grpc listening", "addr", cfg.GRPC.Addr)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      invhttp.NewHandler(log, repo).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return invmsg.NewConsumer(log, bus, svc).Run(gctx) })
	g.Go(func() error {
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
		log.Error("inventory-service stopped with error", "err", err)
	}
	log.Info("inventory-service shutdown")
}
