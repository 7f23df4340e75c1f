package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/order/application"
	ordergrpc "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/http"
	ordermsg "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/messaging"
	orderpg "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/postgres"
	orderredis "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/redis"
	payment "github.com/dmehra2102/order-fulfillment/internal/payment/application"
	"github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/gateway"
	paymentpg "github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/postgres"
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
	cfg, err := config.Load("order-service")
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

	// Postgres Setup
	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	for _, ddl := range []string{outbox.Schema, orderpg.Schema, paymentpg.Schema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			log.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	// Event bus
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

	maxAmount, err := decimal.NewFromString(cfg.Payment.MaxAmount)
	if err != nil {
		log.Error("invalid payment.max_amount", "err", err)
		os.Exit(1)
	}
	payments := payment.NewService(log, gateway.NewMock(maxAmount), paymentpg.NewRepository(log, pool))

	inv, err := ordergrpc.NewInventoryClient(log, cfg.GRPC.InventoryAddr)
	if err != nil {
		log.Error("inventory client failed", "err", err)
		os.Exit(1)
	}
	defer inv.Close()

	policy := cfg.Retry.Policy()
	svc := application.NewService(log, orderpg.NewRepository(log, pool), orderredis.NewCheckoutStore(rdb), inv, payments, policy, cfg.Checkout.TTL)

	relay := outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), outbox.NewDispatcher(log, bus), cfg.Service+"-relay")

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Mount("/", orderhttp.NewHandler(log, svc).Routes())
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return ordermsg.Subscribe(gctx, bus, svc) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
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
		log.Error("order-service stopped with error", "err", err)
	}
	log.Info("order-service shutdown complete")
}
