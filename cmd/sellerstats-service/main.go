package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/sellerstats/application"
	statshttp "github.com/dmehra2102/order-fulfillment/internal/sellerstats/infrastructure/http"
	statsmsg "github.com/dmehra2102/order-fulfillment/internal/sellerstats/infrastructure/messaging"
	statsredis "github.com/dmehra2102/order-fulfillment/internal/sellerstats/infrastructure/redis"
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
	cfg, err := config.Load("sellerstats-service")
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
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

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

	policy := cfg.Retry.Policy()
	svc := application.NewService(log, statsredis.NewStore(rdb), bus, policy)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      statshttp.NewHandler(log, svc).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return statsmsg.Run(gctx, bus, svc) })
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
		log.Error("sellerstats-service stopped with error", "err", err)
	}
	log.Info("sellerstats-service shutdown")
}
