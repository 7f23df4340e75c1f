package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-fulfillment/internal/notification/application"
	notifymsg "github.com/dmehra2102/order-fulfillment/internal/notification/infrastructure/messaging"
	"github.com/dmehra2102/order-fulfillment/internal/notification/infrastructure/sender"
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
	cfg, err := config.Load("notification-service")
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
	svc := application.NewService(log, sender.NewLog(log), bus, policy)

	if err := notifymsg.Run(ctx, log, bus, svc); err != nil {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("notification-service shutdown")
}
