package messaging

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/application"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// Queue is the orchestrator's only queue. One loop consumes every failure and
// completion so that events of an order are applied in arrival order.
const Queue = "orchestrator.saga"

func RoutingKeys() []string {
	return []string{
		events.RKInventoryReservationFailed,
		events.RKSellerStatsUpdateFailed,
		events.RKNotificationFailed,
		events.RKCompensationCompleted,
	}
}

type Consumer struct {
	log   *slog.Logger
	bus   *eventbus.Bus
	coord *application.Coordinator
}

func NewConsumer(log *slog.Logger, bus *eventbus.Bus, coord *application.Coordinator) *Consumer {
	return &Consumer{log: log, bus: bus, coord: coord}
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.bus.Subscribe(ctx, Queue, c.Handle, RoutingKeys()...)
}

func (c *Consumer) Handle(ctx context.Context, msg eventbus.Message) error {
	switch msg.RoutingKey {
	case events.RKInventoryReservationFailed:
		ev, err := eventbus.Decode[events.InventoryReservationFailed](msg)
		if err != nil {
			return err
		}
		return c.coord.HandleInventoryReservationFailed(ctx, ev)
	case events.RKSellerStatsUpdateFailed:
		ev, err := eventbus.Decode[events.SellerStatsUpdateFailed](msg)
		if err != nil {
			return err
		}
		return c.coord.HandleSellerStatsUpdateFailed(ctx, ev)
	case events.RKNotificationFailed:
		ev, err := eventbus.Decode[events.NotificationFailed](msg)
		if err != nil {
			return err
		}
		return c.coord.HandleNotificationFailed(ctx, ev)
	case events.RKCompensationCompleted:
		ev, err := eventbus.Decode[events.CompensationCompleted](msg)
		if err != nil {
			return err
		}
		return c.coord.HandleCompensationCompleted(ctx, ev)
	}
	c.log.WarnContext(ctx, "unexpected routing key", "routing_key", msg.RoutingKey)
	return nil
}
