package messaging

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/application"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

const (
	QueueOrderPaid    = "inventory.order-paid"
	QueueCompensation = "inventory.compensation"
	QueueCancelled    = "inventory.order-cancelled"
)

// Consumer binds the inventory queues to the ledger service. Each queue has
// its own loop so a slow compensation does not hold back new orders.
type Consumer struct {
	log *slog.Logger
	bus *eventbus.Bus
	svc *application.Service
}

func NewConsumer(log *slog.Logger, bus *eventbus.Bus, svc *application.Service) *Consumer {
	return &Consumer{log: log, bus: bus, svc: svc}
}

func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.bus.Subscribe(ctx, QueueOrderPaid, c.onOrderPaid, events.RKOrderPaid)
	})
	g.Go(func() error {
		return c.bus.Subscribe(ctx, QueueCompensation, c.onCompensation,
			events.RKCompensationRequired, events.RKCompensateInventoryReservation)
	})
	g.Go(func() error {
		return c.bus.Subscribe(ctx, QueueCancelled, c.onOrderCancelled, events.RKOrderCancelled)
	})
	return g.Wait()
}

func (c *Consumer) onOrderPaid(ctx context.Context, msg eventbus.Message) error {
	ev, err := eventbus.Decode[events.OrderPaid](msg)
	if err != nil {
		return err
	}
	return c.svc.HandleOrderPaid(ctx, ev)
}

func (c *Consumer) onCompensation(ctx context.Context, msg eventbus.Message) error {
	switch msg.RoutingKey {
	case events.RKCompensationRequired:
		ev, err := eventbus.Decode[events.CompensationRequired](msg)
		if err != nil {
			return err
		}
		return c.svc.HandleCompensationRequired(ctx, ev)
	case events.RKCompensateInventoryReservation:
		cmd, err := eventbus.Decode[events.CompensateInventoryReservation](msg)
		if err != nil {
			return err
		}
		return c.svc.HandleCompensateReservation(ctx, cmd)
	}
	c.log.WarnContext(ctx, "unexpected routing key", "routing_key", msg.RoutingKey)
	return nil
}

func (c *Consumer) onOrderCancelled(ctx context.Context, msg eventbus.Message) error {
	ev, err := eventbus.Decode[events.OrderCancelled](msg)
	if err != nil {
		return err
	}
	return c.svc.HandleOrderCancelled(ctx, ev)
}
