package messaging

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-fulfillment/internal/notification/application"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

const Queue = "notification.orders"

func Run(ctx context.Context, log *slog.Logger, bus *eventbus.Bus, svc *application.Service) error {
	return bus.Subscribe(ctx, Queue, func(ctx context.Context, msg eventbus.Message) error {
		switch msg.RoutingKey {
		case events.RKOrderPaid:
			ev, err := eventbus.Decode[events.OrderPaid](msg)
			if err != nil {
				return err
			}
			return svc.HandleOrderPaid(ctx, ev)
		case events.RKOrderCancelled:
			ev, err := eventbus.Decode[events.OrderCancelled](msg)
			if err != nil {
				return err
			}
			return svc.HandleOrderCancelled(ctx, ev)
		}
		log.WarnContext(ctx, "unexpected routing key", "routing_key", msg.RoutingKey)
		return nil
	}, events.RKOrderPaid, events.RKOrderCancelled)
}
