package messaging

import (
	"context"

	"github.com/dmehra2102/order-fulfillment/internal/order/application"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

const QueueCancellation = "order.cancellation"

// Subscribe feeds cancellation requests from the saga into the order service.
func Subscribe(ctx context.Context, bus *eventbus.Bus, svc *application.Service) error {
	return bus.Subscribe(ctx, QueueCancellation, func(ctx context.Context, msg eventbus.Message) error {
		ev, err := eventbus.Decode[events.OrderCancellationRequested](msg)
		if err != nil {
			return err
		}
		return svc.HandleCancellationRequested(ctx, ev)
	}, events.RKOrderCancellationRequested)
}
