package messaging

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/sellerstats/application"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

const (
	QueueOrderPaid = "sellerstats.order-paid"
	QueueCancelled = "sellerstats.order-cancelled"
)

func Run(ctx context.Context, bus *eventbus.Bus, svc *application.Service) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Subscribe(ctx, QueueOrderPaid, func(ctx context.Context, msg eventbus.Message) error {
			ev, err := eventbus.Decode[events.OrderPaid](msg)
			if err != nil {
				return err
			}
			return svc.HandleOrderPaid(ctx, ev)
		}, events.RKOrderPaid)
	})
	g.Go(func() error {
		return bus.Subscribe(ctx, QueueCancelled, func(ctx context.Context, msg eventbus.Message) error {
			ev, err := eventbus.Decode[events.OrderCancelled](msg)
			if err != nil {
				return err
			}
			return svc.HandleOrderCancelled(ctx, ev)
		}, events.RKOrderCancelled)
	})
	return g.Wait()
}
