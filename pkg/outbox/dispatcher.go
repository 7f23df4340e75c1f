package outbox

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

type Publisher interface {
	PublishMessage(ctx context.Context, msg eventbus.Message) error
}

type Dispatcher struct {
	log       *slog.Logger
	publisher Publisher
}

func NewDispatcher(log *slog.Logger, publisher Publisher) *Dispatcher {
	return &Dispatcher{log: log, publisher: publisher}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.publisher.PublishMessage(ctx, event.Message()); err != nil {
		d.log.ErrorContext(ctx, "outbox dispatch failed", "event_id", event.ID, "type", event.Type, "err", err)
		return err
	}
	d.log.InfoContext(ctx, "outbox dispatched", "event_id", event.ID, "type", event.Type, "aggregate_id", event.AggregateID)
	return nil
}
