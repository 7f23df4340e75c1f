package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

// Deduper records processed message ids per queue.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Bus is the process-wide event channel. It is safe for concurrent Publish.
type Bus struct {
	log       *slog.Logger
	transport Transport
	dedup     Deduper
	source    string
	tracer    trace.Tracer
}

func New(log *slog.Logger, transport Transport, dedup Deduper, source string) *Bus {
	return &Bus{
		log:       log,
		transport: transport,
		dedup:     dedup,
		source:    source,
		tracer:    otel.Tracer("eventbus"),
	}
}

func (b *Bus) Declare(ctx context.Context, routingKeys ...string) error {
	return b.transport.Declare(ctx, routingKeys...)
}

// Publish sends payload under routingKey. aggregateID keeps per-aggregate ordering.
func (b *Bus) Publish(ctx context.Context, routingKey, aggregateID string, payload any) error {
	msg, err := NewMessage(ctx, routingKey, aggregateID, payload)
	if err != nil {
		return err
	}
	return b.PublishMessage(ctx, msg)
}

// PublishMessage sends a pre-built envelope, keeping its id. The outbox relay uses it.
func (b *Bus) PublishMessage(ctx context.Context, msg Message) error {
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	if _, ok := msg.Headers[HeaderSource]; !ok && b.source != "" {
		msg.Headers[HeaderSource] = b.source
	}
	if err := b.transport.Publish(ctx, msg); err != nil {
		b.log.ErrorContext(ctx, "publish failed", "routing_key", msg.RoutingKey, "message_id", msg.ID, "err", err)
		return fmt.Errorf("eventbus: publish %s: %w", msg.RoutingKey, err)
	}
	b.log.DebugContext(ctx, "published", "routing_key", msg.RoutingKey, "message_id", msg.ID, "aggregate_id", msg.AggregateID)
	return nil
}

// Subscribe consumes queue until ctx is done, dispatching one message at a
// time so that messages of one queue are handled in order.
func (b *Bus) Subscribe(ctx context.Context, queue string, h Handler, routingKeys ...string) error {
	src, err := b.transport.Open(ctx, queue, routingKeys)
	if err != nil {
		return fmt.Errorf("eventbus: open %s: %w", queue, err)
	}
	defer func() { _ = src.Close() }()

	b.log.Info("consumer started", "queue", queue, "routing_keys", routingKeys)
	for {
		d, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info("consumer stopping", "queue", queue)
				return nil
			}
			return fmt.Errorf("eventbus: receive %s: %w", queue, err)
		}
		if err := b.dispatch(ctx, queue, d, h); err != nil {
			return err
		}
	}
}

// dispatch fails only when a rejected message could not reach the DLQ. The
// loop must stop then: acking a later message would commit past it.
func (b *Bus) dispatch(ctx context.Context, queue string, d Delivery, h Handler) error {
	msg := d.Message()
	key := idempotency.Key(queue, msg.ID)

	if b.dedup != nil {
		seen, err := b.dedup.Seen(ctx, key)
		if err != nil {
			b.log.ErrorContext(ctx, "idempotency check failed", "queue", queue, "message_id", msg.ID, "err", err)
		}
		if seen {
			b.log.InfoContext(ctx, "duplicate message skipped", "queue", queue, "message_id", msg.ID)
			b.ack(ctx, queue, d)
			return nil
		}
	}

	msgCtx := tracing.Extract(ctx, msg.Headers)
	msgCtx, span := b.tracer.Start(msgCtx, "consume "+msg.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", queue),
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("order.id", msg.AggregateID),
		),
	)
	defer span.End()

	err := h(msgCtx, msg)
	switch {
	case err == nil:
		b.ack(msgCtx, queue, d)
		b.mark(msgCtx, key)
	case errors.Is(err, ErrDiscard):
		b.log.ErrorContext(msgCtx, "message discarded", "queue", queue, "routing_key", msg.RoutingKey, "message_id", msg.ID, "err", err)
		b.ack(msgCtx, queue, d)
		b.mark(msgCtx, key)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.log.ErrorContext(msgCtx, "handler failed, dead-lettering", "queue", queue, "routing_key", msg.RoutingKey, "message_id", msg.ID, "err", err)
		if nerr := d.Nack(msgCtx, err); nerr != nil {
			b.log.ErrorContext(msgCtx, "nack failed, stopping consumer", "queue", queue, "message_id", msg.ID, "err", nerr)
			return fmt.Errorf("eventbus: dead-letter %s on %s: %w", msg.ID, queue, nerr)
		}
	}
	return nil
}

func (b *Bus) ack(ctx context.Context, queue string, d Delivery) {
	if err := d.Ack(ctx); err != nil {
		b.log.ErrorContext(ctx, "ack failed", "queue", queue, "message_id", d.Message().ID, "err", err)
	}
}

func (b *Bus) mark(ctx context.Context, key string) {
	if b.dedup == nil {
		return
	}
	if err := b.dedup.Mark(ctx, key); err != nil {
		b.log.ErrorContext(ctx, "idempotency mark failed", "key", key, "err", err)
	}
}
