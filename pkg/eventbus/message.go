// Package eventbus is the reliable event channel shared by every service:
// durable topic-routed publish, durable manually acknowledged queues and a
// per-queue dead-letter path for poison messages.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

// Header names carried next to the payload.
const (
	HeaderSource          = "source"
	HeaderDeathReason     = "x-death-reason"
	HeaderOriginalRouting = "x-original-routing-key"
	HeaderQueue           = "x-queue"
)

// ErrDiscard marks a message that can never be processed (malformed payload,
// unknown aggregate). The bus acknowledges it instead of dead-lettering it.
var ErrDiscard = errors.New("eventbus: message discarded")

// Discard wraps err so that errors.Is(err, ErrDiscard) holds.
func Discard(err error) error {
	return fmt.Errorf("%w: %w", ErrDiscard, err)
}

type Message struct {
	ID          string            `json:"id"`
	RoutingKey  string            `json:"routing_key"`
	AggregateID string            `json:"aggregate_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
}

// Handler processes a single message. Retries belong inside the handler.
type Handler func(ctx context.Context, msg Message) error

// NewMessage builds an envelope for payload and stamps the trace context of ctx.
func NewMessage(ctx context.Context, routingKey, aggregateID string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("eventbus: marshal %s: %w", routingKey, err)
	}
	return Message{
		ID:          uuid.NewString(),
		RoutingKey:  routingKey,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Headers:     tracing.Inject(ctx, map[string]string{}),
		Payload:     body,
	}, nil
}

// Decode unmarshals the payload of msg. A payload that does not decode is
// reported as a discardable error.
func Decode[T any](msg Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, Discard(fmt.Errorf("decode %s %s: %w", msg.RoutingKey, msg.ID, err))
	}
	return v, nil
}
