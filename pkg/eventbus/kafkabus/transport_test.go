package kafkabus

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

func TestKafkaConversionKeepsEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := eventbus.Message{
		ID:          "m-1",
		RoutingKey:  "order.paid",
		AggregateID: "o-1",
		OccurredAt:  at,
		Headers:     map[string]string{"traceparent": "00-abc-def-01"},
		Payload:     []byte(`{"order_id":"o-1"}`),
	}

	km := toKafka(msg.RoutingKey, msg)
	assert.Equal(t, "order.paid", km.Topic)
	assert.Equal(t, []byte("o-1"), km.Key)

	got := fromKafka(km)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.RoutingKey, got.RoutingKey)
	assert.Equal(t, msg.AggregateID, got.AggregateID)
	assert.True(t, at.Equal(got.OccurredAt))
	assert.Equal(t, "00-abc-def-01", got.Headers["traceparent"])
	assert.JSONEq(t, string(msg.Payload), string(got.Payload))
}

func TestDeadLetterKeepsOriginalRoutingKey(t *testing.T) {
	msg := eventbus.Message{
		ID:         "m-2",
		RoutingKey: "order.paid",
		Headers:    map[string]string{eventbus.HeaderOriginalRouting: "order.paid"},
	}
	got := fromKafka(toKafka("inventory.order-paid.dlq", msg))
	assert.Equal(t, "order.paid", got.RoutingKey)
}

func TestMessageWithoutIDFallsBackToOffset(t *testing.T) {
	got := fromKafka(kafka.Message{Topic: "order.paid", Partition: 2, Offset: 41})
	assert.Equal(t, "order.paid-2-41", got.ID)
}
