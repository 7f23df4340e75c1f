package outbox

import (
	"time"

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// MaxAttempts bounds how often the relay tries to publish one row before
// leaving it in the failed state for an operator.
const MaxAttempts = 10

type Event struct {
	ID            int64
	MessageID     string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// FromMessage turns a bus envelope into an outbox row for aggregateType.
func FromMessage(aggregateType string, msg eventbus.Message) Event {
	return Event{
		MessageID:     msg.ID,
		AggregateType: aggregateType,
		AggregateID:   msg.AggregateID,
		Type:          msg.RoutingKey,
		Payload:       msg.Payload,
		Headers:       msg.Headers,
		CreatedAt:     msg.OccurredAt,
		Status:        StatusPending,
	}
}

// Message rebuilds the envelope, keeping the id stamped when the row was written
// so consumers can deduplicate a row relayed twice.
func (e Event) Message() eventbus.Message {
	return eventbus.Message{
		ID:          e.MessageID,
		RoutingKey:  e.Type,
		AggregateID: e.AggregateID,
		OccurredAt:  e.CreatedAt,
		Headers:     e.Headers,
		Payload:     e.Payload,
	}
}
