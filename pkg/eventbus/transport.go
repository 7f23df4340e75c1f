package eventbus

import "context"

// Transport is the broker binding. Implementations must keep messages durable
// and must never redeliver a negatively acknowledged message to its queue.
type Transport interface {
	// Declare makes the routing keys durable before anyone publishes to them.
	Declare(ctx context.Context, routingKeys ...string) error
	Publish(ctx context.Context, msg Message) error
	// Open binds a durable queue to routingKeys, together with its DLQ.
	Open(ctx context.Context, queue string, routingKeys []string) (Source, error)
}

type Source interface {
	// Next blocks until a message is available or ctx is done.
	Next(ctx context.Context) (Delivery, error)
	Close() error
}

type Delivery interface {
	Message() Message
	Ack(ctx context.Context) error
	// Nack rejects the message without requeue; it moves to the queue's DLQ.
	Nack(ctx context.Context, cause error) error
}

// DeadLetterQueue names the DLQ paired with queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}
