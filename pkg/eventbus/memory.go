package eventbus

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// DeadLetter is a message rejected by a consumer of Queue.
type DeadLetter struct {
	Queue   string
	Reason  string
	Message Message
}

// MemoryTransport is an in-process Transport with broker semantics: queues
// outlive their consumers, routing is by exact key, rejected messages go to
// the queue's DLQ and are never redelivered.
type MemoryTransport struct {
	mu        sync.Mutex
	declared  map[string]bool
	bindings  map[string][]string
	queues    map[string]*memQueue
	dead      map[string][]DeadLetter
	published []Message
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		declared: map[string]bool{},
		bindings: map[string][]string{},
		queues:   map[string]*memQueue{},
		dead:     map[string][]DeadLetter{},
	}
}

func (t *MemoryTransport) Declare(_ context.Context, routingKeys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range routingKeys {
		t.declared[k] = true
	}
	return nil
}

func (t *MemoryTransport) Publish(_ context.Context, msg Message) error {
	t.mu.Lock()
	msg.Headers = maps.Clone(msg.Headers)
	t.published = append(t.published, msg)
	targets := make([]*memQueue, 0, len(t.bindings[msg.RoutingKey]))
	for _, q := range t.bindings[msg.RoutingKey] {
		targets = append(targets, t.queues[q])
	}
	t.mu.Unlock()

	for _, q := range targets {
		q.push(msg)
	}
	return nil
}

func (t *MemoryTransport) Open(_ context.Context, queue string, routingKeys []string) (Source, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[queue]
	if !ok {
		q = &memQueue{signal: make(chan struct{}, 1)}
		t.queues[queue] = q
	}
	for _, k := range routingKeys {
		t.declared[k] = true
		if !slices.Contains(t.bindings[k], queue) {
			t.bindings[k] = append(t.bindings[k], queue)
		}
	}
	return &memSource{t: t, queue: queue, q: q}, nil
}

// Published returns every message published under routingKey, bound or not.
func (t *MemoryTransport) Published(routingKey string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, m := range t.published {
		if m.RoutingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

func (t *MemoryTransport) DeadLetters(queue string) []DeadLetter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.dead[queue])
}

// Pending returns the number of undelivered messages in queue.
func (t *MemoryTransport) Pending(queue string) int {
	t.mu.Lock()
	q, ok := t.queues[queue]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

func (t *MemoryTransport) deadLetter(queue string, msg Message, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg.Headers = maps.Clone(msg.Headers)
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	msg.Headers[HeaderDeathReason] = reason
	msg.Headers[HeaderOriginalRouting] = msg.RoutingKey
	msg.Headers[HeaderQueue] = queue
	t.dead[queue] = append(t.dead[queue], DeadLetter{Queue: queue, Reason: reason, Message: msg})
}

type memQueue struct {
	mu     sync.Mutex
	items  []Message
	signal chan struct{}
}

func (q *memQueue) push(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *memQueue) pop(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type memSource struct {
	t     *MemoryTransport
	queue string
	q     *memQueue
}

func (s *memSource) Next(ctx context.Context) (Delivery, error) {
	msg, err := s.q.pop(ctx)
	if err != nil {
		return nil, err
	}
	return &memDelivery{s: s, msg: msg}, nil
}

func (s *memSource) Close() error { return nil }

type memDelivery struct {
	s   *memSource
	msg Message
}

func (d *memDelivery) Message() Message { return d.msg }

func (d *memDelivery) Ack(context.Context) error { return nil }

func (d *memDelivery) Nack(_ context.Context, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	d.s.t.deadLetter(d.s.queue, d.msg, reason)
	return nil
}
