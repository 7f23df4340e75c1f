// Package kafkabus binds the event channel to Kafka: a routing key is a
// topic, a queue is a consumer group and every queue owns a "<queue>.dlq" topic.
package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
)

const (
	headerMessageID  = "message_id"
	headerOccurredAt = "occurred_at"
)

type Config struct {
	Brokers           []string
	Partitions        int
	ReplicationFactor int
}

type Transport struct {
	log    *slog.Logger
	cfg    Config
	writer *kafka.Writer
}

var _ eventbus.Transport = (*Transport)(nil)

func New(log *slog.Logger, cfg Config) *Transport {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 3
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	return &Transport{
		log: log,
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (t *Transport) Close() error {
	return t.writer.Close()
}

// Declare creates the topics through the cluster controller. Existing topics are left alone.
func (t *Transport) Declare(ctx context.Context, routingKeys ...string) error {
	if len(routingKeys) == 0 {
		return nil
	}
	if len(t.cfg.Brokers) == 0 {
		return errors.New("kafkabus: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", t.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafkabus: dial: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafkabus: find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafkabus: dial controller: %w", err)
	}
	defer cc.Close()

	configs := make([]kafka.TopicConfig, 0, len(routingKeys))
	for _, k := range routingKeys {
		configs = append(configs, kafka.TopicConfig{
			Topic:             k,
			NumPartitions:     t.cfg.Partitions,
			ReplicationFactor: t.cfg.ReplicationFactor,
		})
	}
	if err := cc.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafkabus: create topics: %w", err)
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, msg eventbus.Message) error {
	return t.writer.WriteMessages(ctx, toKafka(msg.RoutingKey, msg))
}

func (t *Transport) Open(ctx context.Context, queue string, routingKeys []string) (eventbus.Source, error) {
	if len(routingKeys) == 0 {
		return nil, fmt.Errorf("kafkabus: queue %s has no bindings", queue)
	}
	if err := t.Declare(ctx, append([]string{eventbus.DeadLetterQueue(queue)}, routingKeys...)...); err != nil {
		return nil, err
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        t.cfg.Brokers,
		GroupID:        queue,
		GroupTopics:    routingKeys,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		MaxWait:        500 * time.Millisecond,
	})
	return &source{t: t, queue: queue, reader: r}, nil
}

type source struct {
	t      *Transport
	queue  string
	reader *kafka.Reader
}

func (s *source) Next(ctx context.Context) (eventbus.Delivery, error) {
	km, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &delivery{s: s, km: km, msg: fromKafka(km)}, nil
}

func (s *source) Close() error {
	return s.reader.Close()
}

type delivery struct {
	s   *source
	km  kafka.Message
	msg eventbus.Message
}

func (d *delivery) Message() eventbus.Message { return d.msg }

func (d *delivery) Ack(ctx context.Context) error {
	return d.s.reader.CommitMessages(ctx, d.km)
}

// Nack copies the message to the DLQ topic and then commits it, so the group
// moves past it and it is never redelivered to the original queue.
func (d *delivery) Nack(ctx context.Context, cause error) error {
	dead := d.msg
	dead.Headers = make(map[string]string, len(d.msg.Headers)+3)
	for k, v := range d.msg.Headers {
		dead.Headers[k] = v
	}
	if cause != nil {
		dead.Headers[eventbus.HeaderDeathReason] = cause.Error()
	}
	dead.Headers[eventbus.HeaderOriginalRouting] = d.msg.RoutingKey
	dead.Headers[eventbus.HeaderQueue] = d.s.queue

	if err := d.s.t.writer.WriteMessages(ctx, toKafka(eventbus.DeadLetterQueue(d.s.queue), dead)); err != nil {
		return fmt.Errorf("kafkabus: dead-letter %s: %w", d.msg.ID, err)
	}
	d.s.t.log.WarnContext(ctx, "message dead-lettered", "queue", d.s.queue, "message_id", d.msg.ID)
	return d.s.reader.CommitMessages(ctx, d.km)
}

func toKafka(topic string, msg eventbus.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: headerMessageID, Value: []byte(msg.ID)},
		kafka.Header{Key: headerOccurredAt, Value: []byte(msg.OccurredAt.UTC().Format(time.RFC3339Nano))},
	)
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.AggregateID),
		Value:   msg.Payload,
		Headers: headers,
	}
}

func fromKafka(km kafka.Message) eventbus.Message {
	msg := eventbus.Message{
		RoutingKey:  km.Topic,
		AggregateID: string(km.Key),
		Payload:     km.Value,
		Headers:     make(map[string]string, len(km.Headers)),
		OccurredAt:  km.Time,
	}
	for _, h := range km.Headers {
		switch h.Key {
		case headerMessageID:
			msg.ID = string(h.Value)
		case headerOccurredAt:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				msg.OccurredAt = ts
			}
		default:
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	if original, ok := msg.Headers[eventbus.HeaderOriginalRouting]; ok {
		msg.RoutingKey = original
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s-%d-%d", km.Topic, km.Partition, km.Offset)
	}
	return msg
}
