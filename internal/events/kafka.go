package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic as JSON. Messages are keyed
// by security id and routed with a hash balancer, so one security's events
// land on one partition in sequence order.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
// Each Publish call waits at most timeout for the brokers to acknowledge.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, timeout, logger)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		timeout: timeout,
		logger:  logger,
	}
}

// Publish encodes and writes the events. Failures are logged and dropped.
func (p *KafkaPublisher) Publish(evts ...Event) {
	if len(evts) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		value, err := json.Marshal(e)
		if err != nil {
			p.logger.Error("encode event",
				slog.Uint64("seq", e.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.SecurityID),
			Value: value,
			Time:  e.OccurredAt,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish events",
			slog.Int("count", len(msgs)),
			slog.Uint64("first_seq", evts[0].Seq),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
