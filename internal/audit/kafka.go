package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEmitter produces audit events to a Kafka topic with synchronous
// writes for reliability.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger zerolog.Logger
	topic  string
}

// KafkaConfig configures the Kafka audit emitter.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaEmitter creates a Kafka-backed audit emitter.
func NewKafkaEmitter(cfg KafkaConfig, logger zerolog.Logger) *KafkaEmitter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}

	return &KafkaEmitter{
		writer: writer,
		logger: logger.With().Str("component", "audit-kafka").Logger(),
		topic:  cfg.Topic,
	}
}

// Emit serializes and publishes the event, keyed by event ID.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: serialize event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.EventID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "subject", Value: []byte(event.Subject)},
		},
		Time: event.CreatedAt,
	}

	if err := e.writer.WriteMessages(ctx, message); err != nil {
		e.logger.Error().
			Err(err).
			Str("event_id", event.EventID.String()).
			Str("action", event.Action).
			Msg("failed to publish audit event")
		return fmt.Errorf("audit: publish event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}

// NewEmitter returns a Kafka emitter when brokers are configured and a
// logger emitter otherwise.
func NewEmitter(brokers, topic, clientID string, logger zerolog.Logger) Emitter {
	if strings.TrimSpace(brokers) == "" {
		return NewLoggerEmitter(logger)
	}
	return NewKafkaEmitter(KafkaConfig{
		Brokers:  splitBrokers(brokers),
		Topic:    topic,
		ClientID: clientID,
	}, logger)
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
