package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

const (
	headerEventType     = "event-type"
	headerCorrelationID = "correlation-id"
)

// DocumentEventProducer publishes DocumentEvents for the reconciliation worker.
// Messages are keyed by tenant so one tenant's events stay on one partition.
type DocumentEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewDocumentEventProducer creates the producer and ensures the topic exists
func NewDocumentEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DocumentEventProducer, error) {
	if cfg.DocumentTopic == "" {
		return nil, fmt.Errorf("kafka document topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for document event producer: %w", err)
	}
	defer conn.Close()

	err = ensureTopic(conn, cfg, cfg.DocumentTopic, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure document topic %s exists: %w", cfg.DocumentTopic, err)
	}

	// Synchronous: the outbox relay marks a message processed only after
	// the broker acknowledged it.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DocumentTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DocumentEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.DocumentTopic,
	}, nil
}

// Publish marshals value as JSON and writes it under key
func (p *DocumentEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for document event producer: %w", err)
	}
	return p.write(ctx, kafka.Message{Key: []byte(key), Value: jsonValue})
}

// PublishEvent writes a validated DocumentEvent keyed by its tenant
func (p *DocumentEventProducer) PublishEvent(ctx context.Context, event *shared.DocumentEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid document event: %w", err)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal document event: %w", err)
	}

	headers := []kafka.Header{{Key: headerEventType, Value: []byte(event.EventType)}}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: headerCorrelationID, Value: []byte(event.CorrelationID)})
	}

	return p.write(ctx, kafka.Message{
		Key:     []byte(event.TenantID),
		Value:   value,
		Headers: headers,
	})
}

func (p *DocumentEventProducer) write(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish document event",
			"topic", p.topic,
			"key", string(msg.Key),
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published document event",
		"topic", p.topic,
		"key", string(msg.Key),
	)
	return nil
}

func (p *DocumentEventProducer) Close() error {
	p.logger.Info("Closing document event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
