package outbox_relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledger-integrity-pipeline/internal/domain/outbox"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
	"github.com/ledger-integrity-pipeline/internal/platform/messaging/producers"
)

// Relay moves one outbox message to the broker
type Relay interface {
	Relay(ctx context.Context, message *outbox.Message) error
}

// EventRelay publishes the DocumentEvent stored in a message and marks the
// message PROCESSED. Publishing is at-least-once: if the status update fails
// the event goes out again on the next tick, and the matcher tolerates that.
type EventRelay struct {
	outboxRepo outbox.Repository
	publisher  producers.EventPublisher
	logger     *slog.Logger
}

// NewEventRelay creates a new relay
func NewEventRelay(outboxRepo outbox.Repository, publisher producers.EventPublisher, logger *slog.Logger) *EventRelay {
	return &EventRelay{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		logger:     logger,
	}
}

// Relay publishes message. A payload that cannot be decoded is parked
// immediately; retrying it would never succeed.
func (r *EventRelay) Relay(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		r.logger.Error("Failed to decode document event from outbox payload",
			"outbox_id", message.ID, "error", err,
		)
		if updateErr := r.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			r.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after decode error",
				"outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	logger := r.logger
	if event.CorrelationID != "" {
		logger = r.logger.With("correlation_id", event.CorrelationID)
	}

	if err := r.publisher.PublishEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}

	if err := r.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "event_id", event.EventID.String(), "error", err,
		)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", event.EventID, message.ID, err)
	}

	logger.Info("Document event published",
		"outbox_id", message.ID,
		"event_id", event.EventID.String(),
		"event_type", string(event.EventType),
		"document_id", event.DocumentID.String(),
	)
	return nil
}
