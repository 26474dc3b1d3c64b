package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
	"github.com/ledger-integrity-pipeline/internal/platform/messaging/producers"
	"github.com/ledger-integrity-pipeline/internal/reconciliation_worker/service"
)

// DocumentEventHandler turns DocumentEvents from Kafka into matcher runs
type DocumentEventHandler struct {
	matchingService service.MatchingService
	documents       service.DocumentStore
	producer        producers.DeadLetterPublisher
	logger          *slog.Logger
	importBatchSize int
	importLookback  time.Duration
	now             func() time.Time
}

// NewDocumentEventHandler creates a new handler. An import event re-runs the
// matcher over the tenant's unreconciled documents within the sweep window.
func NewDocumentEventHandler(
	logger *slog.Logger,
	cfg *config.SweeperConfig,
	matchingService service.MatchingService,
	documents service.DocumentStore,
	producer producers.DeadLetterPublisher,
) *DocumentEventHandler {
	return &DocumentEventHandler{
		matchingService: matchingService,
		documents:       documents,
		producer:        producer,
		logger:          logger,
		importBatchSize: cfg.BatchSize,
		importLookback:  cfg.Lookback,
		now:             time.Now,
	}
}

// HandleMessage processes Kafka messages. Returning nil commits the offset.
func (h *DocumentEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.DocumentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return h.deadLetter(ctx, key, value, "Failed to unmarshal document event from Kafka message", err)
	}
	if err := event.Validate(); err != nil {
		return h.deadLetter(ctx, key, value, "Invalid document event", err)
	}

	logger := h.logger.With("tenant_id", event.TenantID, "event_type", string(event.EventType))
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Received document event", "event_id", event.EventID.String())

	switch event.EventType {
	case shared.EventTypeDocumentFinalized, shared.EventTypeDocumentPaid:
		doc, err := h.documents.GetByID(ctx, event.TenantID, event.DocumentID)
		if err != nil {
			if errors.Is(err, document.ErrDocumentNotFound{}) {
				return h.deadLetter(ctx, key, value, "Document referenced by event does not exist", err)
			}
			logger.Error("Failed to load document", "document_id", event.DocumentID.String(), "error", err)
			return fmt.Errorf("loading document %s failed: %w", event.DocumentID, err)
		}

		result, err := h.matchingService.AutoLink(ctx, event.TenantID, doc)
		if err != nil {
			logger.Error("Failed to match document", "document_id", event.DocumentID.String(), "error", err)
			return fmt.Errorf("matching document %s failed: %w", event.DocumentID, err)
		}
		logger.Info("Processed document event",
			"document_id", event.DocumentID.String(),
			"outcome", string(result.Outcome),
			"transaction_id", result.TransactionID,
		)

	case shared.EventTypeBankTransactionsImported:
		since := h.now().UTC().Add(-h.importLookback)
		docs, err := h.documents.ListUnreconciled(ctx, event.TenantID, since, nil, h.importBatchSize)
		if err != nil {
			logger.Error("Failed to list unreconciled documents", "error", err)
			return fmt.Errorf("listing unreconciled documents failed: %w", err)
		}
		if len(docs) == 0 {
			logger.Info("No unreconciled documents for imported transactions", "imported_count", event.ImportedCount)
			return nil
		}

		results, err := h.matchingService.LinkBatch(ctx, event.TenantID, docs)
		if err != nil {
			logger.Error("Failed to match documents after import", "error", err)
			return fmt.Errorf("matching documents after import failed: %w", err)
		}
		linked := lo.CountBy(results, func(r reconciliation.LinkResult) bool {
			return r.Outcome == reconciliation.OutcomeLinked
		})
		logger.Info("Processed bank transaction import event",
			"imported_count", event.ImportedCount,
			"documents", len(docs),
			"linked", linked,
		)
	}

	return nil
}

func (h *DocumentEventHandler) deadLetter(ctx context.Context, key, value []byte, msg string, cause error) error {
	h.logger.Error(msg, "error", cause, "message_key", string(key))

	if h.producer != nil {
		reason := fmt.Sprintf("%s: %s", msg, cause.Error())
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", msg, cause)
}
