package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/middleware"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/outbox"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// DocumentServiceImpl implements DocumentService. Every state change and the
// outbox message announcing it commit in one database transaction, and so
// does the number allocation of a finalization.
type DocumentServiceImpl struct {
	db        TxRunner
	docs      document.Repository
	sequences sequence.Repository
	allocator SequenceService
	outbox    outbox.Repository
	now       func() time.Time
	logger    *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	logger *slog.Logger,
	db TxRunner,
	docs document.Repository,
	sequences sequence.Repository,
	allocator SequenceService,
	outboxRepo outbox.Repository,
) *DocumentServiceImpl {
	return &DocumentServiceImpl{
		db:        db,
		docs:      docs,
		sequences: sequences,
		allocator: allocator,
		outbox:    outboxRepo,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Ingest stores a normalized draft. Drafts carry no number.
func (s *DocumentServiceImpl) Ingest(ctx context.Context, tenantID string, docType document.Type, payload document.Payload) (*document.FinancialDocument, []string, error) {
	doc, err := document.NewDraft(tenantID, docType, "")
	if err != nil {
		return nil, nil, err
	}

	warnings := document.Normalize(doc, payload)
	if warnings == nil {
		warnings = []string{}
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to store draft document",
			"tenant_id", tenantID,
			"type", string(docType),
			"error", err,
		)
		return nil, nil, err
	}

	s.logger.Info("Draft document ingested",
		"tenant_id", tenantID,
		"document_id", doc.ID.String(),
		"type", string(docType),
		"warnings", len(warnings),
	)
	return doc, warnings, nil
}

// Finalize allocates the document number and publishes DocumentFinalized.
// If anything fails the transaction rolls back and the number is not consumed.
func (s *DocumentServiceImpl) Finalize(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	var finalized *document.FinancialDocument

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		docs := s.docs.WithTx(tx)

		doc, err := docs.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if doc.Status != document.StatusDraft {
			return document.ErrInvalidTransition{DocumentID: doc.ID, From: doc.Status, To: document.StatusFinalized}
		}

		allocation, err := s.allocator.AllocateTx(ctx, s.sequences.WithTx(tx), tenantID, doc.NumberSeries())
		if err != nil {
			return err
		}

		if doc.Date == nil {
			today := truncateDay(s.now())
			doc.Date = &today
		}
		if err := doc.Finalize(allocation.Formatted); err != nil {
			return err
		}
		if err := docs.Finalize(ctx, doc); err != nil {
			return err
		}

		if err := s.enqueue(ctx, tx, shared.EventTypeDocumentFinalized, doc); err != nil {
			return err
		}

		finalized = doc
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to finalize document",
			"tenant_id", tenantID,
			"document_id", id.String(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Document finalized",
		"tenant_id", tenantID,
		"document_id", finalized.ID.String(),
		"document_number", finalized.DocumentNumber,
	)
	return finalized, nil
}

// Cancel never deletes or renumbers: the original is marked cancelled and a
// storno document from the cancellation series reverses it.
func (s *DocumentServiceImpl) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, *document.FinancialDocument, error) {
	var original, storno *document.FinancialDocument

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		docs := s.docs.WithTx(tx)

		doc, err := docs.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}

		from := doc.Status
		reversal, err := doc.Cancel()
		if err != nil {
			return err
		}
		if err := docs.UpdateStatus(ctx, doc, from); err != nil {
			return err
		}

		allocation, err := s.allocator.AllocateTx(ctx, s.sequences.WithTx(tx), tenantID, reversal.NumberSeries())
		if err != nil {
			return err
		}
		if err := reversal.Finalize(allocation.Formatted); err != nil {
			return err
		}
		if err := docs.Create(ctx, reversal); err != nil {
			return err
		}

		original, storno = doc, reversal
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to cancel document",
			"tenant_id", tenantID,
			"document_id", id.String(),
			"error", err,
		)
		return nil, nil, err
	}

	s.logger.Info("Document cancelled",
		"tenant_id", tenantID,
		"document_number", original.DocumentNumber,
		"storno_number", storno.DocumentNumber,
	)
	return original, storno, nil
}

// MarkPaid settles a finalized document and publishes DocumentPaid so the
// matcher can try again with the payment in view.
func (s *DocumentServiceImpl) MarkPaid(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return s.transition(ctx, tenantID, id, (*document.FinancialDocument).MarkPaid, shared.EventTypeDocumentPaid)
}

// MarkBooked records that bookkeeping has posted a paid document.
func (s *DocumentServiceImpl) MarkBooked(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return s.transition(ctx, tenantID, id, (*document.FinancialDocument).MarkBooked, "")
}

func (s *DocumentServiceImpl) transition(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	apply func(*document.FinancialDocument) error,
	event shared.EventType,
) (*document.FinancialDocument, error) {
	var updated *document.FinancialDocument

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		docs := s.docs.WithTx(tx)

		doc, err := docs.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		from := doc.Status
		if err := apply(doc); err != nil {
			return err
		}
		if err := docs.UpdateStatus(ctx, doc, from); err != nil {
			return err
		}
		if event != "" {
			if err := s.enqueue(ctx, tx, event, doc); err != nil {
				return err
			}
		}
		updated = doc
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update document status",
			"tenant_id", tenantID,
			"document_id", id.String(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Document status updated",
		"tenant_id", tenantID,
		"document_id", updated.ID.String(),
		"status", string(updated.Status),
	)
	return updated, nil
}

// Get returns a document of the tenant
func (s *DocumentServiceImpl) Get(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return s.docs.GetByID(ctx, tenantID, id)
}

func (s *DocumentServiceImpl) enqueue(ctx context.Context, tx pgx.Tx, eventType shared.EventType, doc *document.FinancialDocument) error {
	msg, err := outbox.NewMessage(&shared.DocumentEvent{
		EventType:     eventType,
		TenantID:      doc.TenantID,
		DocumentID:    doc.ID,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}
	return s.outbox.WithTx(tx).Create(ctx, msg)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
