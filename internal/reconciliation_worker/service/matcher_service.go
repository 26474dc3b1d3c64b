package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

const (
	defaultMaxCandidateAttempts = 3
	defaultCreatedBy            = "reconciliation-worker"
)

// MatcherService implements MatchingService against the document, bank
// transaction and link stores.
type MatcherService struct {
	documents   DocumentStore
	candidates  CandidateSource
	links       LinkStore
	logger      *slog.Logger
	maxAttempts int
	createdBy   string
}

func NewMatcherService(
	logger *slog.Logger,
	cfg *config.MatcherConfig,
	documents DocumentStore,
	candidates CandidateSource,
	links LinkStore,
) *MatcherService {
	s := &MatcherService{
		documents:   documents,
		candidates:  candidates,
		links:       links,
		logger:      logger,
		maxAttempts: defaultMaxCandidateAttempts,
		createdBy:   defaultCreatedBy,
	}
	if cfg != nil {
		if cfg.MaxCandidateAttempts > 0 {
			s.maxAttempts = cfg.MaxCandidateAttempts
		}
		if cfg.CreatedBy != "" {
			s.createdBy = cfg.CreatedBy
		}
	}
	return s
}

// AutoLink matches a single document. It is LinkBatch with a batch of one.
func (s *MatcherService) AutoLink(ctx context.Context, tenantID string, doc *document.FinancialDocument) (reconciliation.LinkResult, error) {
	results, err := s.LinkBatch(ctx, tenantID, []*document.FinancialDocument{doc})
	if err != nil {
		return reconciliation.LinkResult{}, err
	}
	return results[0], nil
}

// LinkBatch matches every document of one tenant. The linked transaction and
// linked document sets are read from the store on every call and shared by
// the whole batch.
func (s *MatcherService) LinkBatch(ctx context.Context, tenantID string, docs []*document.FinancialDocument) ([]reconciliation.LinkResult, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if len(docs) == 0 {
		return []reconciliation.LinkResult{}, nil
	}

	logger := s.logger.With("tenant_id", tenantID)

	excluded, err := s.links.LinkedTransactionIDs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked transactions: %w", err)
	}

	existing, err := s.links.ListByDocumentIDs(ctx, tenantID, lo.Map(docs, func(d *document.FinancialDocument, _ int) uuid.UUID {
		return d.ID
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing links: %w", err)
	}
	linkedDocs := lo.KeyBy(existing, func(l *reconciliation.TransactionLink) uuid.UUID {
		return l.DocumentID
	})

	// Amount lookups are shared by documents of equal value.
	byAmount := make(map[int64][]*banking.Transaction)

	results := make([]reconciliation.LinkResult, 0, len(docs))
	for _, doc := range docs {
		if doc.TenantID != tenantID {
			return nil, fmt.Errorf("document %s belongs to tenant %q: %w", doc.ID, doc.TenantID, ErrTenantMismatch)
		}

		if link, ok := linkedDocs[doc.ID]; ok {
			s.markReconciled(ctx, logger, doc)
			results = append(results, alreadyLinked(doc.ID, link))
			continue
		}

		if !matchable(doc) {
			logger.Debug("Document is not eligible for matching",
				"document_id", doc.ID.String(),
				"status", string(doc.Status),
				"is_storno", doc.IsStorno)
			results = append(results, noMatch(doc.ID))
			continue
		}

		txs, ok := byAmount[doc.Amount]
		if !ok {
			txs, err = s.candidates.ListByAbsAmount(ctx, tenantID, doc.Amount)
			if err != nil {
				return nil, fmt.Errorf("failed to load candidate transactions: %w", err)
			}
			byAmount[doc.Amount] = txs
		}

		result, err := s.linkDocument(ctx, logger, doc, txs, excluded)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *MatcherService) linkDocument(
	ctx context.Context,
	logger *slog.Logger,
	doc *document.FinancialDocument,
	txs []*banking.Transaction,
	excluded map[string]struct{},
) (reconciliation.LinkResult, error) {
	logger = logger.With("document_id", doc.ID.String())

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		best, ok := reconciliation.SelectBest(doc, txs, excluded)
		if !ok {
			break
		}

		link := reconciliation.NewLink(best.Transaction, doc, best, s.createdBy)
		err := s.links.Create(ctx, link)
		if err == nil {
			excluded[best.Transaction.ID] = struct{}{}
			s.markReconciled(ctx, logger, doc)
			logger.Info("Linked document to bank transaction",
				"transaction_id", best.Transaction.ID,
				"rule", string(best.Rule),
				"score", best.Score,
				"day_distance", best.DayDistance)
			return reconciliation.LinkResult{
				DocumentID:    doc.ID,
				Outcome:       reconciliation.OutcomeLinked,
				TransactionID: best.Transaction.ID,
				Score:         best.Score,
				Rule:          best.Rule,
			}, nil
		}

		if !errors.Is(err, reconciliation.ErrDuplicateLink{}) {
			return reconciliation.LinkResult{}, fmt.Errorf("failed to create link for document %s: %w", doc.ID, err)
		}

		// The collision is either on our document or on the transaction.
		current, getErr := s.links.GetByDocumentID(ctx, doc.TenantID, doc.ID)
		switch {
		case getErr == nil:
			logger.Info("Document was linked concurrently",
				"transaction_id", current.TransactionID)
			s.markReconciled(ctx, logger, doc)
			return alreadyLinked(doc.ID, current), nil
		case errors.Is(getErr, reconciliation.ErrLinkNotFound{}):
			logger.Info("Bank transaction was taken by another document, trying next candidate",
				"transaction_id", best.Transaction.ID,
				"attempt", attempt)
			excluded[best.Transaction.ID] = struct{}{}
		default:
			return reconciliation.LinkResult{}, fmt.Errorf("failed to read link for document %s: %w", doc.ID, getErr)
		}
	}

	logger.Debug("No bank transaction matched document")
	return noMatch(doc.ID), nil
}

// markReconciled is best effort: the sweeper picks the document up again and
// finds its link if this write is lost.
func (s *MatcherService) markReconciled(ctx context.Context, logger *slog.Logger, doc *document.FinancialDocument) {
	if err := s.documents.MarkReconciled(ctx, doc.TenantID, doc.ID); err != nil {
		logger.Warn("Failed to mark document reconciled",
			"document_id", doc.ID.String(),
			"error", err)
	}
}

func matchable(doc *document.FinancialDocument) bool {
	if doc.IsStorno || doc.Amount <= 0 {
		return false
	}
	switch doc.Status {
	case document.StatusFinalized, document.StatusPaid, document.StatusBooked:
		return true
	}
	return false
}

func noMatch(documentID uuid.UUID) reconciliation.LinkResult {
	return reconciliation.LinkResult{DocumentID: documentID, Outcome: reconciliation.OutcomeNoMatch}
}

func alreadyLinked(documentID uuid.UUID, link *reconciliation.TransactionLink) reconciliation.LinkResult {
	return reconciliation.LinkResult{
		DocumentID:    documentID,
		Outcome:       reconciliation.OutcomeAlreadyLinked,
		TransactionID: link.TransactionID,
		Score:         link.Score,
		Rule:          link.Rule,
	}
}
