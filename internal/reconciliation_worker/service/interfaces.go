package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// MatchingService links documents to the bank transactions that settle them.
type MatchingService interface {
	AutoLink(ctx context.Context, tenantID string, doc *document.FinancialDocument) (reconciliation.LinkResult, error)
	LinkBatch(ctx context.Context, tenantID string, docs []*document.FinancialDocument) ([]reconciliation.LinkResult, error)
}

// DocumentStore is the slice of the document repository the worker needs
type DocumentStore interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)
	ListUnreconciled(ctx context.Context, tenantID string, since time.Time, after *document.Cursor, limit int) ([]*document.FinancialDocument, error)
	MarkReconciled(ctx context.Context, tenantID string, id uuid.UUID) error
}

// CandidateSource loads bank transactions that could settle a document
type CandidateSource interface {
	ListByAbsAmount(ctx context.Context, tenantID string, cents int64) ([]*banking.Transaction, error)
}

// LinkStore persists transaction links
type LinkStore interface {
	Create(ctx context.Context, link *reconciliation.TransactionLink) error
	GetByDocumentID(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error)
	ListByDocumentIDs(ctx context.Context, tenantID string, documentIDs []uuid.UUID) ([]*reconciliation.TransactionLink, error)
	LinkedTransactionIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
}
