package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockDocumentStore mocks DocumentStore
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.FinancialDocument), args.Error(1)
}

func (m *MockDocumentStore) ListUnreconciled(ctx context.Context, tenantID string, since time.Time, after *document.Cursor, limit int) ([]*document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, since, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.FinancialDocument), args.Error(1)
}

func (m *MockDocumentStore) MarkReconciled(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockCandidateSource mocks CandidateSource
type MockCandidateSource struct {
	mock.Mock
}

func (m *MockCandidateSource) ListByAbsAmount(ctx context.Context, tenantID string, cents int64) ([]*banking.Transaction, error) {
	args := m.Called(ctx, tenantID, cents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*banking.Transaction), args.Error(1)
}

// MockLinkStore mocks LinkStore
type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) Create(ctx context.Context, link *reconciliation.TransactionLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkStore) GetByDocumentID(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.TransactionLink), args.Error(1)
}

func (m *MockLinkStore) ListByDocumentIDs(ctx context.Context, tenantID string, documentIDs []uuid.UUID) ([]*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.TransactionLink), args.Error(1)
}

func (m *MockLinkStore) LinkedTransactionIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

// MockMatchingService mocks MatchingService
type MockMatchingService struct {
	mock.Mock
}

func (m *MockMatchingService) AutoLink(ctx context.Context, tenantID string, doc *document.FinancialDocument) (reconciliation.LinkResult, error) {
	args := m.Called(ctx, tenantID, doc)
	return args.Get(0).(reconciliation.LinkResult), args.Error(1)
}

func (m *MockMatchingService) LinkBatch(ctx context.Context, tenantID string, docs []*document.FinancialDocument) ([]reconciliation.LinkResult, error) {
	args := m.Called(ctx, tenantID, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.LinkResult), args.Error(1)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finalizedDoc(tenantID, number, counterparty string, amount int64, on time.Time) *document.FinancialDocument {
	return &document.FinancialDocument{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Type:             document.TypeInvoice,
		DocumentNumber:   number,
		CounterpartyName: counterparty,
		Amount:           amount,
		Date:             &on,
		Status:           document.StatusFinalized,
		Currency:         "EUR",
	}
}

func bankTx(tenantID, id, counterparty, reference string, amount int64, on time.Time) *banking.Transaction {
	return &banking.Transaction{
		ID:               id,
		TenantID:         tenantID,
		AccountID:        "DE89370400440532013000",
		CounterpartyName: counterparty,
		Reference:        reference,
		BookingDate:      on,
		Amount:           amount,
		Currency:         "EUR",
	}
}
