package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/outbox"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// fakeTxRunner runs fn without a real transaction. When seqs is set it
// snapshots the sequence store and restores it if fn fails, which is what a
// Postgres rollback does to a counter incremented inside the transaction.
type fakeTxRunner struct {
	seqs  *memorySequenceRepo
	calls int
}

func (f *fakeTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	var snapshot map[seqKey]sequence.NumberSequence
	if f.seqs != nil {
		f.seqs.mu.Lock()
		snapshot = make(map[seqKey]sequence.NumberSequence, len(f.seqs.rows))
		for k, v := range f.seqs.rows {
			snapshot[k] = v
		}
		f.seqs.mu.Unlock()
	}

	err := fn(nil)
	if err != nil && f.seqs != nil {
		f.seqs.mu.Lock()
		f.seqs.rows = snapshot
		f.seqs.mu.Unlock()
	}
	return err
}

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *document.FinancialDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.FinancialDocument), args.Error(1)
}

func (m *MockDocumentRepository) Finalize(ctx context.Context, doc *document.FinancialDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, doc *document.FinancialDocument, from document.Status) error {
	args := m.Called(ctx, doc, from)
	return args.Error(0)
}

func (m *MockDocumentRepository) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]*document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.FinancialDocument), args.Error(1)
}

func (m *MockDocumentRepository) ListUnreconciled(ctx context.Context, tenantID string, since time.Time, after *document.Cursor, limit int) ([]*document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, since, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.FinancialDocument), args.Error(1)
}

func (m *MockDocumentRepository) MarkReconciled(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) ListIssuedNumbers(ctx context.Context, tenantID string, t sequence.Type) ([]string, error) {
	args := m.Called(ctx, tenantID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentRepository) WithTx(pgx.Tx) document.Repository {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(pgx.Tx) outbox.Repository {
	return m
}

type MockBankTransactionRepository struct {
	mock.Mock
}

func (m *MockBankTransactionRepository) Import(ctx context.Context, txs []*banking.Transaction) (int, error) {
	args := m.Called(ctx, txs)
	return args.Int(0), args.Error(1)
}

func (m *MockBankTransactionRepository) GetByID(ctx context.Context, tenantID, id string) (*banking.Transaction, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*banking.Transaction), args.Error(1)
}

func (m *MockBankTransactionRepository) ListByAbsAmount(ctx context.Context, tenantID string, cents int64) ([]*banking.Transaction, error) {
	args := m.Called(ctx, tenantID, cents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*banking.Transaction), args.Error(1)
}

func (m *MockBankTransactionRepository) WithTx(pgx.Tx) banking.Repository {
	return m
}

type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *reconciliation.TransactionLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkRepository) GetByDocumentID(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.TransactionLink), args.Error(1)
}

func (m *MockLinkRepository) ListByDocumentIDs(ctx context.Context, tenantID string, documentIDs []uuid.UUID) ([]*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.TransactionLink), args.Error(1)
}

func (m *MockLinkRepository) LinkedTransactionIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockLinkRepository) UpdateBookingStatus(ctx context.Context, tenantID, linkID string, status reconciliation.BookingStatus) error {
	args := m.Called(ctx, tenantID, linkID, status)
	return args.Error(0)
}

type MockExportRecordRepository struct {
	mock.Mock
}

func (m *MockExportRecordRepository) Append(ctx context.Context, rec *export.ExportRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockExportRecordRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*export.ExportRecord, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*export.ExportRecord), args.Error(1)
}
