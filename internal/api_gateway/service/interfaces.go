package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

var (
	ErrMissingTenant    = errors.New("tenant id is required")
	ErrExportInProgress = errors.New("an export for this tenant and range is already running")
	ErrNoTransactions   = errors.New("no transactions supplied")
)

// Ensure implementations satisfy the interfaces (compile-time check)
var (
	_ SequenceService        = (*SequenceServiceImpl)(nil)
	_ DocumentService        = (*DocumentServiceImpl)(nil)
	_ BankTransactionService = (*BankTransactionServiceImpl)(nil)
	_ ExportService          = (*ExportServiceImpl)(nil)
	_ LinkService            = (*LinkServiceImpl)(nil)
)

// TxRunner opens a database transaction around fn
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// SequenceService defines the interface for gap-free document numbering
type SequenceService interface {
	// Allocate issues the next number for the tenant's series, creating the
	// series from its defaults on first use.
	// Returns an error matching sequence.ErrSequenceUnavailable once retries are exhausted
	Allocate(ctx context.Context, tenantID string, t sequence.Type) (*Allocation, error)

	// AllocateTx is Allocate against a repository bound to the caller's transaction
	AllocateTx(ctx context.Context, repo sequence.Repository, tenantID string, t sequence.Type) (*Allocation, error)

	// Resync raises the counter above the highest issued number and reports gaps
	Resync(ctx context.Context, tenantID string, t sequence.Type) (*ResyncResult, error)

	BootstrapDefaults(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error)
	List(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error)
}

// DocumentService defines the lifecycle operations on financial documents
type DocumentService interface {
	// Ingest normalizes a loosely-typed payload into a draft and stores it.
	// Returns the draft and the normalization warnings
	Ingest(ctx context.Context, tenantID string, docType document.Type, payload document.Payload) (*document.FinancialDocument, []string, error)

	// Finalize numbers a draft and announces it for reconciliation
	Finalize(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)

	// Cancel retires a finalized or paid document and issues its storno
	// Returns the cancelled original and the numbered storno document
	Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, *document.FinancialDocument, error)

	MarkPaid(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)
	MarkBooked(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)
}

// BankTransactionService imports bank movements from a data provider
type BankTransactionService interface {
	Import(ctx context.Context, tenantID string, txs []*banking.Transaction) (*ImportResult, error)
	Get(ctx context.Context, tenantID, id string) (*banking.Transaction, error)
}

// ExportService produces accounting export files and keeps their audit trail
type ExportService interface {
	// Export runs one export. A structurally invalid request returns an
	// error matching export.ErrInvalidAccountingSettings and no files
	Export(ctx context.Context, req *ExportRequest) (*ExportOutcome, error)

	// History lists past exports, newest first
	History(ctx context.Context, tenantID string, limit int) (*ExportHistory, error)
}

// ExportLocker guards a tenant's date range against concurrent exports
type ExportLocker interface {
	Acquire(ctx context.Context, tenantID string, r export.DateRange) (release func(context.Context) error, acquired bool, err error)
}

// ExportSink stores encoded export files and returns their location
type ExportSink interface {
	Put(ctx context.Context, tenantID, filename string, content []byte, contentType string) (string, error)
}

// LinkService exposes the reconciliation links of documents
type LinkService interface {
	GetByDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error)
	UpdateBookingStatus(ctx context.Context, tenantID string, documentID uuid.UUID, status reconciliation.BookingStatus) (*reconciliation.TransactionLink, error)
}

// ImportResult summarizes a bank import
type ImportResult struct {
	Received int `json:"received"`
	Imported int `json:"imported"`
	Existing int `json:"existing"`
}

// ExportRequest is one export invocation
type ExportRequest struct {
	TenantID      string
	Range         export.DateRange
	Type          export.Type
	Settings      export.AccountingSettings
	IncludeUnpaid bool
	Encoding      string // Overrides the configured charset when set
	RequestedBy   string
	CorrelationID string
}

// ExportOutcome pairs the encoder result with the charset-encoded files and
// the stored audit record
type ExportOutcome struct {
	Result     *export.Result
	Record     *export.ExportRecord
	Encoding   string
	Contents   map[string][]byte // Keyed by file name
	Locations  []string
	ExportedAt time.Time
}

// ExportHistory is the audit trail plus the settings used most recently, so
// that a client can prefill the next export
type ExportHistory struct {
	Records        []*export.ExportRecord     `json:"records"`
	LatestSettings *export.AccountingSettings `json:"latest_settings,omitempty"`
}
