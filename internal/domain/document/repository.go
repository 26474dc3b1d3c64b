package document

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

// Repository defines financial document persistence operations
type Repository interface {
	Create(ctx context.Context, doc *FinancialDocument) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*FinancialDocument, error)

	// Finalize persists a draft→finalized transition. It only succeeds while
	// the stored row is still an unnumbered draft.
	Finalize(ctx context.Context, doc *FinancialDocument) error

	// UpdateStatus uses optimistic locking on version
	UpdateStatus(ctx context.Context, doc *FinancialDocument, from Status) error

	ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]*FinancialDocument, error)

	// ListUnreconciled returns finalized, paid or booked bookable documents
	// dated on or after since that have not been reconciled yet, in
	// (date, id) order. A non-nil after resumes behind that document. An
	// empty tenantID lists across all tenants.
	ListUnreconciled(ctx context.Context, tenantID string, since time.Time, after *Cursor, limit int) ([]*FinancialDocument, error)
	MarkReconciled(ctx context.Context, tenantID string, id uuid.UUID) error

	sequence.IssuedNumberLister

	WithTx(tx pgx.Tx) Repository
}

// Cursor is a keyset position in (document date, id) order
type Cursor struct {
	Date time.Time
	ID   uuid.UUID
}

// CursorAfter returns the position just behind doc
func CursorAfter(doc *FinancialDocument) *Cursor {
	c := &Cursor{ID: doc.ID}
	if doc.Date != nil {
		c.Date = *doc.Date
	}
	return c
}

// ErrDocumentNotFound indicates missing document
type ErrDocumentNotFound struct {
	DocumentID uuid.UUID
}

func (e ErrDocumentNotFound) Error() string {
	return "document not found: " + e.DocumentID.String()
}

// Is implements the errors.Is interface for ErrDocumentNotFound
func (e ErrDocumentNotFound) Is(target error) bool {
	t, ok := target.(ErrDocumentNotFound)
	if !ok {
		return false
	}
	if t.DocumentID == uuid.Nil {
		return true
	}
	return e.DocumentID == t.DocumentID
}

// ErrInvalidTransition indicates a lifecycle move the document does not allow
type ErrInvalidTransition struct {
	DocumentID uuid.UUID
	From       Status
	To         Status
}

func (e ErrInvalidTransition) Error() string {
	return "invalid transition for document " + e.DocumentID.String() + ": " + string(e.From) + " -> " + string(e.To)
}

// Is implements the errors.Is interface for ErrInvalidTransition
func (e ErrInvalidTransition) Is(target error) bool {
	_, ok := target.(ErrInvalidTransition)
	return ok
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	DocumentID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for document: " + e.DocumentID.String()
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	_, ok := target.(ErrConcurrentModification)
	return ok
}
