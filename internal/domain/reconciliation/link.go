package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
)

// BookingStatus is the only mutable field of a link
type BookingStatus string

const (
	BookingStatusOpen   BookingStatus = "open"
	BookingStatusBooked BookingStatus = "booked"
)

var ErrInvalidBookingStatus = errors.New("invalid booking status")

// ParseBookingStatus validates a booking status string
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(s) {
	case BookingStatusOpen, BookingStatusBooked:
		return BookingStatus(s), nil
	}
	return "", ErrInvalidBookingStatus
}

// TransactionSnapshot freezes the bank side at link time
type TransactionSnapshot struct {
	AccountID        string    `json:"account_id" bson:"account_id"`
	CounterpartyName string    `json:"counterparty_name" bson:"counterparty_name"`
	Reference        string    `json:"reference" bson:"reference"`
	BookingDate      time.Time `json:"booking_date" bson:"booking_date"`
	Amount           int64     `json:"amount" bson:"amount"`
	Currency         string    `json:"currency" bson:"currency"`
}

// DocumentSnapshot freezes the document side at link time
type DocumentSnapshot struct {
	Type             document.Type `json:"type" bson:"type"`
	DocumentNumber   string        `json:"document_number" bson:"document_number"`
	CounterpartyName string        `json:"counterparty_name" bson:"counterparty_name"`
	Amount           int64         `json:"amount" bson:"amount"`
	Date             *time.Time    `json:"date,omitempty" bson:"date,omitempty"`
	Currency         string        `json:"currency" bson:"currency"`
}

// TransactionLink joins one bank transaction to one document. Its ID is
// "{transactionId}_{documentId}", which makes concurrent creation of the same
// link collide in the store.
type TransactionLink struct {
	ID            string              `json:"id" bson:"_id"`
	TenantID      string              `json:"tenant_id" bson:"tenant_id"`
	TransactionID string              `json:"transaction_id" bson:"transaction_id"`
	DocumentID    uuid.UUID           `json:"document_id" bson:"document_id"`
	BookingStatus BookingStatus       `json:"booking_status" bson:"booking_status"`
	Rule          Rule                `json:"rule" bson:"rule"`
	Score         int                 `json:"score" bson:"score"`
	LinkDate      time.Time           `json:"link_date" bson:"link_date"`
	CreatedBy     string              `json:"created_by" bson:"created_by"`
	Transaction   TransactionSnapshot `json:"transaction" bson:"transaction"`
	Document      DocumentSnapshot    `json:"document" bson:"document"`
}

// LinkID builds the compound identity of a link
func LinkID(transactionID string, documentID uuid.UUID) string {
	return transactionID + "_" + documentID.String()
}

// NewLink snapshots both sides of a match
func NewLink(tx *banking.Transaction, doc *document.FinancialDocument, c Candidate, createdBy string) *TransactionLink {
	return &TransactionLink{
		ID:            LinkID(tx.ID, doc.ID),
		TenantID:      doc.TenantID,
		TransactionID: tx.ID,
		DocumentID:    doc.ID,
		BookingStatus: BookingStatusOpen,
		Rule:          c.Rule,
		Score:         c.Score,
		LinkDate:      time.Now().UTC(),
		CreatedBy:     createdBy,
		Transaction: TransactionSnapshot{
			AccountID:        tx.AccountID,
			CounterpartyName: tx.CounterpartyName,
			Reference:        tx.Reference,
			BookingDate:      tx.BookingDate,
			Amount:           tx.Amount,
			Currency:         tx.Currency,
		},
		Document: DocumentSnapshot{
			Type:             doc.Type,
			DocumentNumber:   doc.DocumentNumber,
			CounterpartyName: doc.CounterpartyName,
			Amount:           doc.Amount,
			Date:             doc.Date,
			Currency:         doc.Currency,
		},
	}
}

// Outcome is the terminal state of one autoLink run
type Outcome string

const (
	OutcomeLinked        Outcome = "LINKED"
	OutcomeNoMatch       Outcome = "NO_MATCH"
	OutcomeAlreadyLinked Outcome = "ALREADY_LINKED"
)

// LinkResult reports what autoLink did for one document. NoMatch and
// AlreadyLinked are normal outcomes, not errors.
type LinkResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	Outcome       Outcome   `json:"outcome"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Score         int       `json:"score,omitempty"`
	Rule          Rule      `json:"rule,omitempty"`
}

// Repository manages transaction link persistence
type Repository interface {
	// Create inserts link only if no link with the same ID, transaction or
	// document exists. Collisions return ErrDuplicateLink.
	Create(ctx context.Context, link *TransactionLink) error
	GetByDocumentID(ctx context.Context, tenantID string, documentID uuid.UUID) (*TransactionLink, error)
	ListByDocumentIDs(ctx context.Context, tenantID string, documentIDs []uuid.UUID) ([]*TransactionLink, error)

	// LinkedTransactionIDs returns every transaction already linked for the tenant.
	LinkedTransactionIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
	UpdateBookingStatus(ctx context.Context, tenantID, linkID string, status BookingStatus) error
}

// ErrDuplicateLink indicates that the transaction or document is already linked
type ErrDuplicateLink struct {
	LinkID string
}

func (e ErrDuplicateLink) Error() string {
	return "duplicate transaction link: " + e.LinkID
}

// Is implements the errors.Is interface for ErrDuplicateLink
func (e ErrDuplicateLink) Is(target error) bool {
	t, ok := target.(ErrDuplicateLink)
	if !ok {
		return false
	}
	return t.LinkID == "" || t.LinkID == e.LinkID
}

// ErrLinkNotFound indicates missing link
type ErrLinkNotFound struct {
	LinkID string
}

func (e ErrLinkNotFound) Error() string {
	return "transaction link not found: " + e.LinkID
}

// Is implements the errors.Is interface for ErrLinkNotFound
func (e ErrLinkNotFound) Is(target error) bool {
	t, ok := target.(ErrLinkNotFound)
	if !ok {
		return false
	}
	return t.LinkID == "" || t.LinkID == e.LinkID
}
