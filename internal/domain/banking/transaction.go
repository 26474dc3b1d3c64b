package banking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// Common errors
var (
	ErrMissingID          = errors.New("transaction id cannot be empty")
	ErrMissingTenant      = errors.New("tenant id cannot be empty")
	ErrMissingBookingDate = errors.New("booking date is required")
	ErrZeroAmount         = errors.New("amount cannot be zero")
	ErrInvalidCurrency    = errors.New("currency must be a 3-letter code")
)

// Transaction is an externally sourced bank movement. It is never modified
// after import.
type Transaction struct {
	ID               string    `json:"id"` // Identifier assigned by the bank-data provider
	TenantID         string    `json:"tenant_id"`
	AccountID        string    `json:"account_id"`
	CounterpartyName string    `json:"counterparty_name"`
	Reference        string    `json:"reference"`
	BookingDate      time.Time `json:"booking_date"`
	Amount           int64     `json:"amount"` // Signed cents; negative is outgoing
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the fields the matcher relies on
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrMissingID
	}
	if t.TenantID == "" {
		return ErrMissingTenant
	}
	if t.BookingDate.IsZero() {
		return ErrMissingBookingDate
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if !shared.IsCurrencyCode(t.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// IsOutgoing reports whether money left the account
func (t *Transaction) IsOutgoing() bool {
	return t.Amount < 0
}

// AbsAmount returns the unsigned amount in cents
func (t *Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// Repository manages bank transaction persistence
type Repository interface {
	// Import stores transactions that are not yet known and returns how many
	// were new. Existing rows are left untouched.
	Import(ctx context.Context, txs []*Transaction) (int, error)
	GetByID(ctx context.Context, tenantID, id string) (*Transaction, error)

	// ListByAbsAmount returns transactions whose absolute amount equals cents.
	ListByAbsAmount(ctx context.Context, tenantID string, cents int64) ([]*Transaction, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates missing bank transaction
type ErrTransactionNotFound struct {
	TransactionID string
}

func (e ErrTransactionNotFound) Error() string {
	return "bank transaction not found: " + e.TransactionID
}

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	return t.TransactionID == "" || t.TransactionID == e.TransactionID
}
