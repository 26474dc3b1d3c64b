package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository manages number sequence persistence. Every mutation is a single
// conditional statement so that concurrent allocators never observe a
// half-applied increment.
type Repository interface {
	Get(ctx context.Context, tenantID string, t Type) (*NumberSequence, error)
	List(ctx context.Context, tenantID string) ([]*NumberSequence, error)

	// CreateIfAbsent inserts seq unless a row for its key exists.
	// It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, seq *NumberSequence) (bool, error)

	// CompareAndIncrement advances next_number by one only if it still equals
	// expected. Returns ErrConcurrentModification when another writer won.
	CompareAndIncrement(ctx context.Context, tenantID string, t Type, expected int64) error

	// AdvanceTo raises next_number to next if it is currently lower.
	// It reports whether the counter moved.
	AdvanceTo(ctx context.Context, tenantID string, t Type, next int64) (bool, error)

	WithTx(tx pgx.Tx) Repository
}

// IssuedNumberLister lists every formatted number already issued for a
// series, straight from the document store.
type IssuedNumberLister interface {
	ListIssuedNumbers(ctx context.Context, tenantID string, t Type) ([]string, error)
}

var (
	ErrSequenceUnavailable = errors.New("sequence unavailable")
	ErrSequenceFormatDrift = errors.New("sequence format drift")
)

// ErrConcurrentModification indicates a lost compare-and-swap race
type ErrConcurrentModification struct {
	TenantID string
	Type     Type
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for sequence: " + e.TenantID + "/" + string(e.Type)
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	if t.TenantID == "" {
		return true
	}
	return e.TenantID == t.TenantID && e.Type == t.Type
}

// ErrSequenceNotFound indicates the sequence row does not exist yet
type ErrSequenceNotFound struct {
	TenantID string
	Type     Type
}

func (e ErrSequenceNotFound) Error() string {
	return "sequence not found: " + e.TenantID + "/" + string(e.Type)
}

// Is implements the errors.Is interface for ErrSequenceNotFound
func (e ErrSequenceNotFound) Is(target error) bool {
	t, ok := target.(ErrSequenceNotFound)
	if !ok {
		return false
	}
	if t.TenantID == "" {
		return true
	}
	return e.TenantID == t.TenantID && e.Type == t.Type
}

// UnavailableError is returned when allocation keeps failing after all
// retries. No number was issued.
type UnavailableError struct {
	TenantID string
	Type     Type
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sequence %s/%s unavailable after %d attempts: %v", e.TenantID, e.Type, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrSequenceUnavailable
}

// FormatDriftError marks a stored number that does not match the sequence format.
type FormatDriftError struct {
	Value  string
	Format string
	Err    error
}

func (e *FormatDriftError) Error() string {
	return fmt.Sprintf("number %q does not match format %q", e.Value, e.Format)
}

func (e *FormatDriftError) Unwrap() error {
	return e.Err
}

func (e *FormatDriftError) Is(target error) bool {
	return target == ErrSequenceFormatDrift
}
