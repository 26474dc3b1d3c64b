// Package sequence models the per-tenant, per-document-type number series
// that back GoBD-compliant document numbering.
package sequence

import (
	"errors"
	"strings"
	"time"
)

var ErrUnknownDocumentType = errors.New("unknown sequence document type")

// Type names a number series. Each tenant owns at most one sequence per type.
type Type string

const (
	TypeInvoice      Type = "Invoice"
	TypeQuote        Type = "Quote"
	TypeCustomer     Type = "Customer"
	TypeExpense      Type = "Expense"
	TypeDeliveryNote Type = "DeliveryNote"
	TypeCancellation Type = "Cancellation"
)

// Default describes how a sequence starts when it is first created.
type Default struct {
	Type   Type
	Format string
	Start  int64
}

var defaults = []Default{
	{Type: TypeInvoice, Format: "RE-{number}", Start: 1000},
	{Type: TypeQuote, Format: "AN-{number}", Start: 1000},
	{Type: TypeCustomer, Format: "KD-000", Start: 1},
	{Type: TypeExpense, Format: "AG-{number:4}", Start: 1},
	{Type: TypeDeliveryNote, Format: "LS-{number}", Start: 1000},
	{Type: TypeCancellation, Format: "ST-{number}", Start: 1},
}

// Defaults returns the standard set created by bootstrap, in a stable order.
func Defaults() []Default {
	out := make([]Default, len(defaults))
	copy(out, defaults)
	return out
}

// DefaultFor returns the default format and start number for t.
func DefaultFor(t Type) (Default, bool) {
	for _, d := range defaults {
		if d.Type == t {
			return d, true
		}
	}
	return Default{}, false
}

// ParseType resolves a type name case-insensitively, accepting the
// hyphenated spelling "Delivery-Note" as well.
func ParseType(s string) (Type, error) {
	for _, d := range defaults {
		if equalFoldIgnoringSeparators(string(d.Type), s) {
			return d.Type, nil
		}
	}
	return "", ErrUnknownDocumentType
}

// IsValid reports whether t is one of the known series.
func (t Type) IsValid() bool {
	_, ok := DefaultFor(t)
	return ok
}

// NumberSequence is one per (tenant, document type).
// NextNumber is monotonically non-decreasing.
type NumberSequence struct {
	TenantID     string    `json:"tenant_id"`
	DocumentType Type      `json:"document_type"`
	NextNumber   int64     `json:"next_number"`
	Format       string    `json:"format"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewNumberSequence creates a sequence for tenant using the type's defaults.
func NewNumberSequence(tenantID string, t Type) (*NumberSequence, error) {
	d, ok := DefaultFor(t)
	if !ok {
		return nil, ErrUnknownDocumentType
	}
	now := time.Now().UTC()
	return &NumberSequence{
		TenantID:     tenantID,
		DocumentType: t,
		NextNumber:   d.Start,
		Format:       d.Format,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Formatted renders n with the sequence's format at the given instant.
func (s *NumberSequence) Formatted(n int64, at time.Time) string {
	return ParseFormat(s.Format).Render(n, at)
}

func equalFoldIgnoringSeparators(a, b string) bool {
	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			if isSeparator(r) {
				return -1
			}
			return r
		}, strings.ToLower(strings.TrimSpace(s)))
	}
	return strip(a) == strip(b)
}
