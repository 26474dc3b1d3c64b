package document

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// Common errors
var (
	ErrEmptyTenant         = errors.New("tenant id cannot be empty")
	ErrInvalidType         = errors.New("invalid document type")
	ErrInvalidCurrency     = errors.New("currency must be a 3-letter code")
	ErrNumberAlreadyIssued = errors.New("document number already issued")
)

// Type is the kind of financial document
type Type string

const (
	TypeInvoice      Type = "invoice"
	TypeQuote        Type = "quote"
	TypeExpense      Type = "expense"
	TypeReceipt      Type = "receipt"
	TypeDeliveryNote Type = "delivery_note"
)

// ParseType resolves a document type case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeInvoice, TypeQuote, TypeExpense, TypeReceipt, TypeDeliveryNote:
		return t, nil
	case "delivery-note", "deliverynote":
		return TypeDeliveryNote, nil
	}
	return "", ErrInvalidType
}

// SequenceType returns the number series a document of this type draws from.
// Receipts share the expense series.
func (t Type) SequenceType() sequence.Type {
	switch t {
	case TypeInvoice:
		return sequence.TypeInvoice
	case TypeQuote:
		return sequence.TypeQuote
	case TypeDeliveryNote:
		return sequence.TypeDeliveryNote
	default:
		return sequence.TypeExpense
	}
}

// IsIncoming reports whether the document is a cost (money leaves the tenant).
func (t Type) IsIncoming() bool {
	return t == TypeExpense || t == TypeReceipt
}

// IsBookable reports whether the document produces ledger postings.
func (t Type) IsBookable() bool {
	return t == TypeInvoice || t == TypeExpense || t == TypeReceipt
}

// Status is the lifecycle state of a document
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusBooked    Status = "booked"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// FinancialDocument is an invoice, expense, receipt, quote or delivery note.
// DocumentNumber is assigned once at finalization and never changes.
type FinancialDocument struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         string     `json:"tenant_id"`
	Type             Type       `json:"type"`
	DocumentNumber   string     `json:"document_number,omitempty"`
	CounterpartyName string     `json:"counterparty_name"`
	Amount           int64      `json:"amount"` // Gross, in cents/minor units
	NetAmount        int64      `json:"net_amount"`
	TaxAmount        int64      `json:"tax_amount"`
	TaxRate          int        `json:"tax_rate"` // Percent, e.g. 19
	Date             *time.Time `json:"date,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Status           Status     `json:"status"`
	IsStorno         bool       `json:"is_storno"`
	OriginalNumber   string     `json:"original_number,omitempty"` // Set on storno documents
	CostCenter       string     `json:"cost_center,omitempty"`
	Category         string     `json:"category,omitempty"`
	Description      string     `json:"description,omitempty"`
	Currency         string     `json:"currency"`
	ReconciledAt     *time.Time `json:"reconciled_at,omitempty"`
	Version          int        `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewDraft creates an unnumbered draft document.
func NewDraft(tenantID string, docType Type, currency string) (*FinancialDocument, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenant
	}
	if _, err := ParseType(string(docType)); err != nil {
		return nil, err
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "EUR"
	}
	if !shared.IsCurrencyCode(currency) {
		return nil, ErrInvalidCurrency
	}

	now := time.Now().UTC()
	return &FinancialDocument{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Type:      docType,
		Status:    StatusDraft,
		Currency:  currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Finalize moves a draft to finalized and assigns its number.
func (d *FinancialDocument) Finalize(number string) error {
	if d.Status != StatusDraft {
		return ErrInvalidTransition{DocumentID: d.ID, From: d.Status, To: StatusFinalized}
	}
	if d.DocumentNumber != "" {
		return ErrNumberAlreadyIssued
	}
	d.DocumentNumber = number
	d.Status = StatusFinalized
	d.touch()
	return nil
}

// MarkPaid records that the document has been settled.
func (d *FinancialDocument) MarkPaid() error {
	if d.Status != StatusFinalized {
		return ErrInvalidTransition{DocumentID: d.ID, From: d.Status, To: StatusPaid}
	}
	d.Status = StatusPaid
	d.touch()
	return nil
}

// MarkBooked records that bookkeeping has posted the document.
func (d *FinancialDocument) MarkBooked() error {
	if d.Status != StatusPaid {
		return ErrInvalidTransition{DocumentID: d.ID, From: d.Status, To: StatusBooked}
	}
	d.Status = StatusBooked
	d.touch()
	return nil
}

// Cancel retires the document and returns the storno document that
// reverses it. The storno still needs its own number from the
// cancellation series.
func (d *FinancialDocument) Cancel() (*FinancialDocument, error) {
	if d.IsStorno || (d.Status != StatusFinalized && d.Status != StatusPaid) {
		return nil, ErrInvalidTransition{DocumentID: d.ID, From: d.Status, To: StatusCancelled}
	}

	storno := *d
	now := time.Now().UTC()
	storno.ID = uuid.New()
	storno.DocumentNumber = ""
	storno.Status = StatusDraft
	storno.IsStorno = true
	storno.OriginalNumber = d.DocumentNumber
	storno.Date = &now
	storno.ReconciledAt = nil
	storno.Version = 1
	storno.CreatedAt = now
	storno.UpdatedAt = now
	if d.Description != "" {
		storno.Description = "Storno " + d.DocumentNumber + " " + d.Description
	} else {
		storno.Description = "Storno " + d.DocumentNumber
	}

	d.Status = StatusCancelled
	d.touch()
	return &storno, nil
}

// StornoSequenceType is the series storno documents draw from.
func StornoSequenceType() sequence.Type {
	return sequence.TypeCancellation
}

// NumberSeries is the series this particular document is numbered from.
func (d *FinancialDocument) NumberSeries() sequence.Type {
	if d.IsStorno {
		return StornoSequenceType()
	}
	return d.Type.SequenceType()
}

func (d *FinancialDocument) touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}
