package export

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// DebitCredit is the Soll/Haben indicator of a booking line
type DebitCredit string

const (
	Debit  DebitCredit = "S"
	Credit DebitCredit = "H"
)

// Invert flips the indicator; storno lines post against the original side.
func (dc DebitCredit) Invert() DebitCredit {
	if dc == Debit {
		return Credit
	}
	return Debit
}

// Type selects which files an export produces
type Type string

const (
	TypeBookingsOnly  Type = "bookings-only"
	TypeDocumentsOnly Type = "documents-only"
	TypeBoth          Type = "both"
)

var ErrInvalidExportType = errors.New("invalid export type")

// ParseType validates an export type, defaulting to bookings-only.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return TypeBookingsOnly, nil
	case TypeBookingsOnly:
		return TypeBookingsOnly, nil
	case TypeDocumentsOnly:
		return TypeDocumentsOnly, nil
	case TypeBoth:
		return TypeBoth, nil
	}
	return "", ErrInvalidExportType
}

func (t Type) includesBookings() bool  { return t == TypeBookingsOnly || t == TypeBoth }
func (t Type) includesDocuments() bool { return t == TypeDocumentsOnly || t == TypeBoth }

// BookingLine is one row of the booking batch. Amount is always positive;
// the direction lives in DebitCredit.
type BookingLine struct {
	DocumentID     uuid.UUID
	Amount         int64
	DebitCredit    DebitCredit
	Currency       string
	Date           time.Time
	Account        string
	ContraAccount  string
	TaxKey         string
	DocumentNumber string
	OriginalNumber string
	Description    string
	CostCenter     string
	payment        bool
}

// Selectable decides whether a document belongs in an export at all, before
// validation. Storno documents are always exported so a cancellation is never
// lost from the books.
func Selectable(doc *document.FinancialDocument, includeUnpaid bool) bool {
	if !doc.Type.IsBookable() {
		return false
	}
	if doc.IsStorno {
		return doc.Status != document.StatusDraft
	}
	switch doc.Status {
	case document.StatusPaid, document.StatusBooked:
		return true
	case document.StatusFinalized, document.StatusCancelled:
		return includeUnpaid
	default:
		return false
	}
}

// DocumentValidationFailedError explains why a single document was skipped.
// The rest of the export proceeds.
type DocumentValidationFailedError struct {
	DocumentID     uuid.UUID
	DocumentNumber string
	Reasons        []string
}

func (e *DocumentValidationFailedError) Error() string {
	ref := e.DocumentNumber
	if ref == "" {
		ref = e.DocumentID.String()
	}
	return fmt.Sprintf("document %s: %s", ref, strings.Join(e.Reasons, ", "))
}

func (e *DocumentValidationFailedError) Is(target error) bool {
	return target == ErrDocumentValidationFailed
}

// ValidateDocument checks the fields every booking line needs.
func ValidateDocument(doc *document.FinancialDocument) error {
	var reasons []string
	if doc.Date == nil || doc.Date.IsZero() {
		reasons = append(reasons, "missing document date")
	}
	if doc.Amount <= 0 {
		reasons = append(reasons, "amount must be positive")
	}
	if strings.TrimSpace(doc.CounterpartyName) == "" {
		reasons = append(reasons, "missing counterparty name")
	}
	if strings.TrimSpace(doc.DocumentNumber) == "" {
		reasons = append(reasons, "missing document number")
	}
	if !shared.IsCurrencyCode(doc.Currency) {
		reasons = append(reasons, "invalid currency code")
	}
	if doc.IsStorno && doc.OriginalNumber == "" {
		reasons = append(reasons, "storno without original document number")
	}
	if len(reasons) > 0 {
		return &DocumentValidationFailedError{DocumentID: doc.ID, DocumentNumber: doc.DocumentNumber, Reasons: reasons}
	}
	return nil
}

// BuildBookingLines derives the booking lines of one validated document. A
// paid document with a link also gets the payment line against the bank
// account, dated at the bank booking date.
func BuildBookingLines(doc *document.FinancialDocument, link *reconciliation.TransactionLink, settings AccountingSettings) []BookingLine {
	chart := ChartFor(settings.ChartOfAccounts)
	incoming := doc.Type.IsIncoming()
	counterparty := CounterpartyAccount(doc.CounterpartyName, incoming, settings.CounterpartyAccountLength)

	main := BookingLine{
		DocumentID:     doc.ID,
		Amount:         doc.Amount,
		DebitCredit:    Debit,
		Currency:       doc.Currency,
		Date:           *doc.Date,
		TaxKey:         TaxKey(doc.TaxRate, incoming),
		DocumentNumber: doc.DocumentNumber,
		OriginalNumber: doc.OriginalNumber,
		Description:    bookingText(doc),
		CostCenter:     doc.CostCenter,
	}
	if incoming {
		main.Account = PadAccount(chart.ExpenseAccount(doc.Category, doc.CostCenter), settings.AccountLength)
		main.ContraAccount = counterparty
	} else {
		main.Account = counterparty
		main.ContraAccount = PadAccount(chart.RevenueAccount(doc.TaxRate), settings.AccountLength)
	}
	if doc.IsStorno {
		main.DebitCredit = main.DebitCredit.Invert()
	}

	lines := []BookingLine{main}
	if link == nil || doc.IsStorno || (doc.Status != document.StatusPaid && doc.Status != document.StatusBooked) {
		return lines
	}

	bank := PadAccount(chart.Bank, settings.AccountLength)
	payment := BookingLine{
		DocumentID:     doc.ID,
		Amount:         doc.Amount,
		DebitCredit:    Debit,
		Currency:       doc.Currency,
		Date:           link.Transaction.BookingDate,
		DocumentNumber: doc.DocumentNumber,
		Description:    "Zahlung " + doc.DocumentNumber,
		CostCenter:     doc.CostCenter,
		payment:        true,
	}
	if incoming {
		payment.Account, payment.ContraAccount = counterparty, bank
	} else {
		payment.Account, payment.ContraAccount = bank, counterparty
	}
	return append(lines, payment)
}

// SortLines orders lines by date, then document number, with a document's
// own line ahead of its payment line.
func SortLines(lines []BookingLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if da, db := dateOnly(a.Date), dateOnly(b.Date); !da.Equal(db) {
			return da.Before(db)
		}
		if a.DocumentNumber != b.DocumentNumber {
			return a.DocumentNumber < b.DocumentNumber
		}
		return !a.payment && b.payment
	})
}

func bookingText(doc *document.FinancialDocument) string {
	if strings.TrimSpace(doc.Description) != "" {
		return doc.Description
	}
	label := "Rechnung"
	if doc.Type.IsIncoming() {
		label = "Beleg"
	}
	return label + " " + doc.DocumentNumber + " " + doc.CounterpartyName
}
