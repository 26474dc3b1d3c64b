package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

const dateLayout = "2006-01-02"

// SequenceResponse represents a number sequence in API responses
type SequenceResponse struct {
	DocumentType  string `json:"document_type"`
	NextNumber    int64  `json:"next_number"`
	NextFormatted string `json:"next_formatted"`
	Format        string `json:"format"`
	Version       int    `json:"version"`
	UpdatedAt     string `json:"updated_at"`
}

// CreateDocumentRequest is the typed form of a document draft. Amounts are
// decimal strings or numbers in major units.
type CreateDocumentRequest struct {
	Type             string           `json:"type" binding:"required"`
	CounterpartyName string           `json:"counterparty_name"`
	Amount           *decimal.Decimal `json:"amount"`
	NetAmount        *decimal.Decimal `json:"net_amount,omitempty"`
	TaxAmount        *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxRate          *int             `json:"tax_rate,omitempty" binding:"omitempty,min=0,max=100"`
	Date             string           `json:"date,omitempty"`
	DueDate          string           `json:"due_date,omitempty"`
	Currency         string           `json:"currency,omitempty" binding:"omitempty,len=3,alpha"`
	CostCenter       string           `json:"cost_center,omitempty"`
	Category         string           `json:"category,omitempty"`
	Description      string           `json:"description,omitempty"`
}

// IngestDocumentRequest carries a raw OCR or import payload
type IngestDocumentRequest struct {
	Type    string                 `json:"type" binding:"required"`
	Payload map[string]interface{} `json:"payload" binding:"required"`
}

// DocumentResponse represents a financial document in API responses
type DocumentResponse struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	DocumentNumber   string `json:"document_number,omitempty"`
	Status           string `json:"status"`
	CounterpartyName string `json:"counterparty_name"`
	Amount           string `json:"amount"`
	NetAmount        string `json:"net_amount"`
	TaxAmount        string `json:"tax_amount"`
	TaxRate          int    `json:"tax_rate"`
	Currency         string `json:"currency"`
	Date             string `json:"date,omitempty"`
	DueDate          string `json:"due_date,omitempty"`
	IsStorno         bool   `json:"is_storno"`
	OriginalNumber   string `json:"original_number,omitempty"`
	CostCenter       string `json:"cost_center,omitempty"`
	Category         string `json:"category,omitempty"`
	Description      string `json:"description,omitempty"`
	ReconciledAt     string `json:"reconciled_at,omitempty"`
	Version          int    `json:"version"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// IngestResponse is a stored draft plus the fields that could not be parsed
type IngestResponse struct {
	Document DocumentResponse `json:"document"`
	Warnings []string         `json:"warnings"`
}

// CancelResponse pairs the cancelled document with its storno
type CancelResponse struct {
	Original DocumentResponse `json:"original"`
	Storno   DocumentResponse `json:"storno"`
}

// BankTransactionRequest is one movement delivered by the bank-data provider
type BankTransactionRequest struct {
	ID               string          `json:"id" binding:"required"`
	AccountID        string          `json:"account_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Reference        string          `json:"reference"`
	BookingDate      string          `json:"booking_date" binding:"required"`
	Amount           decimal.Decimal `json:"amount"` // Signed; negative is outgoing
	Currency         string          `json:"currency,omitempty" binding:"omitempty,len=3,alpha"`
}

// ImportBankTransactionsRequest is a batch import
type ImportBankTransactionsRequest struct {
	Transactions []BankTransactionRequest `json:"transactions" binding:"required,min=1,dive"`
}

// BankTransactionResponse represents a bank transaction in API responses
type BankTransactionResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id,omitempty"`
	CounterpartyName string `json:"counterparty_name"`
	Reference        string `json:"reference"`
	BookingDate      string `json:"booking_date"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	CreatedAt        string `json:"created_at"`
}

// LinkResponse represents a transaction link in API responses
type LinkResponse struct {
	ID             string `json:"id"`
	TransactionID  string `json:"transaction_id"`
	DocumentID     string `json:"document_id"`
	DocumentNumber string `json:"document_number"`
	BookingStatus  string `json:"booking_status"`
	Rule           string `json:"rule"`
	Score          int    `json:"score"`
	LinkDate       string `json:"link_date"`
	CreatedBy      string `json:"created_by"`
	BookingDate    string `json:"booking_date"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

// UpdateBookingStatusRequest changes the booking status of a link
type UpdateBookingStatusRequest struct {
	BookingStatus string `json:"booking_status" binding:"required"`
}

// ExportRequest selects the documents and format of an export. Either a
// from/to pair or a YYYY-MM month is required.
type ExportRequest struct {
	From          string                    `json:"from,omitempty"`
	To            string                    `json:"to,omitempty"`
	Month         string                    `json:"month,omitempty"`
	Type          string                    `json:"type,omitempty"`
	IncludeUnpaid bool                      `json:"include_unpaid"`
	Encoding      string                    `json:"encoding,omitempty"`
	Settings      export.AccountingSettings `json:"settings"`
}

// ExportFileResponse is one produced file
type ExportFileResponse struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Content  string `json:"content"` // Base64 of the charset-encoded bytes
}

// ExportResponse summarizes an export run
type ExportResponse struct {
	ExportID    string                   `json:"export_id,omitempty"`
	Success     bool                     `json:"success"`
	Encoding    string                   `json:"encoding,omitempty"`
	RecordCount int                      `json:"record_count"`
	LineCount   int                      `json:"line_count"`
	Files       []ExportFileResponse     `json:"files"`
	Locations   []string                 `json:"locations,omitempty"`
	Skipped     []export.SkippedDocument `json:"skipped"`
	Warnings    []string                 `json:"warnings"`
	ExportedAt  string                   `json:"exported_at,omitempty"`
}

// HistoryParams are the query parameters of the export history endpoint
type HistoryParams struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=200"`
}

func mapSequenceToResponse(seq *sequence.NumberSequence, now time.Time) SequenceResponse {
	return SequenceResponse{
		DocumentType:  string(seq.DocumentType),
		NextNumber:    seq.NextNumber,
		NextFormatted: seq.Formatted(seq.NextNumber, now),
		Format:        seq.Format,
		Version:       seq.Version,
		UpdatedAt:     seq.UpdatedAt.Format(time.RFC3339),
	}
}

func mapDocumentToResponse(doc *document.FinancialDocument) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID.String(),
		Type:             string(doc.Type),
		DocumentNumber:   doc.DocumentNumber,
		Status:           string(doc.Status),
		CounterpartyName: doc.CounterpartyName,
		Amount:           shared.FormatAmount(doc.Amount),
		NetAmount:        shared.FormatAmount(doc.NetAmount),
		TaxAmount:        shared.FormatAmount(doc.TaxAmount),
		TaxRate:          doc.TaxRate,
		Currency:         doc.Currency,
		Date:             formatDate(doc.Date),
		DueDate:          formatDate(doc.DueDate),
		IsStorno:         doc.IsStorno,
		OriginalNumber:   doc.OriginalNumber,
		CostCenter:       doc.CostCenter,
		Category:         doc.Category,
		Description:      doc.Description,
		ReconciledAt:     formatTimestamp(doc.ReconciledAt),
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        doc.UpdatedAt.Format(time.RFC3339),
	}
}

func mapBankTransactionToResponse(tx *banking.Transaction) BankTransactionResponse {
	return BankTransactionResponse{
		ID:               tx.ID,
		AccountID:        tx.AccountID,
		CounterpartyName: tx.CounterpartyName,
		Reference:        tx.Reference,
		BookingDate:      tx.BookingDate.Format(dateLayout),
		Amount:           shared.FormatAmount(tx.Amount),
		Currency:         tx.Currency,
		CreatedAt:        tx.CreatedAt.Format(time.RFC3339),
	}
}

func mapLinkToResponse(link *reconciliation.TransactionLink) LinkResponse {
	return LinkResponse{
		ID:             link.ID,
		TransactionID:  link.TransactionID,
		DocumentID:     link.DocumentID.String(),
		DocumentNumber: link.Document.DocumentNumber,
		BookingStatus:  string(link.BookingStatus),
		Rule:           string(link.Rule),
		Score:          link.Score,
		LinkDate:       link.LinkDate.Format(time.RFC3339),
		CreatedBy:      link.CreatedBy,
		BookingDate:    link.Transaction.BookingDate.Format(dateLayout),
		Amount:         shared.FormatAmount(link.Transaction.Amount),
		Currency:       link.Transaction.Currency,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
