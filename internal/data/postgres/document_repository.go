package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/platform/persistence"
)

const uniqueViolation = "23505"

const documentColumns = `id, tenant_id, type, COALESCE(document_number, ''), counterparty_name, amount, net_amount,
		tax_amount, tax_rate, document_date, due_date, status, is_storno, original_number, cost_center,
		category, description, currency, reconciled_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// DocumentRepository implements the document.Repository interface for PostgreSQL
type DocumentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewDocumentRepository creates a new PostgreSQL document repository
func NewDocumentRepository(logger *slog.Logger, db *persistence.PostgresDB) document.Repository {
	return &DocumentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *DocumentRepository) WithTx(tx pgx.Tx) document.Repository {
	return &DocumentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a new document. Drafts carry no number.
func (r *DocumentRepository) Create(ctx context.Context, doc *document.FinancialDocument) error {
	query := `
		INSERT INTO financial_documents (id, tenant_id, type, number_series, document_number, counterparty_name,
			amount, net_amount, tax_amount, tax_rate, document_date, due_date, status, is_storno, original_number,
			cost_center, category, description, currency, reconciled_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	var series, number *string
	if doc.DocumentNumber != "" {
		s := string(doc.NumberSeries())
		series, number = &s, &doc.DocumentNumber
	}

	_, err := r.querier.Exec(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.Type,
		series,
		number,
		doc.CounterpartyName,
		doc.Amount,
		doc.NetAmount,
		doc.TaxAmount,
		doc.TaxRate,
		doc.Date,
		doc.DueDate,
		doc.Status,
		doc.IsStorno,
		doc.OriginalNumber,
		doc.CostCenter,
		doc.Category,
		doc.Description,
		doc.Currency,
		doc.ReconciledAt,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return document.ErrNumberAlreadyIssued
		}
		r.logger.Error("Failed to create document",
			"document_id", doc.ID.String(),
			"tenant_id", doc.TenantID,
			"error", err,
		)
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document of a tenant.
// Returns ErrDocumentNotFound if no such document exists for that tenant.
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM financial_documents
		WHERE tenant_id = $1 AND id = $2
	`

	doc, err := scanDocument(r.querier.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, document.ErrDocumentNotFound{DocumentID: id}
		}
		r.logger.Error("Failed to get document",
			"document_id", id.String(),
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// Finalize stores the number and the finalized status. The update only
// applies to a row that is still an unnumbered draft; a number already taken
// in the series returns ErrNumberAlreadyIssued.
func (r *DocumentRepository) Finalize(ctx context.Context, doc *document.FinancialDocument) error {
	query := `
		UPDATE financial_documents
		SET document_number = $3, number_series = $4, status = $5, document_date = $6, version = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2 AND status = 'draft' AND document_number IS NULL
	`

	result, err := r.querier.Exec(ctx, query,
		doc.TenantID,
		doc.ID,
		doc.DocumentNumber,
		string(doc.NumberSeries()),
		doc.Status,
		doc.Date,
		doc.Version,
		doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return document.ErrNumberAlreadyIssued
		}
		r.logger.Error("Failed to finalize document",
			"document_id", doc.ID.String(),
			"document_number", doc.DocumentNumber,
			"error", err,
		)
		return fmt.Errorf("failed to finalize document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrConcurrentModification{DocumentID: doc.ID}
	}

	return nil
}

// UpdateStatus persists a status change with optimistic locking: the row must
// still be in status from and one version behind doc.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, doc *document.FinancialDocument, from document.Status) error {
	query := `
		UPDATE financial_documents
		SET status = $3, version = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = $6 AND version = $7
	`

	result, err := r.querier.Exec(ctx, query,
		doc.TenantID,
		doc.ID,
		doc.Status,
		doc.Version,
		doc.UpdatedAt,
		from,
		doc.Version-1,
	)
	if err != nil {
		r.logger.Error("Failed to update document status",
			"document_id", doc.ID.String(),
			"status", string(doc.Status),
			"error", err,
		)
		return fmt.Errorf("failed to update document status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return document.ErrConcurrentModification{DocumentID: doc.ID}
	}

	return nil
}

// ListByDateRange returns the tenant's documents dated within [from, to].
// Undated documents created in the range are included so that callers can
// report them instead of losing them.
func (r *DocumentRepository) ListByDateRange(ctx context.Context, tenantID string, from, to time.Time) ([]*document.FinancialDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM financial_documents
		WHERE tenant_id = $1
		  AND (document_date BETWEEN $2 AND $3
		       OR (document_date IS NULL AND created_at::date BETWEEN $2 AND $3))
		ORDER BY document_date ASC NULLS LAST, document_number ASC
	`

	return r.list(ctx, "list documents by date range", query, tenantID, from, to)
}

// ListUnreconciled feeds the reconciliation sweeper. Pages are keyed on
// (document_date, id) so callers can walk past rows that stay unmatched.
func (r *DocumentRepository) ListUnreconciled(ctx context.Context, tenantID string, since time.Time, after *document.Cursor, limit int) ([]*document.FinancialDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM financial_documents
		WHERE ($1 = '' OR tenant_id = $1)
		  AND reconciled_at IS NULL
		  AND status IN ('finalized', 'paid', 'booked')
		  AND type IN ('invoice', 'expense', 'receipt')
		  AND is_storno = FALSE
		  AND document_date >= $2
		  AND ($3::date IS NULL OR (document_date, id) > ($3::date, $4::uuid))
		ORDER BY document_date ASC, id ASC
		LIMIT $5
	`

	var afterDate, afterID interface{}
	if after != nil {
		afterDate, afterID = after.Date, after.ID
	}

	return r.list(ctx, "list unreconciled documents", query, tenantID, since, afterDate, afterID, limit)
}

// MarkReconciled stamps reconciled_at once; repeated calls are no-ops.
func (r *DocumentRepository) MarkReconciled(ctx context.Context, tenantID string, id uuid.UUID) error {
	query := `
		UPDATE financial_documents
		SET reconciled_at = $3
		WHERE tenant_id = $1 AND id = $2 AND reconciled_at IS NULL
	`

	if _, err := r.querier.Exec(ctx, query, tenantID, id, time.Now().UTC()); err != nil {
		r.logger.Error("Failed to mark document reconciled",
			"document_id", id.String(),
			"tenant_id", tenantID,
			"error", err,
		)
		return fmt.Errorf("failed to mark document reconciled: %w", err)
	}

	return nil
}

// ListIssuedNumbers returns the formatted numbers already issued in a
// series. Customer numbers live in the customers table.
func (r *DocumentRepository) ListIssuedNumbers(ctx context.Context, tenantID string, t sequence.Type) ([]string, error) {
	query := `
		SELECT document_number
		FROM financial_documents
		WHERE tenant_id = $1 AND number_series = $2 AND document_number IS NOT NULL
	`
	args := []interface{}{tenantID, string(t)}
	if t == sequence.TypeCustomer {
		query = `
		SELECT customer_number
		FROM customers
		WHERE tenant_id = $1
	`
		args = args[:1]
	}

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list issued numbers",
			"tenant_id", tenantID,
			"document_type", string(t),
			"error", err,
		)
		return nil, fmt.Errorf("failed to list issued numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan issued number: %w", err)
		}
		numbers = append(numbers, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over issued numbers: %w", err)
	}

	return numbers, nil
}

func (r *DocumentRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*document.FinancialDocument, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var docs []*document.FinancialDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			r.logger.Error("Failed to scan document", "error", err)
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over documents", "error", err)
		return nil, fmt.Errorf("error iterating over documents: %w", err)
	}

	return docs, nil
}

func scanDocument(row rowScanner) (*document.FinancialDocument, error) {
	var doc document.FinancialDocument
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.Type,
		&doc.DocumentNumber,
		&doc.CounterpartyName,
		&doc.Amount,
		&doc.NetAmount,
		&doc.TaxAmount,
		&doc.TaxRate,
		&doc.Date,
		&doc.DueDate,
		&doc.Status,
		&doc.IsStorno,
		&doc.OriginalNumber,
		&doc.CostCenter,
		&doc.Category,
		&doc.Description,
		&doc.Currency,
		&doc.ReconciledAt,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
