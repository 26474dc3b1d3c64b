package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/platform/persistence"
)

// BankTransactionRepository implements the banking.Repository interface for PostgreSQL
type BankTransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewBankTransactionRepository creates a new PostgreSQL bank transaction repository
func NewBankTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) banking.Repository {
	return &BankTransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *BankTransactionRepository) WithTx(tx pgx.Tx) banking.Repository {
	return &BankTransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Import inserts transactions that are not yet stored. Rows already present
// for (tenant, id) are skipped, so a provider can resend its whole window.
func (r *BankTransactionRepository) Import(ctx context.Context, txs []*banking.Transaction) (int, error) {
	query := `
		INSERT INTO bank_transactions (tenant_id, id, account_id, counterparty_name, reference, booking_date, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, id) DO NOTHING
	`

	imported := 0
	for _, tx := range txs {
		result, err := r.querier.Exec(ctx, query,
			tx.TenantID,
			tx.ID,
			tx.AccountID,
			tx.CounterpartyName,
			tx.Reference,
			tx.BookingDate,
			tx.Amount,
			tx.Currency,
			tx.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to import bank transaction",
				"tenant_id", tx.TenantID,
				"transaction_id", tx.ID,
				"error", err,
			)
			return imported, fmt.Errorf("failed to import bank transaction: %w", err)
		}
		imported += int(result.RowsAffected())
	}

	return imported, nil
}

// GetByID retrieves a single transaction of a tenant.
func (r *BankTransactionRepository) GetByID(ctx context.Context, tenantID, id string) (*banking.Transaction, error) {
	query := `
		SELECT id, tenant_id, account_id, counterparty_name, reference, booking_date, amount, currency, created_at
		FROM bank_transactions
		WHERE tenant_id = $1 AND id = $2
	`

	tx, err := scanTransaction(r.querier.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, banking.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get bank transaction",
			"tenant_id", tenantID,
			"transaction_id", id,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get bank transaction: %w", err)
	}

	return tx, nil
}

// ListByAbsAmount returns the tenant's transactions of exactly cents in
// either direction. The matcher only ever compares whole-cent amounts, so
// this is its candidate pre-filter.
func (r *BankTransactionRepository) ListByAbsAmount(ctx context.Context, tenantID string, cents int64) ([]*banking.Transaction, error) {
	query := `
		SELECT id, tenant_id, account_id, counterparty_name, reference, booking_date, amount, currency, created_at
		FROM bank_transactions
		WHERE tenant_id = $1 AND ABS(amount) = $2
		ORDER BY booking_date DESC, id ASC
	`

	rows, err := r.querier.Query(ctx, query, tenantID, cents)
	if err != nil {
		r.logger.Error("Failed to list bank transactions by amount",
			"tenant_id", tenantID,
			"amount", cents,
			"error", err,
		)
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	defer rows.Close()

	var txs []*banking.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan bank transaction", "error", err)
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over bank transactions", "error", err)
		return nil, fmt.Errorf("error iterating over bank transactions: %w", err)
	}

	return txs, nil
}

func scanTransaction(row rowScanner) (*banking.Transaction, error) {
	var tx banking.Transaction
	if err := row.Scan(
		&tx.ID,
		&tx.TenantID,
		&tx.AccountID,
		&tx.CounterpartyName,
		&tx.Reference,
		&tx.BookingDate,
		&tx.Amount,
		&tx.Currency,
		&tx.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
