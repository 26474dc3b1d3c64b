package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/middleware"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/outbox"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// BankTransactionServiceImpl implements BankTransactionService
type BankTransactionServiceImpl struct {
	db     TxRunner
	txs    banking.Repository
	outbox outbox.Repository
	logger *slog.Logger
}

// NewBankTransactionService creates a new bank transaction service
func NewBankTransactionService(logger *slog.Logger, db TxRunner, txs banking.Repository, outboxRepo outbox.Repository) *BankTransactionServiceImpl {
	return &BankTransactionServiceImpl{
		db:     db,
		txs:    txs,
		outbox: outboxRepo,
		logger: logger,
	}
}

// Import stores a batch pushed by the bank-data collaborator. Transactions
// already known are skipped, so replaying a batch is harmless. When anything
// new arrived, one BankTransactionsImported event lets the worker retry
// open documents against it.
func (s *BankTransactionServiceImpl) Import(ctx context.Context, tenantID string, txs []*banking.Transaction) (*ImportResult, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	for i, tx := range txs {
		tx.TenantID = tenantID
		tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
		if tx.Currency == "" {
			tx.Currency = "EUR"
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	var imported int
	err := s.db.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		n, err := s.txs.WithTx(dbTx).Import(ctx, txs)
		if err != nil {
			return err
		}
		imported = n
		if n == 0 {
			return nil
		}

		msg, err := outbox.NewMessage(&shared.DocumentEvent{
			EventType:     shared.EventTypeBankTransactionsImported,
			TenantID:      tenantID,
			ImportedCount: n,
			CorrelationID: middleware.CorrelationIDFromContext(ctx),
		})
		if err != nil {
			return fmt.Errorf("failed to build outbox message: %w", err)
		}
		return s.outbox.WithTx(dbTx).Create(ctx, msg)
	})
	if err != nil {
		s.logger.Error("Failed to import bank transactions",
			"tenant_id", tenantID,
			"count", len(txs),
			"error", err,
		)
		return nil, err
	}

	result := &ImportResult{Received: len(txs), Imported: imported, Existing: len(txs) - imported}
	s.logger.Info("Bank transactions imported",
		"tenant_id", tenantID,
		"received", result.Received,
		"imported", result.Imported,
	)
	return result, nil
}

// Get returns one bank transaction of the tenant
func (s *BankTransactionServiceImpl) Get(ctx context.Context, tenantID, id string) (*banking.Transaction, error) {
	return s.txs.GetByID(ctx, tenantID, id)
}
