package handler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// BankTransactionHandler handles HTTP requests for imported bank movements
type BankTransactionHandler struct {
	bankTransactionService service.BankTransactionService
	logger                 *slog.Logger
}

// NewBankTransactionHandler creates a new bank transaction handler
func NewBankTransactionHandler(logger *slog.Logger, bankTransactionService service.BankTransactionService) *BankTransactionHandler {
	return &BankTransactionHandler{
		bankTransactionService: bankTransactionService,
		logger:                 logger,
	}
}

// Import stores a batch. Replaying a batch is harmless; already known
// transactions are counted as existing.
func (h *BankTransactionHandler) Import(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	var req ImportBankTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	txs := make([]*banking.Transaction, 0, len(req.Transactions))
	for i, item := range req.Transactions {
		bookingDate, err := document.ParseDate(item.BookingDate)
		if err != nil {
			RespondBadRequest(c, fmt.Sprintf("transaction %d: invalid booking_date", i))
			return
		}
		txs = append(txs, &banking.Transaction{
			ID:               strings.TrimSpace(item.ID),
			TenantID:         tenantID,
			AccountID:        item.AccountID,
			CounterpartyName: strings.TrimSpace(item.CounterpartyName),
			Reference:        strings.TrimSpace(item.Reference),
			BookingDate:      bookingDate,
			Amount:           shared.DecimalToMinorUnits(item.Amount),
			Currency:         item.Currency,
		})
	}

	result, err := h.bankTransactionService.Import(c.Request.Context(), tenantID, txs)
	if err != nil {
		h.logger.Error("Failed to import bank transactions",
			"tenant_id", tenantID,
			"count", len(txs),
			"error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, result)
}

// GetByID returns one bank transaction
func (h *BankTransactionHandler) GetByID(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	id := c.Param("id")

	tx, err := h.bankTransactionService.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		h.logger.Error("Failed to get bank transaction", "transaction_id", id, "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, mapBankTransactionToResponse(tx))
}
