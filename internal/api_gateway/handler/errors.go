package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

// badRequestErrors are caller mistakes whose message is safe to echo back
var badRequestErrors = []error{
	service.ErrMissingTenant,
	service.ErrNoTransactions,
	sequence.ErrUnknownDocumentType,
	document.ErrEmptyTenant,
	document.ErrInvalidType,
	document.ErrInvalidCurrency,
	banking.ErrMissingID,
	banking.ErrMissingTenant,
	banking.ErrMissingBookingDate,
	banking.ErrZeroAmount,
	banking.ErrInvalidCurrency,
	export.ErrUnsupportedCharset,
	export.ErrInvalidExportType,
	reconciliation.ErrInvalidBookingStatus,
}

// respondServiceError maps a service error onto the response envelope.
// Unknown errors become a generic 500 so that storage details never leak.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sequence.ErrSequenceUnavailable):
		RespondServiceUnavailable(c, "Number sequence is busy, retry later")
	case errors.Is(err, export.ErrInvalidAccountingSettings):
		RespondUnprocessable(c, err.Error())
	case errors.Is(err, document.ErrDocumentNotFound{}),
		errors.Is(err, reconciliation.ErrLinkNotFound{}),
		errors.Is(err, banking.ErrTransactionNotFound{}):
		RespondNotFound(c, err.Error())
	case errors.Is(err, document.ErrInvalidTransition{}),
		errors.Is(err, document.ErrConcurrentModification{}),
		errors.Is(err, service.ErrExportInProgress):
		RespondConflict(c, err.Error())
	case isBadRequest(err):
		RespondBadRequest(c, err.Error())
	default:
		RespondInternalError(c)
	}
}

func isBadRequest(err error) bool {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
