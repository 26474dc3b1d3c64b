package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// LinkHandler handles HTTP requests for reconciliation links
type LinkHandler struct {
	linkService service.LinkService
	logger      *slog.Logger
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(logger *slog.Logger, linkService service.LinkService) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		logger:      logger,
	}
}

// GetByDocument returns the bank transaction a document was matched to
func (h *LinkHandler) GetByDocument(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid document ID")
		return
	}

	link, err := h.linkService.GetByDocument(c.Request.Context(), tenantID, documentID)
	if err != nil {
		h.logger.Error("Failed to get link", "document_id", documentID.String(), "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, mapLinkToResponse(link))
}

// UpdateBookingStatus sets the booking status of a document's link
func (h *LinkHandler) UpdateBookingStatus(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid document ID")
		return
	}

	var req UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	status, err := reconciliation.ParseBookingStatus(req.BookingStatus)
	if err != nil {
		RespondBadRequest(c, "booking_status must be open or booked")
		return
	}

	link, err := h.linkService.UpdateBookingStatus(c.Request.Context(), tenantID, documentID, status)
	if err != nil {
		h.logger.Error("Failed to update booking status",
			"document_id", documentID.String(),
			"status", string(status),
			"error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, mapLinkToResponse(link))
}
