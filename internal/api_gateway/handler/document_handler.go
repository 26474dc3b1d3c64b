package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
)

// DocumentHandler handles HTTP requests for financial documents
type DocumentHandler struct {
	documentService service.DocumentService
	logger          *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(logger *slog.Logger, documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// Create stores a draft from a typed request
func (h *DocumentHandler) Create(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Amount == nil && req.NetAmount == nil {
		RespondBadRequest(c, "amount or net_amount is required")
		return
	}

	docType, err := document.ParseType(req.Type)
	if err != nil {
		h.logger.Error("Invalid document type", "type", req.Type)
		RespondBadRequest(c, "Invalid document type")
		return
	}

	h.ingest(c, docType, req.payload())
}

// Ingest stores a draft from a loosely-typed payload, returning the fields
// that could not be parsed as warnings
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	docType, err := document.ParseType(req.Type)
	if err != nil {
		h.logger.Error("Invalid document type", "type", req.Type)
		RespondBadRequest(c, "Invalid document type")
		return
	}

	h.ingest(c, docType, document.Payload(req.Payload))
}

func (h *DocumentHandler) ingest(c *gin.Context, docType document.Type, payload document.Payload) {
	tenantID := c.Param("tenant_id")

	doc, warnings, err := h.documentService.Ingest(c.Request.Context(), tenantID, docType, payload)
	if err != nil {
		h.logger.Error("Failed to ingest document", "tenant_id", tenantID, "error", err)
		respondServiceError(c, err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}

	RespondCreated(c, IngestResponse{Document: mapDocumentToResponse(doc), Warnings: warnings})
}

// GetByID returns one document
func (h *DocumentHandler) GetByID(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		h.logger.Error("Failed to get document", "document_id", id.String(), "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, mapDocumentToResponse(doc))
}

// Finalize assigns the next number of the document's series
func (h *DocumentHandler) Finalize(c *gin.Context) {
	h.transition(c, "finalize", h.documentService.Finalize)
}

// MarkPaid records that the document has been settled
func (h *DocumentHandler) MarkPaid(c *gin.Context) {
	h.transition(c, "mark paid", h.documentService.MarkPaid)
}

// MarkBooked records that the document has been posted
func (h *DocumentHandler) MarkBooked(c *gin.Context) {
	h.transition(c, "mark booked", h.documentService.MarkBooked)
}

// Cancel retires a document and returns it with its storno
func (h *DocumentHandler) Cancel(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	original, storno, err := h.documentService.Cancel(c.Request.Context(), tenantID, id)
	if err != nil {
		h.logger.Error("Failed to cancel document", "document_id", id.String(), "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, CancelResponse{
		Original: mapDocumentToResponse(original),
		Storno:   mapDocumentToResponse(storno),
	})
}

type documentTransition func(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error)

func (h *DocumentHandler) transition(c *gin.Context, action string, apply documentTransition) {
	tenantID := c.Param("tenant_id")
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	doc, err := apply(c.Request.Context(), tenantID, id)
	if err != nil {
		h.logger.Error("Failed to "+action+" document", "document_id", id.String(), "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, mapDocumentToResponse(doc))
}

func (h *DocumentHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.logger.Error("Invalid document ID", "id", c.Param("id"), "error", err)
		RespondBadRequest(c, "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

// payload renders the typed request with canonical field names so that it
// goes through the same normalization as raw payloads
func (r CreateDocumentRequest) payload() document.Payload {
	p := document.Payload{}
	if r.Amount != nil {
		p["amount"] = *r.Amount
	}
	if r.NetAmount != nil {
		p["net_amount"] = *r.NetAmount
	}
	if r.TaxAmount != nil {
		p["tax_amount"] = *r.TaxAmount
	}
	if r.TaxRate != nil {
		p["tax_rate"] = *r.TaxRate
	}
	for key, v := range map[string]string{
		"counterparty_name": r.CounterpartyName,
		"date":              r.Date,
		"due_date":          r.DueDate,
		"currency":          r.Currency,
		"cost_center":       r.CostCenter,
		"category":          r.Category,
		"description":       r.Description,
	} {
		if v != "" {
			p[key] = v
		}
	}
	return p
}
