package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

// SequenceHandler handles HTTP requests for document number sequences
type SequenceHandler struct {
	sequenceService service.SequenceService
	now             func() time.Time
	logger          *slog.Logger
}

// NewSequenceHandler creates a new sequence handler
func NewSequenceHandler(logger *slog.Logger, sequenceService service.SequenceService) *SequenceHandler {
	return &SequenceHandler{
		sequenceService: sequenceService,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
}

// List returns every sequence of the tenant
func (h *SequenceHandler) List(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	seqs, err := h.sequenceService.List(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to list sequences", "tenant_id", tenantID, "error", err)
		respondServiceError(c, err)
		return
	}

	RespondWithList(c, h.mapSequences(seqs), len(seqs))
}

// Bootstrap creates the standard sequences that do not exist yet
func (h *SequenceHandler) Bootstrap(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	seqs, err := h.sequenceService.BootstrapDefaults(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to bootstrap sequences", "tenant_id", tenantID, "error", err)
		respondServiceError(c, err)
		return
	}

	RespondWithList(c, h.mapSequences(seqs), len(seqs))
}

// Allocate issues the next number of a series. Numbers issued this way are
// not attached to a document; finalization allocates on its own.
func (h *SequenceHandler) Allocate(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	t, ok := h.parseType(c)
	if !ok {
		return
	}

	allocation, err := h.sequenceService.Allocate(c.Request.Context(), tenantID, t)
	if err != nil {
		h.logger.Error("Failed to allocate number",
			"tenant_id", tenantID,
			"document_type", string(t),
			"error", err)
		respondServiceError(c, err)
		return
	}

	RespondCreated(c, allocation)
}

// Resync realigns a counter with the issued numbers and reports gaps
func (h *SequenceHandler) Resync(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	t, ok := h.parseType(c)
	if !ok {
		return
	}

	result, err := h.sequenceService.Resync(c.Request.Context(), tenantID, t)
	if err != nil {
		h.logger.Error("Failed to resync sequence",
			"tenant_id", tenantID,
			"document_type", string(t),
			"error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, result)
}

func (h *SequenceHandler) parseType(c *gin.Context) (sequence.Type, bool) {
	raw := c.Param("type")
	t, err := sequence.ParseType(raw)
	if err != nil {
		h.logger.Error("Invalid sequence type", "type", raw)
		RespondBadRequest(c, "Invalid sequence type")
		return "", false
	}
	return t, true
}

func (h *SequenceHandler) mapSequences(seqs []*sequence.NumberSequence) []SequenceResponse {
	now := h.now()
	out := make([]SequenceResponse, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, mapSequenceToResponse(seq, now))
	}
	return out
}
