package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/middleware"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
)

// ExportHandler handles HTTP requests for accounting exports
type ExportHandler struct {
	exportService service.ExportService
	logger        *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(logger *slog.Logger, exportService service.ExportService) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// Create runs an export. With ?download=true and a single produced file the
// file itself is returned instead of the JSON summary.
func (h *ExportHandler) Create(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	dateRange, err := parseExportRange(req)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	exportType, err := export.ParseType(req.Type)
	if err != nil {
		RespondBadRequest(c, "type must be bookings-only, documents-only or both")
		return
	}

	outcome, err := h.exportService.Export(c.Request.Context(), &service.ExportRequest{
		TenantID:      tenantID,
		Range:         dateRange,
		Type:          exportType,
		Settings:      req.Settings,
		IncludeUnpaid: req.IncludeUnpaid,
		Encoding:      req.Encoding,
		RequestedBy:   middleware.GetPrincipalID(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.logger.Error("Export failed", "tenant_id", tenantID, "error", err)
		var settingsErr *export.InvalidAccountingSettingsError
		if errors.As(err, &settingsErr) {
			response := NewResponse(mapExportOutcome(outcome))
			response.Error = &ErrorInfo{Code: "INVALID_ACCOUNTING_SETTINGS", Message: err.Error()}
			response.CorrelationID = middleware.GetCorrelationID(c)
			c.JSON(http.StatusUnprocessableEntity, response)
			return
		}
		respondServiceError(c, err)
		return
	}

	if c.Query("download") == "true" && len(outcome.Result.Files) == 1 {
		f := outcome.Result.Files[0]
		c.Header("Content-Disposition", `attachment; filename="`+f.Filename+`"`)
		c.Data(http.StatusOK, "text/csv; charset="+outcome.Encoding, outcome.Contents[f.Filename])
		return
	}

	RespondCreated(c, mapExportOutcome(outcome))
}

// History lists past exports and the settings used last
func (h *ExportHandler) History(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	var params HistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	history, err := h.exportService.History(c.Request.Context(), tenantID, params.Limit)
	if err != nil {
		h.logger.Error("Failed to list exports", "tenant_id", tenantID, "error", err)
		respondServiceError(c, err)
		return
	}

	RespondOK(c, history)
}

func parseExportRange(req ExportRequest) (export.DateRange, error) {
	if req.Month != "" {
		month, err := time.Parse("2006-01", req.Month)
		if err != nil {
			return export.DateRange{}, errors.New("month must be formatted YYYY-MM")
		}
		return export.MonthRange(month.Year(), month.Month()), nil
	}

	var r export.DateRange
	if req.From != "" {
		from, err := document.ParseDate(req.From)
		if err != nil {
			return export.DateRange{}, errors.New("invalid from date")
		}
		r.From = from
	}
	if req.To != "" {
		to, err := document.ParseDate(req.To)
		if err != nil {
			return export.DateRange{}, errors.New("invalid to date")
		}
		r.To = to
	}
	return r, nil
}

func mapExportOutcome(outcome *service.ExportOutcome) ExportResponse {
	resp := ExportResponse{
		Files:    []ExportFileResponse{},
		Skipped:  []export.SkippedDocument{},
		Warnings: []string{},
	}
	if outcome == nil || outcome.Result == nil {
		return resp
	}

	res := outcome.Result
	resp.Success = res.Success
	resp.Encoding = outcome.Encoding
	resp.RecordCount = res.RecordCount
	resp.LineCount = res.LineCount
	resp.Locations = outcome.Locations
	if res.Skipped != nil {
		resp.Skipped = res.Skipped
	}
	if res.Warnings != nil {
		resp.Warnings = res.Warnings
	}
	if outcome.Record != nil {
		resp.ExportID = outcome.Record.ID.String()
	}
	if !outcome.ExportedAt.IsZero() {
		resp.ExportedAt = outcome.ExportedAt.Format(time.RFC3339)
	}
	for _, f := range res.Files {
		raw := outcome.Contents[f.Filename]
		resp.Files = append(resp.Files, ExportFileResponse{
			Kind:     string(f.Kind),
			Filename: f.Filename,
			Size:     len(raw),
			Content:  base64.StdEncoding.EncodeToString(raw),
		})
	}
	return resp
}
