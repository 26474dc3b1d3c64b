package handler

import (
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/middleware"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
)

func newExportRouter(svc service.ExportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewExportHandler(testLogger(), svc)

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Principal())
	router.POST("/tenants/:tenant_id/exports", h.Create)
	router.GET("/tenants/:tenant_id/exports", h.History)
	return router
}

func exportSettings() export.AccountingSettings {
	return export.AccountingSettings{
		AdvisorNumber:             "1234567",
		ClientNumber:              "10001",
		ChartOfAccounts:           export.ChartSKR03,
		FiscalYearStart:           "01.01.2025",
		AccountLength:             4,
		CounterpartyAccountLength: 5,
	}
}

func successfulOutcome() *service.ExportOutcome {
	const filename = "EXTF_Buchungsstapel_T1_20250402_20250301-20250331.csv"
	exportedAt := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	return &service.ExportOutcome{
		Result: &export.Result{
			Success:     true,
			RecordCount: 1,
			LineCount:   1,
			Files:       []export.File{{Kind: export.FileBookings, Filename: filename}},
		},
		Record:     &export.ExportRecord{ID: uuid.New(), TenantID: "T1", ExportedAt: exportedAt},
		Encoding:   "windows-1252",
		Contents:   map[string][]byte{filename: []byte("M\xfcller")},
		Locations:  []string{"s3://exports/T1/" + filename},
		ExportedAt: exportedAt,
	}
}

func TestExportHandler_Create(t *testing.T) {
	t.Run("MonthExport", func(t *testing.T) {
		mockService := new(MockExportService)
		mockService.On("Export", mock.Anything, mock.MatchedBy(func(req *service.ExportRequest) bool {
			return req.TenantID == "T1" &&
				req.Type == export.TypeBookingsOnly &&
				req.Range == export.MonthRange(2025, time.March) &&
				req.RequestedBy == "user-17" &&
				req.CorrelationID != "" &&
				req.Settings.AdvisorNumber == "1234567"
		})).Return(successfulOutcome(), nil)

		router := newExportRouter(mockService)
		req := ExportRequest{Month: "2025-03", Settings: exportSettings()}
		rr := performRequestWithHeaders(router, http.MethodPost, "/tenants/T1/exports", req, map[string]string{middleware.PrincipalIDHeader: "user-17"})

		assert.Equal(t, http.StatusCreated, rr.Code)
		body := decode[ExportResponse](t, rr)
		assert.True(t, body.Data.Success)
		require.Len(t, body.Data.Files, 1)
		raw, err := base64.StdEncoding.DecodeString(body.Data.Files[0].Content)
		require.NoError(t, err)
		assert.Equal(t, []byte("M\xfcller"), raw)
		assert.Equal(t, 7, body.Data.Files[0].Size)
		assert.Equal(t, []string{"s3://exports/T1/EXTF_Buchungsstapel_T1_20250402_20250301-20250331.csv"}, body.Data.Locations)
		mockService.AssertExpectations(t)
	})

	t.Run("Download", func(t *testing.T) {
		mockService := new(MockExportService)
		mockService.On("Export", mock.Anything, mock.Anything).Return(successfulOutcome(), nil)

		rr := performRequest(newExportRouter(mockService), http.MethodPost, "/tenants/T1/exports?download=true",
			ExportRequest{From: "2025-03-01", To: "31.03.2025", Settings: exportSettings()})

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=windows-1252", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "EXTF_Buchungsstapel_T1")
		assert.Equal(t, []byte("M\xfcller"), rr.Body.Bytes())
	})

	t.Run("InvalidSettings", func(t *testing.T) {
		mockService := new(MockExportService)
		invalid := &export.InvalidAccountingSettingsError{Violations: []string{"advisor number must be 1-7 digits"}}
		mockService.On("Export", mock.Anything, mock.Anything).Return(&service.ExportOutcome{
			Result: &export.Result{Success: false, Warnings: []string{invalid.Error()}},
		}, invalid)

		rr := performRequest(newExportRouter(mockService), http.MethodPost, "/tenants/T1/exports",
			ExportRequest{Month: "2025-03", Settings: export.AccountingSettings{}})

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		body := decode[ExportResponse](t, rr)
		assert.False(t, body.Data.Success)
		assert.Empty(t, body.Data.Files)
		assert.Equal(t, "INVALID_ACCOUNTING_SETTINGS", body.Error.Code)
	})

	t.Run("InProgress", func(t *testing.T) {
		mockService := new(MockExportService)
		mockService.On("Export", mock.Anything, mock.Anything).Return(nil, service.ErrExportInProgress)

		rr := performRequest(newExportRouter(mockService), http.MethodPost, "/tenants/T1/exports",
			ExportRequest{Month: "2025-03", Settings: exportSettings()})

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("BadMonth", func(t *testing.T) {
		mockService := new(MockExportService)

		rr := performRequest(newExportRouter(mockService), http.MethodPost, "/tenants/T1/exports",
			ExportRequest{Month: "03/2025", Settings: exportSettings()})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
	})

	t.Run("BadType", func(t *testing.T) {
		mockService := new(MockExportService)

		rr := performRequest(newExportRouter(mockService), http.MethodPost, "/tenants/T1/exports",
			ExportRequest{Month: "2025-03", Type: "everything", Settings: exportSettings()})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestExportHandler_History(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockService := new(MockExportService)
		settings := exportSettings()
		mockService.On("History", mock.Anything, "T1", 5).Return(&service.ExportHistory{
			Records:        []*export.ExportRecord{{ID: uuid.New(), TenantID: "T1", Settings: settings}},
			LatestSettings: &settings,
		}, nil)

		rr := performRequest(newExportRouter(mockService), http.MethodGet, "/tenants/T1/exports?limit=5", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decode[service.ExportHistory](t, rr)
		require.NotNil(t, body.Data.LatestSettings)
		assert.Equal(t, "10001", body.Data.LatestSettings.ClientNumber)
		assert.Len(t, body.Data.Records, 1)
	})

	t.Run("LimitOutOfRange", func(t *testing.T) {
		mockService := new(MockExportService)

		rr := performRequest(newExportRouter(mockService), http.MethodGet, "/tenants/T1/exports?limit=1000", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
