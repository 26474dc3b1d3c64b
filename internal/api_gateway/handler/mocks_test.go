package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

// envelope is Response with a typed payload, for decoding in tests
type envelope[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	return performRequestWithHeaders(router, method, path, body, nil)
}

func performRequestWithHeaders(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}

	req, _ := http.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type MockSequenceService struct {
	mock.Mock
}

func (m *MockSequenceService) Allocate(ctx context.Context, tenantID string, t sequence.Type) (*service.Allocation, error) {
	args := m.Called(ctx, tenantID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Allocation), args.Error(1)
}

func (m *MockSequenceService) AllocateTx(ctx context.Context, repo sequence.Repository, tenantID string, t sequence.Type) (*service.Allocation, error) {
	args := m.Called(ctx, repo, tenantID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Allocation), args.Error(1)
}

func (m *MockSequenceService) Resync(ctx context.Context, tenantID string, t sequence.Type) (*service.ResyncResult, error) {
	args := m.Called(ctx, tenantID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ResyncResult), args.Error(1)
}

func (m *MockSequenceService) BootstrapDefaults(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sequence.NumberSequence), args.Error(1)
}

func (m *MockSequenceService) List(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sequence.NumberSequence), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, tenantID string, docType document.Type, payload document.Payload) (*document.FinancialDocument, []string, error) {
	args := m.Called(ctx, tenantID, docType, payload)
	var warnings []string
	if args.Get(1) != nil {
		warnings = args.Get(1).([]string)
	}
	if args.Get(0) == nil {
		return nil, warnings, args.Error(2)
	}
	return args.Get(0).(*document.FinancialDocument), warnings, args.Error(2)
}

func (m *MockDocumentService) Finalize(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return m.single(m.Called(ctx, tenantID, id))
}

func (m *MockDocumentService) Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, *document.FinancialDocument, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*document.FinancialDocument), args.Get(1).(*document.FinancialDocument), args.Error(2)
}

func (m *MockDocumentService) MarkPaid(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return m.single(m.Called(ctx, tenantID, id))
}

func (m *MockDocumentService) MarkBooked(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return m.single(m.Called(ctx, tenantID, id))
}

func (m *MockDocumentService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*document.FinancialDocument, error) {
	return m.single(m.Called(ctx, tenantID, id))
}

func (m *MockDocumentService) single(args mock.Arguments) (*document.FinancialDocument, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.FinancialDocument), args.Error(1)
}

type MockBankTransactionService struct {
	mock.Mock
}

func (m *MockBankTransactionService) Import(ctx context.Context, tenantID string, txs []*banking.Transaction) (*service.ImportResult, error) {
	args := m.Called(ctx, tenantID, txs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImportResult), args.Error(1)
}

func (m *MockBankTransactionService) Get(ctx context.Context, tenantID, id string) (*banking.Transaction, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*banking.Transaction), args.Error(1)
}

type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) Export(ctx context.Context, req *service.ExportRequest) (*service.ExportOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportOutcome), args.Error(1)
}

func (m *MockExportService) History(ctx context.Context, tenantID string, limit int) (*service.ExportHistory, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportHistory), args.Error(1)
}

type MockLinkService struct {
	mock.Mock
}

func (m *MockLinkService) GetByDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.TransactionLink), args.Error(1)
}

func (m *MockLinkService) UpdateBookingStatus(ctx context.Context, tenantID string, documentID uuid.UUID, status reconciliation.BookingStatus) (*reconciliation.TransactionLink, error) {
	args := m.Called(ctx, tenantID, documentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.TransactionLink), args.Error(1)
}
