package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

type fakeExportLock struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func (l *fakeExportLock) Acquire(_ context.Context, tenantID string, r export.DateRange) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	key := tenantID + r.From.String() + r.To.String()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
		return nil
	}, true, nil
}

type fakeSink struct {
	puts map[string][]byte
	err  error
}

func (s *fakeSink) Put(_ context.Context, tenantID, filename string, content []byte, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.puts == nil {
		s.puts = make(map[string][]byte)
	}
	s.puts[filename] = content
	return "s3://exports/" + tenantID + "/" + filename, nil
}

func validSettings() export.AccountingSettings {
	return export.AccountingSettings{
		AdvisorNumber:             "1234567",
		ClientNumber:              "10001",
		ChartOfAccounts:           export.ChartSKR03,
		FiscalYearStart:           "01.01.2025",
		AccountLength:             4,
		CounterpartyAccountLength: 5,
	}
}

func paidInvoice(number string, cents int64, day int) *document.FinancialDocument {
	date := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
	return &document.FinancialDocument{
		ID:               uuid.New(),
		TenantID:         "T1",
		Type:             document.TypeInvoice,
		DocumentNumber:   number,
		CounterpartyName: "Muster GmbH",
		Amount:           cents,
		TaxRate:          19,
		Date:             &date,
		Status:           document.StatusPaid,
		Currency:         "EUR",
	}
}

type exportFixture struct {
	svc     *ExportServiceImpl
	docs    *MockDocumentRepository
	links   *MockLinkRepository
	records *MockExportRecordRepository
	lock    *fakeExportLock
	sink    *fakeSink
}

func newExportFixture(withSink bool) *exportFixture {
	f := &exportFixture{
		docs:    new(MockDocumentRepository),
		links:   new(MockLinkRepository),
		records: new(MockExportRecordRepository),
		lock:    &fakeExportLock{},
	}
	var sink ExportSink
	if withSink {
		f.sink = &fakeSink{}
		sink = f.sink
	}
	cfg := &config.ExportConfig{Encoding: export.CharsetUTF8, AppName: "ledger-integrity"}
	f.svc = NewExportService(discardLogger(), cfg, f.docs, f.links, f.records, f.lock, sink)
	return f
}

func marchRequest() *ExportRequest {
	return &ExportRequest{
		TenantID:    "T1",
		Range:       export.MonthRange(2025, time.March),
		Settings:    validSettings(),
		RequestedBy: "user-1",
	}
}

func TestExportService_Export(t *testing.T) {
	t.Run("EncodesUploadsAndRecords", func(t *testing.T) {
		f := newExportFixture(true)
		doc := paidInvoice("RE-1000", 12345, 10)
		broken := paidInvoice("RE-1001", 5000, 11)
		broken.CounterpartyName = ""

		f.docs.On("ListByDateRange", mock.Anything, "T1", mock.Anything, mock.Anything).
			Return([]*document.FinancialDocument{doc, broken}, nil)
		f.links.On("ListByDocumentIDs", mock.Anything, "T1", []uuid.UUID{doc.ID, broken.ID}).
			Return([]*reconciliation.TransactionLink{}, nil)
		f.records.On("Append", mock.Anything, mock.AnythingOfType("*export.ExportRecord")).Return(nil)

		out, err := f.svc.Export(context.Background(), marchRequest())
		require.NoError(t, err)

		assert.True(t, out.Result.Success)
		assert.Equal(t, 1, out.Result.RecordCount)
		require.Len(t, out.Result.Skipped, 1)
		assert.Equal(t, "RE-1001", out.Result.Skipped[0].DocumentNumber)
		require.Len(t, out.Locations, 1)
		assert.Contains(t, out.Locations[0], "EXTF_Buchungsstapel_T1_")

		require.NotNil(t, out.Record)
		assert.Equal(t, "user-1", out.Record.ExportedBy)
		assert.Equal(t, out.Locations, out.Record.Locations)
		assert.Equal(t, 1, out.Record.SkippedCount)

		file := out.Result.Files[0]
		batch, err := export.Decode(string(out.Contents[file.Filename]))
		require.NoError(t, err)
		require.Len(t, batch.Lines, 1)
		assert.Equal(t, int64(12345), batch.Lines[0].Amount)
		assert.Equal(t, "RE-1000", batch.Lines[0].DocumentNumber)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), batch.Lines[0].Date)

		assert.Equal(t, out.Contents[file.Filename], f.sink.puts[file.Filename])
		assert.Equal(t, 1, f.lock.released)
		f.records.AssertExpectations(t)
	})

	t.Run("LinkedDocumentGetsPaymentLine", func(t *testing.T) {
		f := newExportFixture(false)
		doc := paidInvoice("RE-1000", 11900, 10)
		link := &reconciliation.TransactionLink{
			ID:            reconciliation.LinkID("tx-1", doc.ID),
			TenantID:      "T1",
			TransactionID: "tx-1",
			DocumentID:    doc.ID,
			Transaction:   reconciliation.TransactionSnapshot{BookingDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), Amount: 11900},
		}

		f.docs.On("ListByDateRange", mock.Anything, "T1", mock.Anything, mock.Anything).Return([]*document.FinancialDocument{doc}, nil)
		f.links.On("ListByDocumentIDs", mock.Anything, "T1", mock.Anything).Return([]*reconciliation.TransactionLink{link}, nil)
		f.records.On("Append", mock.Anything, mock.Anything).Return(nil)

		out, err := f.svc.Export(context.Background(), marchRequest())
		require.NoError(t, err)
		assert.Equal(t, 2, out.Result.LineCount)
		assert.Empty(t, out.Locations)
	})

	t.Run("InvalidSettingsProduceNothing", func(t *testing.T) {
		f := newExportFixture(true)
		req := marchRequest()
		req.Settings.AdvisorNumber = "12345678"
		req.Range = export.DateRange{
			From: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		}

		out, err := f.svc.Export(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, export.ErrInvalidAccountingSettings)

		var settingsErr *export.InvalidAccountingSettingsError
		require.True(t, errors.As(err, &settingsErr))
		assert.Len(t, settingsErr.Violations, 2)

		require.NotNil(t, out)
		assert.False(t, out.Result.Success)
		assert.Empty(t, out.Result.Files)
		f.docs.AssertNotCalled(t, "ListByDateRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.records.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		assert.Empty(t, f.sink.puts)
	})

	t.Run("ConcurrentExportIsRejected", func(t *testing.T) {
		f := newExportFixture(false)
		req := marchRequest()
		release, ok, err := f.lock.Acquire(context.Background(), req.TenantID, req.Range)
		require.NoError(t, err)
		require.True(t, ok)
		defer func() { _ = release(context.Background()) }()

		_, err = f.svc.Export(context.Background(), req)
		assert.ErrorIs(t, err, ErrExportInProgress)
	})

	t.Run("Windows1252Output", func(t *testing.T) {
		f := newExportFixture(false)
		doc := paidInvoice("RE-1000", 12345, 10)
		doc.CounterpartyName = "Müller & Söhne"

		f.docs.On("ListByDateRange", mock.Anything, "T1", mock.Anything, mock.Anything).Return([]*document.FinancialDocument{doc}, nil)
		f.links.On("ListByDocumentIDs", mock.Anything, "T1", mock.Anything).Return(nil, nil)
		f.records.On("Append", mock.Anything, mock.Anything).Return(nil)

		req := marchRequest()
		req.Encoding = export.CharsetWindows1252
		out, err := f.svc.Export(context.Background(), req)
		require.NoError(t, err)

		raw := out.Contents[out.Result.Files[0].Filename]
		assert.Contains(t, string(raw), "M\xfcller")
		decoded, err := export.DecodeCharset(raw, export.CharsetWindows1252)
		require.NoError(t, err)
		assert.Equal(t, out.Result.Files[0].Content, decoded)
	})

	t.Run("UnsupportedEncoding", func(t *testing.T) {
		f := newExportFixture(false)
		req := marchRequest()
		req.Encoding = "latin-9"

		_, err := f.svc.Export(context.Background(), req)
		assert.ErrorIs(t, err, export.ErrUnsupportedCharset)
	})

	t.Run("SinkFailureReleasesLockAndSkipsRecord", func(t *testing.T) {
		f := newExportFixture(true)
		f.sink.err = errors.New("access denied")
		doc := paidInvoice("RE-1000", 12345, 10)

		f.docs.On("ListByDateRange", mock.Anything, "T1", mock.Anything, mock.Anything).Return([]*document.FinancialDocument{doc}, nil)
		f.links.On("ListByDocumentIDs", mock.Anything, "T1", mock.Anything).Return(nil, nil)

		_, err := f.svc.Export(context.Background(), marchRequest())
		assert.EqualError(t, err, "access denied")
		assert.Equal(t, 1, f.lock.released)
		f.records.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})
}

func TestExportService_History(t *testing.T) {
	t.Run("ReturnsLatestSettings", func(t *testing.T) {
		f := newExportFixture(false)
		newest := &export.ExportRecord{ID: uuid.New(), Settings: validSettings()}
		older := &export.ExportRecord{ID: uuid.New()}
		f.records.On("ListByTenant", mock.Anything, "T1", 10).Return([]*export.ExportRecord{newest, older}, nil)

		history, err := f.svc.History(context.Background(), "T1", 10)
		require.NoError(t, err)
		assert.Len(t, history.Records, 2)
		require.NotNil(t, history.LatestSettings)
		assert.Equal(t, "1234567", history.LatestSettings.AdvisorNumber)
	})

	t.Run("NoHistory", func(t *testing.T) {
		f := newExportFixture(false)
		f.records.On("ListByTenant", mock.Anything, "T1", 0).Return([]*export.ExportRecord{}, nil)

		history, err := f.svc.History(context.Background(), "T1", 0)
		require.NoError(t, err)
		assert.Empty(t, history.Records)
		assert.Nil(t, history.LatestSettings)
	})
}
