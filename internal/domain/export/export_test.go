package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func validSettings() AccountingSettings {
	return AccountingSettings{
		AdvisorNumber:             "1234567",
		ClientNumber:              "10001",
		ChartOfAccounts:           ChartSKR03,
		FiscalYearStart:           "01.01.2025",
		AccountLength:             4,
		CounterpartyAccountLength: 5,
	}
}

func testEncoder() *Encoder {
	return &Encoder{AppName: "ledger-pipeline", Now: func() time.Time { return fixedNow }}
}

func invoice(number string, cents int64, date time.Time, status document.Status) *document.FinancialDocument {
	return &document.FinancialDocument{
		ID:               uuid.New(),
		TenantID:         "T1",
		Type:             document.TypeInvoice,
		DocumentNumber:   number,
		CounterpartyName: "Mustermann GmbH",
		Amount:           cents,
		TaxRate:          19,
		Date:             &date,
		Status:           status,
		Currency:         "EUR",
	}
}

func march() DateRange {
	return MonthRange(2025, time.March)
}

func TestAccountingSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *AccountingSettings)
		wantErr bool
	}{
		{"Valid", func(s *AccountingSettings) {}, false},
		{"AccountLengthTooShort", func(s *AccountingSettings) { s.AccountLength = 3 }, true},
		{"AccountLengthTooLong", func(s *AccountingSettings) { s.AccountLength = 9 }, true},
		{"AccountLengthUpperBound", func(s *AccountingSettings) { s.AccountLength = 8 }, false},
		{"CounterpartyLengthTooShort", func(s *AccountingSettings) { s.CounterpartyAccountLength = 4 }, true},
		{"CounterpartyLengthUpperBound", func(s *AccountingSettings) { s.CounterpartyAccountLength = 9 }, false},
		{"CounterpartyLengthTooLong", func(s *AccountingSettings) { s.CounterpartyAccountLength = 10 }, true},
		{"UnknownChart", func(s *AccountingSettings) { s.ChartOfAccounts = "SKR99" }, true},
		{"AdvisorNotNumeric", func(s *AccountingSettings) { s.AdvisorNumber = "12AB" }, true},
		{"ClientTooLong", func(s *AccountingSettings) { s.ClientNumber = "123456" }, true},
		{"FiscalYearISO", func(s *AccountingSettings) { s.FiscalYearStart = "2025-01-01" }, false},
		{"FiscalYearGarbage", func(s *AccountingSettings) { s.FiscalYearStart = "soon" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAccountingSettings))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDateRange_Validate(t *testing.T) {
	assert.NoError(t, march().Validate())

	crossYear := DateRange{From: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)}
	assert.ErrorIs(t, crossYear.Validate(), ErrInvalidAccountingSettings)

	reversed := DateRange{From: march().To, To: march().From}
	assert.ErrorIs(t, reversed.Validate(), ErrInvalidAccountingSettings)

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), MonthRange(2024, time.February).To)
}

func TestChartAccounts(t *testing.T) {
	skr03, skr04 := ChartFor(ChartSKR03), ChartFor(ChartSKR04)

	assert.Equal(t, 8400, skr03.RevenueAccount(19))
	assert.Equal(t, 8300, skr03.RevenueAccount(7))
	assert.Equal(t, 4400, skr04.RevenueAccount(19))
	assert.Equal(t, 4300, skr04.RevenueAccount(7))

	assert.Equal(t, 4930, skr03.ExpenseAccount("Bürobedarf", ""))
	assert.Equal(t, 6815, skr04.ExpenseAccount("Office supplies", ""))
	assert.Equal(t, 4660, skr03.ExpenseAccount("", "Reisekosten Vertrieb"))
	assert.Equal(t, 4900, skr03.ExpenseAccount("Sonstiges", ""))

	assert.Equal(t, "84000000", PadAccount(8400, 8))
	assert.Equal(t, "8400", PadAccount(8400, 4))
}

func TestCounterpartyAccount(t *testing.T) {
	debtor := CounterpartyAccount("Mustermann GmbH", false, 5)
	creditor := CounterpartyAccount("Mustermann GmbH", true, 5)

	assert.Len(t, debtor, 5)
	assert.Len(t, creditor, 5)
	assert.True(t, strings.HasPrefix(debtor, "1"))
	assert.True(t, strings.HasPrefix(creditor, "7"))
	assert.Equal(t, debtor, CounterpartyAccount("  mustermann   GMBH ", false, 5), "name normalization keeps the account stable")
	assert.Len(t, CounterpartyAccount("Mustermann GmbH", true, 9), 9)
}

func TestTaxKey(t *testing.T) {
	assert.Equal(t, "3", TaxKey(19, false))
	assert.Equal(t, "2", TaxKey(7, false))
	assert.Equal(t, "9", TaxKey(19, true))
	assert.Equal(t, "8", TaxKey(7, true))
	assert.Equal(t, "", TaxKey(0, false))
}

func TestSelectable(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name          string
		doc           *document.FinancialDocument
		includeUnpaid bool
		want          bool
	}{
		{"Paid", invoice("RE-1", 100, date, document.StatusPaid), false, true},
		{"Booked", invoice("RE-1", 100, date, document.StatusBooked), false, true},
		{"FinalizedExcludedByDefault", invoice("RE-1", 100, date, document.StatusFinalized), false, false},
		{"FinalizedWithUnpaid", invoice("RE-1", 100, date, document.StatusFinalized), true, true},
		{"DraftNever", invoice("", 100, date, document.StatusDraft), true, false},
		{"QuoteNever", func() *document.FinancialDocument {
			d := invoice("AN-1", 100, date, document.StatusPaid)
			d.Type = document.TypeQuote
			return d
		}(), true, false},
		{"StornoAlways", func() *document.FinancialDocument {
			d := invoice("ST-1", 100, date, document.StatusFinalized)
			d.IsStorno, d.OriginalNumber = true, "RE-1"
			return d
		}(), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Selectable(tt.doc, tt.includeUnpaid))
		})
	}
}

func TestEncode_OnlyPaidWithoutIncludeUnpaid(t *testing.T) {
	paid := invoice("RE-1000", 11900, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	draft := invoice("", 5000, time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC), document.StatusDraft)

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Type:      TypeBookingsOnly,
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{paid, draft},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.RecordCount)
	assert.Equal(t, []uuid.UUID{paid.ID}, res.IncludedDocuments)
	require.Len(t, res.Files, 1)

	batch, err := Decode(res.Files[0].Content)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.RecordCount)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "RE-1000", batch.Lines[0].DocumentNumber)
}

func TestEncode_RoundTrip(t *testing.T) {
	doc := invoice("RE-1042", 12345, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	doc.CostCenter = "KST-100"

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{doc},
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)

	content := res.Files[0].Content
	assert.Contains(t, content, "123,45;\"S\";\"EUR\"")
	assert.True(t, strings.HasSuffix(content, "\r\n"))

	batch, err := Decode(content)
	require.NoError(t, err)
	assert.Equal(t, "1234567", batch.AdvisorNumber)
	assert.Equal(t, "10001", batch.ClientNumber)
	assert.Equal(t, ChartSKR03, batch.ChartOfAccounts)
	assert.Equal(t, 4, batch.AccountLength)

	require.Len(t, batch.Lines, 1)
	line := batch.Lines[0]
	assert.Equal(t, int64(12345), line.Amount)
	assert.Equal(t, Debit, line.DebitCredit)
	assert.Equal(t, "EUR", line.Currency)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), line.Date)
	assert.Equal(t, "RE-1042", line.DocumentNumber)
	assert.Equal(t, "8400", line.ContraAccount)
	assert.Equal(t, CounterpartyAccount("Mustermann GmbH", false, 5), line.Account)
	assert.Equal(t, "3", line.TaxKey)
	assert.Equal(t, "KST-100", line.CostCenter)
	assert.Equal(t, doc.ID.String(), line.DocumentID)
}

func TestEncode_StornoInvertsAndReferencesOriginal(t *testing.T) {
	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	storno := invoice("ST-7", 5000, date, document.StatusFinalized)
	storno.IsStorno = true
	storno.OriginalNumber = "RE-1001"

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{storno},
	})
	require.NoError(t, err)

	batch, err := Decode(res.Files[0].Content)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, Credit, batch.Lines[0].DebitCredit)
	assert.Equal(t, int64(5000), batch.Lines[0].Amount, "amount stays positive")
	assert.Equal(t, "RE-1001", batch.Lines[0].OriginalNumber)
}

func TestEncode_PartialFailureStillSucceeds(t *testing.T) {
	good := invoice("RE-1", 1000, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	noName := invoice("RE-2", 2000, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	noName.CounterpartyName = " "
	noDate := invoice("RE-3", 3000, time.Time{}, document.StatusPaid)
	noDate.Date = nil

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{good, noName, noDate},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordCount)
	require.Len(t, res.Skipped, 2)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, "RE-2", res.Skipped[0].DocumentNumber)
	assert.Contains(t, res.Skipped[0].Reasons, "missing counterparty name")
	assert.Contains(t, res.Skipped[1].Reasons, "missing document date")
}

func TestEncode_SkipsMalformedCurrency(t *testing.T) {
	good := invoice("RE-1", 1000, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	quoted := invoice("RE-2", 2000, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	quoted.Currency = `A"B`

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{good, quoted},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordCount)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Reasons, "invalid currency code")
	for _, f := range res.Files {
		assert.NotContains(t, f.Content, `A"B`)
	}
}

func TestEncode_InvalidSettingsProducesNoFile(t *testing.T) {
	settings := validSettings()
	settings.AccountLength = 12

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  settings,
		Documents: []*document.FinancialDocument{invoice("RE-1", 1000, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), document.StatusPaid)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAccountingSettings)
	assert.False(t, res.Success)
	assert.Empty(t, res.Files)
}

func TestEncode_PaymentLineForLinkedDocument(t *testing.T) {
	doc := invoice("RE-5", 4999, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	link := &reconciliation.TransactionLink{
		DocumentID:  doc.ID,
		Transaction: reconciliation.TransactionSnapshot{BookingDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), Amount: 4999},
	}

	res, err := testEncoder().Encode(Input{
		TenantID:  "T1",
		Range:     march(),
		Settings:  validSettings(),
		Documents: []*document.FinancialDocument{doc},
		Links:     map[uuid.UUID]*reconciliation.TransactionLink{doc.ID: link},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordCount)
	assert.Equal(t, 2, res.LineCount)

	batch, err := Decode(res.Files[0].Content)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, "1200", batch.Lines[1].Account)
	assert.Equal(t, batch.Lines[0].Account, batch.Lines[1].ContraAccount)
	assert.Equal(t, 12, batch.Lines[1].Date.Day())
}

func TestEncode_ExpenseUsesCreditorAndExpenseAccount(t *testing.T) {
	doc := invoice("AG-0001", 2380, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	doc.Type = document.TypeExpense
	doc.Category = "Telefon"

	settings := validSettings()
	settings.ChartOfAccounts = ChartSKR04
	settings.AccountLength = 6

	res, err := testEncoder().Encode(Input{TenantID: "T1", Range: march(), Settings: settings, Documents: []*document.FinancialDocument{doc}})
	require.NoError(t, err)

	batch, err := Decode(res.Files[0].Content)
	require.NoError(t, err)
	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "680500", batch.Lines[0].Account)
	assert.True(t, strings.HasPrefix(batch.Lines[0].ContraAccount, "7"))
	assert.Equal(t, "9", batch.Lines[0].TaxKey)
}

func TestEncode_BothFilesAndDeterministicNames(t *testing.T) {
	doc := invoice("RE-9", 1000, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), document.StatusPaid)

	in := Input{TenantID: "acme/berlin", Range: march(), Type: TypeBoth, Settings: validSettings(), Documents: []*document.FinancialDocument{doc}}
	doc.TenantID = in.TenantID

	first, err := testEncoder().Encode(in)
	require.NoError(t, err)
	second, err := testEncoder().Encode(in)
	require.NoError(t, err)

	require.Len(t, first.Files, 2)
	assert.Equal(t, "EXTF_Buchungsstapel_acme_berlin_20250402_20250301-20250331.csv", first.Files[0].Filename)
	assert.Equal(t, "DOCS_Belege_acme_berlin_20250402_20250301-20250331.csv", first.Files[1].Filename)
	assert.Equal(t, first.Files[0].Content, second.Files[0].Content)
	assert.Contains(t, first.Files[1].Content, "\"RE-9\";\"invoice\";20250320;10,00")
}

func TestEncode_SanitizesFreeText(t *testing.T) {
	doc := invoice("RE-10", 1000, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	doc.Description = "Beratung; \"Phase 1\"\nund eine sehr lange Beschreibung die deutlich über sechzig Zeichen hinausgeht"

	res, err := testEncoder().Encode(Input{TenantID: "T1", Range: march(), Settings: validSettings(), Documents: []*document.FinancialDocument{doc}})
	require.NoError(t, err)

	batch, err := Decode(res.Files[0].Content)
	require.NoError(t, err)
	text := batch.Lines[0].Description
	assert.NotContains(t, text, ";")
	assert.NotContains(t, text, "\"")
	assert.LessOrEqual(t, len([]rune(text)), 60)
	assert.True(t, strings.HasPrefix(text, "Beratung Phase 1 und"))
}

func TestDecode_RejectsMismatchedRecordCount(t *testing.T) {
	doc := invoice("RE-1", 1000, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), document.StatusPaid)
	res, err := testEncoder().Encode(Input{TenantID: "T1", Range: march(), Settings: validSettings(), Documents: []*document.FinancialDocument{doc}})
	require.NoError(t, err)

	tampered := strings.TrimSuffix(res.Files[0].Content, "\r\n")
	tampered = tampered[:strings.LastIndex(tampered, "\r\n")+2]

	_, err = Decode(tampered)
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestEncodeCharset(t *testing.T) {
	raw, err := EncodeCharset("Bürobedarf Straße", CharsetWindows1252)
	require.NoError(t, err)
	assert.Equal(t, []byte{'B', 0xFC, 'r', 'o', 'b', 'e', 'd', 'a', 'r', 'f', ' ', 'S', 't', 'r', 'a', 0xDF, 'e'}, raw)

	back, err := DecodeCharset(raw, CharsetWindows1252)
	require.NoError(t, err)
	assert.Equal(t, "Bürobedarf Straße", back)

	_, err = EncodeCharset("x", "ebcdic")
	assert.ErrorIs(t, err, ErrUnsupportedCharset)
}

func TestNewRecord(t *testing.T) {
	in := Input{TenantID: "T1", Range: march(), Type: TypeBookingsOnly, Settings: validSettings()}
	res := &Result{Success: true, RecordCount: 3, LineCount: 4, Skipped: []SkippedDocument{{DocumentNumber: "RE-2"}}, Warnings: []string{"w"}}

	rec := NewRecord(in, res, "user-1", fixedNow)
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, 3, rec.IncludedCount)
	assert.Equal(t, 1, rec.SkippedCount)
	assert.Equal(t, "user-1", rec.ExportedBy)
	assert.Equal(t, fixedNow, rec.ExportedAt)
}
