package export

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

const (
	formatVersion   = 700
	formatCategory  = 21
	formatName      = "Buchungsstapel"
	categoryVersion = 12

	maxBelegfeldLen      = 36
	maxBookingTextLen    = 60
	maxCostCenterLen     = 36
	manifestFormatMarker = "DOCS"
	lineBreak            = "\r\n"
)

// Booking batch columns, in file order.
var bookingColumns = []string{
	"Umsatz (ohne Soll/Haben-Kz)",
	"Soll/Haben-Kennzeichen",
	"WKZ Umsatz",
	"Kurs",
	"Basis-Umsatz",
	"WKZ Basis-Umsatz",
	"Konto",
	"Gegenkonto (ohne BU-Schlüssel)",
	"BU-Schlüssel",
	"Belegdatum",
	"Belegfeld 1",
	"Belegfeld 2",
	"Skonto",
	"Buchungstext",
	"Beleglink",
	"KOST1 - Kostenstelle",
	"KOST2 - Kostenstelle",
}

var manifestColumns = []string{
	"Belegnummer",
	"Belegtyp",
	"Belegdatum",
	"Betrag",
	"WKZ",
	"Geschäftspartner",
	"Status",
	"Storno zu",
	"Dokument-ID",
}

// FileKind distinguishes the booking batch from the document manifest
type FileKind string

const (
	FileBookings  FileKind = "bookings"
	FileDocuments FileKind = "documents"
)

// File is one encoded output. Content is UTF-8; see EncodeCharset.
type File struct {
	Kind     FileKind `json:"kind" bson:"kind"`
	Filename string   `json:"filename" bson:"filename"`
	Content  string   `json:"-" bson:"-"`
}

// SkippedDocument is a document excluded from the export with its reasons.
type SkippedDocument struct {
	DocumentID     uuid.UUID `json:"document_id" bson:"document_id"`
	DocumentNumber string    `json:"document_number,omitempty" bson:"document_number,omitempty"`
	Reasons        []string  `json:"reasons" bson:"reasons"`
}

// Input is everything one export needs. Links are keyed by document ID.
type Input struct {
	TenantID      string
	Range         DateRange
	Type          Type
	Settings      AccountingSettings
	IncludeUnpaid bool
	Documents     []*document.FinancialDocument
	Links         map[uuid.UUID]*reconciliation.TransactionLink
}

// Result of one export. Success is false only for structural failures, in
// which case no files are produced.
type Result struct {
	Success           bool
	Files             []File
	RecordCount       int // documents included
	LineCount         int // booking lines written
	IncludedDocuments []uuid.UUID
	Skipped           []SkippedDocument
	Warnings          []string
}

// Encoder serializes documents. Now is injectable so that file names and
// header timestamps are reproducible in tests.
type Encoder struct {
	AppName string
	Now     func() time.Time
}

// NewEncoder creates an encoder stamping appName into every header
func NewEncoder(appName string) *Encoder {
	return &Encoder{AppName: appName, Now: func() time.Time { return time.Now().UTC() }}
}

// Encode selects, validates and serializes the input. It returns an
// *InvalidAccountingSettingsError, together with an unsuccessful result,
// when the settings or the range are structurally invalid.
func (e *Encoder) Encode(in Input) (*Result, error) {
	if err := in.Settings.Validate(); err != nil {
		return &Result{Success: false, Warnings: []string{err.Error()}}, err
	}
	if err := in.Range.Validate(); err != nil {
		return &Result{Success: false, Warnings: []string{err.Error()}}, err
	}
	if in.Type == "" {
		in.Type = TypeBookingsOnly
	}

	now := e.Now()
	result := &Result{Success: true, Warnings: []string{}}

	var included []*document.FinancialDocument
	var lines []BookingLine
	for _, doc := range in.Documents {
		if doc.TenantID != in.TenantID || !Selectable(doc, in.IncludeUnpaid) {
			continue
		}
		if doc.Date != nil && !in.Range.Contains(*doc.Date) {
			continue
		}
		if err := ValidateDocument(doc); err != nil {
			vErr := err.(*DocumentValidationFailedError)
			result.Skipped = append(result.Skipped, SkippedDocument{
				DocumentID:     doc.ID,
				DocumentNumber: doc.DocumentNumber,
				Reasons:        vErr.Reasons,
			})
			result.Warnings = append(result.Warnings, vErr.Error())
			continue
		}
		included = append(included, doc)
		lines = append(lines, BuildBookingLines(doc, in.Links[doc.ID], in.Settings)...)
	}

	SortLines(lines)
	sort.SliceStable(included, func(i, j int) bool {
		a, b := dateOnly(*included[i].Date), dateOnly(*included[j].Date)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return included[i].DocumentNumber < included[j].DocumentNumber
	})

	for _, doc := range included {
		result.IncludedDocuments = append(result.IncludedDocuments, doc.ID)
	}
	result.RecordCount = len(included)
	result.LineCount = len(lines)

	if in.Type.includesBookings() {
		result.Files = append(result.Files, File{
			Kind:     FileBookings,
			Filename: BookingsFilename(in.TenantID, now, in.Range),
			Content:  e.encodeBookings(lines, in, now),
		})
	}
	if in.Type.includesDocuments() {
		result.Files = append(result.Files, File{
			Kind:     FileDocuments,
			Filename: DocumentsFilename(in.TenantID, now, in.Range),
			Content:  encodeManifest(included, in, now),
		})
	}

	if len(included) == 0 {
		result.Warnings = append(result.Warnings, "no documents matched the export criteria")
	}
	return result, nil
}

func (e *Encoder) encodeBookings(lines []BookingLine, in Input, now time.Time) string {
	var b strings.Builder

	fyStart, _ := in.Settings.FiscalYearStartDate()
	fest := "0"
	if in.Settings.Festschreibung {
		fest = "1"
	}
	header := []string{
		quote("EXTF"),
		strconv.Itoa(formatVersion),
		strconv.Itoa(formatCategory),
		quote(formatName),
		strconv.Itoa(categoryVersion),
		now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond)),
		"",
		quote("DE"),
		quote(sanitizeText(e.AppName, 25)),
		quote(""),
		in.Settings.AdvisorNumber,
		in.Settings.ClientNumber,
		fyStart.Format("20060102"),
		strconv.Itoa(in.Settings.AccountLength),
		in.Range.From.Format("20060102"),
		in.Range.To.Format("20060102"),
		quote(""),
		quote(""),
		fest,
		quote("EUR"),
		quote(string(in.Settings.ChartOfAccounts)),
		strconv.Itoa(len(lines)),
	}
	writeRow(&b, header)
	writeRow(&b, quoteAll(bookingColumns))

	for _, l := range lines {
		writeRow(&b, []string{
			shared.FormatAmountComma(l.Amount),
			quote(string(l.DebitCredit)),
			quote(l.Currency),
			"",
			"",
			"",
			l.Account,
			l.ContraAccount,
			quote(l.TaxKey),
			l.Date.Format("0201"),
			quote(sanitizeText(l.DocumentNumber, maxBelegfeldLen)),
			quote(sanitizeText(l.OriginalNumber, maxBelegfeldLen)),
			"",
			quote(sanitizeText(l.Description, maxBookingTextLen)),
			quote(l.DocumentID.String()),
			quote(sanitizeText(l.CostCenter, maxCostCenterLen)),
			quote(""),
		})
	}
	return b.String()
}

func encodeManifest(docs []*document.FinancialDocument, in Input, now time.Time) string {
	var b strings.Builder
	writeRow(&b, []string{
		quote(manifestFormatMarker),
		"1",
		quote("Belege"),
		now.Format("20060102150405"),
		quote(sanitizeText(in.TenantID, maxBelegfeldLen)),
		in.Range.From.Format("20060102"),
		in.Range.To.Format("20060102"),
		strconv.Itoa(len(docs)),
	})
	writeRow(&b, quoteAll(manifestColumns))

	for _, d := range docs {
		writeRow(&b, []string{
			quote(sanitizeText(d.DocumentNumber, maxBelegfeldLen)),
			quote(string(d.Type)),
			d.Date.Format("20060102"),
			shared.FormatAmountComma(d.Amount),
			quote(d.Currency),
			quote(sanitizeText(d.CounterpartyName, maxBookingTextLen)),
			quote(string(d.Status)),
			quote(sanitizeText(d.OriginalNumber, maxBelegfeldLen)),
			quote(d.ID.String()),
		})
	}
	return b.String()
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// BookingsFilename is deterministic in tenant, export day and range.
func BookingsFilename(tenantID string, exportedAt time.Time, r DateRange) string {
	return filename("EXTF_Buchungsstapel", tenantID, exportedAt, r)
}

// DocumentsFilename names the manifest file of the same export
func DocumentsFilename(tenantID string, exportedAt time.Time, r DateRange) string {
	return filename("DOCS_Belege", tenantID, exportedAt, r)
}

func filename(prefix, tenantID string, exportedAt time.Time, r DateRange) string {
	tenant := strings.Trim(unsafeFilenameChars.ReplaceAllString(tenantID, "_"), "_")
	return fmt.Sprintf("%s_%s_%s_%s-%s.csv",
		prefix, tenant,
		exportedAt.Format("20060102"),
		r.From.Format("20060102"), r.To.Format("20060102"))
}

func writeRow(b *strings.Builder, fields []string) {
	b.WriteString(strings.Join(fields, ";"))
	b.WriteString(lineBreak)
}

func quote(s string) string {
	return `"` + s + `"`
}

func quoteAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = quote(f)
	}
	return out
}

// sanitizeText strips characters that would break the row structure and
// truncates to limit runes.
func sanitizeText(s string, limit int) string {
	s = strings.NewReplacer(`"`, "", ";", " ", "\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return s
}
