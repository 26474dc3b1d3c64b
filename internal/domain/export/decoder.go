package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

var ErrMalformedFile = errors.New("malformed booking batch")

// Header field positions in the EXTF header row.
const (
	hdrMarker        = 0
	hdrAdvisor       = 10
	hdrClient        = 11
	hdrFiscalYear    = 12
	hdrAccountLength = 13
	hdrFrom          = 14
	hdrTo            = 15
	hdrFest          = 18
	hdrChart         = 20
	hdrRecordCount   = 21
)

// DecodedBatch is a parsed booking batch, used to check that an export reads
// back the way an importer would see it.
type DecodedBatch struct {
	AdvisorNumber   string
	ClientNumber    string
	FiscalYearStart time.Time
	AccountLength   int
	From            time.Time
	To              time.Time
	Festschreibung  bool
	ChartOfAccounts ChartVariant
	RecordCount     int
	Lines           []DecodedLine
}

// DecodedLine is one booking row as read from the file
type DecodedLine struct {
	Amount         int64
	DebitCredit    DebitCredit
	Currency       string
	Date           time.Time
	Account        string
	ContraAccount  string
	TaxKey         string
	DocumentNumber string
	OriginalNumber string
	Description    string
	DocumentID     string
	CostCenter     string
}

// Decode parses a booking batch produced by Encode. Booking dates carry no
// year, so the year of the header's range start is applied.
func Decode(content string) (*DecodedBatch, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: missing header rows", ErrMalformedFile)
	}

	header := records[0]
	if len(header) <= hdrRecordCount || header[hdrMarker] != "EXTF" {
		return nil, fmt.Errorf("%w: not an EXTF header", ErrMalformedFile)
	}

	batch := &DecodedBatch{
		AdvisorNumber:   header[hdrAdvisor],
		ClientNumber:    header[hdrClient],
		Festschreibung:  header[hdrFest] == "1",
		ChartOfAccounts: ChartVariant(header[hdrChart]),
	}
	if batch.FiscalYearStart, err = time.Parse("20060102", header[hdrFiscalYear]); err != nil {
		return nil, fmt.Errorf("%w: fiscal year start: %v", ErrMalformedFile, err)
	}
	if batch.From, err = time.Parse("20060102", header[hdrFrom]); err != nil {
		return nil, fmt.Errorf("%w: range start: %v", ErrMalformedFile, err)
	}
	if batch.To, err = time.Parse("20060102", header[hdrTo]); err != nil {
		return nil, fmt.Errorf("%w: range end: %v", ErrMalformedFile, err)
	}
	if batch.AccountLength, err = strconv.Atoi(header[hdrAccountLength]); err != nil {
		return nil, fmt.Errorf("%w: account length: %v", ErrMalformedFile, err)
	}
	if batch.RecordCount, err = strconv.Atoi(header[hdrRecordCount]); err != nil {
		return nil, fmt.Errorf("%w: record count: %v", ErrMalformedFile, err)
	}

	for i, row := range records[2:] {
		if len(row) < len(bookingColumns) {
			return nil, fmt.Errorf("%w: row %d has %d fields", ErrMalformedFile, i+3, len(row))
		}
		line, err := decodeLine(row, batch.From.Year())
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedFile, i+3, err)
		}
		batch.Lines = append(batch.Lines, line)
	}

	if batch.RecordCount != len(batch.Lines) {
		return nil, fmt.Errorf("%w: header announces %d records, found %d", ErrMalformedFile, batch.RecordCount, len(batch.Lines))
	}
	return batch, nil
}

func decodeLine(row []string, year int) (DecodedLine, error) {
	amount, err := shared.ParseAmount(row[0])
	if err != nil {
		return DecodedLine{}, err
	}
	dc := DebitCredit(row[1])
	if dc != Debit && dc != Credit {
		return DecodedLine{}, fmt.Errorf("invalid debit/credit indicator %q", row[1])
	}
	ddmm, err := time.Parse("0201", row[9])
	if err != nil {
		return DecodedLine{}, fmt.Errorf("invalid booking date %q", row[9])
	}

	return DecodedLine{
		Amount:         amount,
		DebitCredit:    dc,
		Currency:       row[2],
		Date:           time.Date(year, ddmm.Month(), ddmm.Day(), 0, 0, 0, 0, time.UTC),
		Account:        row[6],
		ContraAccount:  row[7],
		TaxKey:         row[8],
		DocumentNumber: row[10],
		OriginalNumber: row[11],
		Description:    row[13],
		DocumentID:     row[14],
		CostCenter:     row[15],
	}, nil
}
