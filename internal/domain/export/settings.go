// Package export turns booked financial documents into a DATEV-style
// "EXTF Buchungsstapel" interchange file and describes the audit record
// written for every export.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidAccountingSettings = errors.New("invalid accounting settings")
	ErrDocumentValidationFailed  = errors.New("document validation failed")
)

// ChartVariant names a standard chart of accounts
type ChartVariant string

const (
	ChartSKR03 ChartVariant = "SKR03"
	ChartSKR04 ChartVariant = "SKR04"
)

const (
	MinAccountLength             = 4
	MaxAccountLength             = 8
	MinCounterpartyAccountLength = 5
	MaxCounterpartyAccountLength = 9
)

var (
	advisorPattern = regexp.MustCompile(`^\d{1,7}$`)
	clientPattern  = regexp.MustCompile(`^\d{1,5}$`)
)

// AccountingSettings carries the bookkeeping metadata written to the file
// header and used to derive account numbers.
type AccountingSettings struct {
	AdvisorNumber             string       `json:"advisor_number" bson:"advisor_number"`
	ClientNumber              string       `json:"client_number" bson:"client_number"`
	ChartOfAccounts           ChartVariant `json:"chart_of_accounts" bson:"chart_of_accounts"`
	FiscalYearStart           string       `json:"fiscal_year_start" bson:"fiscal_year_start"` // DD.MM.YYYY or YYYY-MM-DD
	AccountLength             int          `json:"account_length" bson:"account_length"`
	CounterpartyAccountLength int          `json:"counterparty_account_length" bson:"counterparty_account_length"`
	Festschreibung            bool         `json:"festschreibung" bson:"festschreibung"`
}

// Validate returns an *InvalidAccountingSettingsError listing every problem.
func (s AccountingSettings) Validate() error {
	var violations []string

	if !advisorPattern.MatchString(s.AdvisorNumber) {
		violations = append(violations, "advisor number must be 1-7 digits")
	}
	if !clientPattern.MatchString(s.ClientNumber) {
		violations = append(violations, "client number must be 1-5 digits")
	}
	if s.ChartOfAccounts != ChartSKR03 && s.ChartOfAccounts != ChartSKR04 {
		violations = append(violations, fmt.Sprintf("chart of accounts must be %s or %s", ChartSKR03, ChartSKR04))
	}
	if _, err := s.FiscalYearStartDate(); err != nil {
		violations = append(violations, "fiscal year start must be a date in DD.MM.YYYY format")
	}
	if s.AccountLength < MinAccountLength || s.AccountLength > MaxAccountLength {
		violations = append(violations, fmt.Sprintf("account length must be between %d and %d", MinAccountLength, MaxAccountLength))
	}
	if s.CounterpartyAccountLength < MinCounterpartyAccountLength || s.CounterpartyAccountLength > MaxCounterpartyAccountLength {
		violations = append(violations, fmt.Sprintf("counterparty account length must be between %d and %d", MinCounterpartyAccountLength, MaxCounterpartyAccountLength))
	}

	if len(violations) > 0 {
		return &InvalidAccountingSettingsError{Violations: violations}
	}
	return nil
}

// FiscalYearStartDate parses FiscalYearStart.
func (s AccountingSettings) FiscalYearStartDate() (time.Time, error) {
	v := strings.TrimSpace(s.FiscalYearStart)
	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid fiscal year start %q", s.FiscalYearStart)
}

// InvalidAccountingSettingsError is a structural failure; no file is produced.
type InvalidAccountingSettingsError struct {
	Violations []string
}

func (e *InvalidAccountingSettingsError) Error() string {
	return "invalid accounting settings: " + strings.Join(e.Violations, ", ")
}

func (e *InvalidAccountingSettingsError) Is(target error) bool {
	return target == ErrInvalidAccountingSettings
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time `json:"from" bson:"from"`
	To   time.Time `json:"to" bson:"to"`
}

// MonthRange covers one calendar month.
func MonthRange(year int, month time.Month) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: from, To: from.AddDate(0, 1, -1)}
}

// Validate checks ordering and that the range stays inside one calendar
// year, because booking dates are written without a year.
func (r DateRange) Validate() error {
	var violations []string
	if r.From.IsZero() || r.To.IsZero() {
		violations = append(violations, "date range requires from and to")
	} else {
		if r.To.Before(r.From) {
			violations = append(violations, "date range end is before its start")
		}
		if r.From.Year() != r.To.Year() {
			violations = append(violations, "date range must lie within one calendar year")
		}
	}
	if len(violations) > 0 {
		return &InvalidAccountingSettingsError{Violations: violations}
	}
	return nil
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := dateOnly(t)
	return !d.Before(dateOnly(r.From)) && !d.After(dateOnly(r.To))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
