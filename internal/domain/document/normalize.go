package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// Payload is a raw ingestion result, typically from OCR. Field names vary by
// source; Normalize maps them onto the canonical document fields.
type Payload map[string]interface{}

type canonicalField string

const (
	fieldAmount       canonicalField = "amount"
	fieldNetAmount    canonicalField = "net_amount"
	fieldTaxAmount    canonicalField = "tax_amount"
	fieldTaxRate      canonicalField = "tax_rate"
	fieldCounterparty canonicalField = "counterparty_name"
	fieldDate         canonicalField = "date"
	fieldDueDate      canonicalField = "due_date"
	fieldCurrency     canonicalField = "currency"
	fieldCostCenter   canonicalField = "cost_center"
	fieldCategory     canonicalField = "category"
	fieldDescription  canonicalField = "description"
)

// Aliases are compared after lowercasing and stripping "_", "-" and blanks.
var fieldAliases = map[canonicalField][]string{
	fieldAmount:       {"amount", "betrag", "total", "totalamount", "bruttobetrag", "gesamtbetrag", "brutto", "gross", "grossamount"},
	fieldNetAmount:    {"netamount", "net", "nettobetrag", "netto"},
	fieldTaxAmount:    {"taxamount", "tax", "mwst", "mwstbetrag", "ust", "vat", "vatamount"},
	fieldTaxRate:      {"taxrate", "mwstsatz", "ustsatz", "vatrate", "steuersatz"},
	fieldCounterparty: {"counterpartyname", "counterparty", "vendor", "vendorname", "lieferant", "supplier", "customername", "customer", "kunde", "merchant", "haendler", "händler"},
	fieldDate:         {"date", "datum", "belegdatum", "invoicedate", "rechnungsdatum", "receiptdate"},
	fieldDueDate:      {"duedate", "faelligkeit", "fälligkeit", "faelligkeitsdatum", "zahlungsziel"},
	fieldCurrency:     {"currency", "waehrung", "währung"},
	fieldCostCenter:   {"costcenter", "kostenstelle", "kost1"},
	fieldCategory:     {"category", "kategorie"},
	fieldDescription:  {"description", "beschreibung", "buchungstext", "text", "memo"},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2006/01/02",
	"02/01/2006",
}

// Normalize copies the recognised payload fields onto doc and returns a
// warning per field that was present but could not be parsed. Missing fields
// are left empty; export validation decides whether the document is usable.
func Normalize(doc *FinancialDocument, p Payload) []string {
	values := make(map[string]interface{}, len(p))
	for k, v := range p {
		values[normalizeKey(k)] = v
	}
	lookup := func(f canonicalField) (interface{}, bool) {
		for _, alias := range fieldAliases[f] {
			if v, ok := values[alias]; ok && v != nil && v != "" {
				return v, true
			}
		}
		return nil, false
	}

	var warnings []string
	warn := func(f canonicalField, v interface{}, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: cannot parse %v: %v", f, v, err))
	}

	if v, ok := lookup(fieldAmount); ok {
		if cents, err := shared.ParseAmount(v); err != nil {
			warn(fieldAmount, v, err)
		} else {
			doc.Amount = abs(cents)
		}
	}
	if v, ok := lookup(fieldNetAmount); ok {
		if cents, err := shared.ParseAmount(v); err != nil {
			warn(fieldNetAmount, v, err)
		} else {
			doc.NetAmount = abs(cents)
		}
	}
	if v, ok := lookup(fieldTaxAmount); ok {
		if cents, err := shared.ParseAmount(v); err != nil {
			warn(fieldTaxAmount, v, err)
		} else {
			doc.TaxAmount = abs(cents)
		}
	}
	if v, ok := lookup(fieldTaxRate); ok {
		if rate, err := parseRate(v); err != nil {
			warn(fieldTaxRate, v, err)
		} else {
			doc.TaxRate = rate
		}
	}
	if v, ok := lookup(fieldCounterparty); ok {
		doc.CounterpartyName = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := lookup(fieldDate); ok {
		if d, err := ParseDate(v); err != nil {
			warn(fieldDate, v, err)
		} else {
			doc.Date = &d
		}
	}
	if v, ok := lookup(fieldDueDate); ok {
		if d, err := ParseDate(v); err != nil {
			warn(fieldDueDate, v, err)
		} else {
			doc.DueDate = &d
		}
	}
	if v, ok := lookup(fieldCurrency); ok {
		if c := strings.ToUpper(strings.TrimSpace(fmt.Sprint(v))); shared.IsCurrencyCode(c) {
			doc.Currency = c
		} else {
			warn(fieldCurrency, v, ErrInvalidCurrency)
		}
	}
	if v, ok := lookup(fieldCostCenter); ok {
		doc.CostCenter = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := lookup(fieldCategory); ok {
		doc.Category = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := lookup(fieldDescription); ok {
		doc.Description = strings.TrimSpace(fmt.Sprint(v))
	}

	doc.completeTaxSplit()
	return warnings
}

// completeTaxSplit derives the missing parts of gross = net + tax.
func (d *FinancialDocument) completeTaxSplit() {
	switch {
	case d.Amount == 0 && d.NetAmount > 0:
		d.Amount = d.NetAmount + d.TaxAmount
	case d.Amount > 0 && d.NetAmount == 0 && d.TaxAmount > 0:
		d.NetAmount = d.Amount - d.TaxAmount
	case d.Amount > 0 && d.NetAmount == 0 && d.TaxAmount == 0 && d.TaxRate > 0:
		gross := shared.MinorUnitsToDecimal(d.Amount)
		divisor := decimal.NewFromInt(int64(100 + d.TaxRate)).Div(decimal.NewFromInt(100))
		d.NetAmount = shared.DecimalToMinorUnits(gross.Div(divisor))
		d.TaxAmount = d.Amount - d.NetAmount
	}
	if d.TaxRate == 0 && d.NetAmount > 0 && d.TaxAmount > 0 {
		rate := decimal.NewFromInt(d.TaxAmount).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(d.NetAmount))
		d.TaxRate = int(rate.Round(0).IntPart())
	}
}

// ParseDate accepts ISO dates, German dotted dates, RFC 3339 timestamps, epoch
// seconds and Firestore-style {"_seconds": n} objects. The result is midnight UTC.
func ParseDate(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return truncateToDate(val), nil
	case float64:
		return truncateToDate(time.Unix(int64(val), 0).UTC()), nil
	case int64:
		return truncateToDate(time.Unix(val, 0).UTC()), nil
	case json.Number:
		secs, err := val.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return truncateToDate(time.Unix(secs, 0).UTC()), nil
	case map[string]interface{}:
		for _, key := range []string{"_seconds", "seconds"} {
			if s, ok := val[key]; ok {
				return ParseDate(s)
			}
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp object")
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateToDate(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", val)
	}
	return time.Time{}, fmt.Errorf("unsupported date type %T", v)
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseRate(v interface{}) (int, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(fmt.Sprint(v)), "%"))
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return 0, err
	}
	if d.GreaterThan(decimal.Zero) && d.LessThan(decimal.NewFromInt(1)) {
		d = d.Mul(decimal.NewFromInt(100))
	}
	return int(d.Round(0).IntPart()), nil
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
