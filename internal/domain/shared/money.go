package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// IsCurrencyCode reports whether code is an upper-case ISO 4217 style code.
func IsCurrencyCode(code string) bool {
	return currencyCodePattern.MatchString(code)
}

// MinorUnitsToDecimal converts cents into a two-place decimal.
func MinorUnitsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// DecimalToMinorUnits rounds half away from zero to whole cents.
func DecimalToMinorUnits(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FormatAmount renders cents as "1234.56".
func FormatAmount(cents int64) string {
	return MinorUnitsToDecimal(cents).StringFixed(2)
}

// FormatAmountComma renders the absolute value with a comma decimal separator,
// the notation German bookkeeping software expects.
func FormatAmountComma(cents int64) string {
	if cents < 0 {
		cents = -cents
	}
	return strings.Replace(FormatAmount(cents), ".", ",", 1)
}

// ParseAmount accepts JSON numbers and strings in either German ("1.234,56")
// or English ("1,234.56") notation, with optional currency markers.
func ParseAmount(v interface{}) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, ErrInvalidAmount
	case int:
		return int64(val) * 100, nil
	case int64:
		return val * 100, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, ErrInvalidAmount
		}
		return DecimalToMinorUnits(decimal.NewFromFloat(val)), nil
	case json.Number:
		return ParseAmount(val.String())
	case decimal.Decimal:
		return DecimalToMinorUnits(val), nil
	case string:
		return parseAmountString(val)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

func parseAmountString(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	for _, marker := range []string{"EUR", "eur", "€", " ", " "} {
		s = strings.ReplaceAll(s, marker, "")
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return DecimalToMinorUnits(d), nil
}
