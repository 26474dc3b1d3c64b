package export

import (
	"hash/fnv"
	"strconv"
	"strings"
)

type expenseRule struct {
	keywords []string
	account  int
}

// ChartOfAccounts holds the standard account numbers of one chart variant.
type ChartOfAccounts struct {
	Variant        ChartVariant
	Revenue19      int
	Revenue7       int
	RevenueTaxFree int
	RevenueOther   int
	ExpenseDefault int
	Bank           int
	Cash           int
	expenseRules   []expenseRule
}

var skr03 = ChartOfAccounts{
	Variant:        ChartSKR03,
	Revenue19:      8400,
	Revenue7:       8300,
	RevenueTaxFree: 8120,
	RevenueOther:   8200,
	ExpenseDefault: 4900,
	Bank:           1200,
	Cash:           1000,
	expenseRules: []expenseRule{
		{[]string{"wareneinkauf", "wareneingang", "goods"}, 3400},
		{[]string{"fremdleistung", "subcontract"}, 3100},
		{[]string{"büro", "buero", "office"}, 4930},
		{[]string{"telefon", "internet", "phone"}, 4920},
		{[]string{"porto", "postage"}, 4910},
		{[]string{"reise", "travel"}, 4660},
		{[]string{"kfz", "fahrzeug", "car"}, 4500},
		{[]string{"versicherung", "insurance"}, 4360},
		{[]string{"miete", "rent"}, 4210},
		{[]string{"beratung", "consulting"}, 4950},
		{[]string{"werbung", "marketing", "advertising"}, 4600},
		{[]string{"abschreibung", "afa", "depreciation"}, 4830},
		{[]string{"zinsen", "interest"}, 2100},
	},
}

var skr04 = ChartOfAccounts{
	Variant:        ChartSKR04,
	Revenue19:      4400,
	Revenue7:       4300,
	RevenueTaxFree: 4120,
	RevenueOther:   4200,
	ExpenseDefault: 6300,
	Bank:           1800,
	Cash:           1600,
	expenseRules: []expenseRule{
		{[]string{"wareneinkauf", "wareneingang", "goods"}, 5400},
		{[]string{"fremdleistung", "subcontract"}, 5900},
		{[]string{"büro", "buero", "office"}, 6815},
		{[]string{"telefon", "internet", "phone"}, 6805},
		{[]string{"porto", "postage"}, 6800},
		{[]string{"reise", "travel"}, 6650},
		{[]string{"kfz", "fahrzeug", "car"}, 6520},
		{[]string{"versicherung", "insurance"}, 6400},
		{[]string{"miete", "rent"}, 6310},
		{[]string{"beratung", "consulting"}, 6825},
		{[]string{"werbung", "marketing", "advertising"}, 6600},
		{[]string{"abschreibung", "afa", "depreciation"}, 6220},
		{[]string{"zinsen", "interest"}, 7310},
	},
}

// ChartFor returns the chart for v, defaulting to SKR03.
func ChartFor(v ChartVariant) ChartOfAccounts {
	if v == ChartSKR04 {
		return skr04
	}
	return skr03
}

// RevenueAccount picks the revenue account for a tax rate in percent.
func (c ChartOfAccounts) RevenueAccount(taxRate int) int {
	switch taxRate {
	case 19:
		return c.Revenue19
	case 7:
		return c.Revenue7
	case 0:
		return c.RevenueTaxFree
	default:
		return c.RevenueOther
	}
}

// ExpenseAccount maps a category to an expense account by case-insensitive
// keyword containment. A cost center that names a category is used when the
// category itself does not match.
func (c ChartOfAccounts) ExpenseAccount(category, costCenter string) int {
	for _, hint := range []string{category, costCenter} {
		h := strings.ToLower(strings.TrimSpace(hint))
		if h == "" {
			continue
		}
		for _, rule := range c.expenseRules {
			for _, kw := range rule.keywords {
				if strings.Contains(h, kw) {
					return rule.account
				}
			}
		}
	}
	return c.ExpenseDefault
}

// PadAccount widens a general ledger account to length digits by appending
// zeros.
func PadAccount(account, length int) string {
	s := strconv.Itoa(account)
	if len(s) < length {
		s += strings.Repeat("0", length-len(s))
	}
	return s
}

// CounterpartyAccount derives a stable personal account from the
// counterparty name. Debtors start at 1×10^(length-1), creditors at
// 7×10^(length-1).
func CounterpartyAccount(name string, creditor bool, length int) string {
	base := int64(1)
	for i := 1; i < length; i++ {
		base *= 10
	}
	if creditor {
		base *= 7
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(name), " "))))
	offset := int64(h.Sum32() % 9999)

	return strconv.FormatInt(base+offset, 10)
}

// TaxKey returns the BU key for a tax rate; incoming documents use the input
// tax keys.
func TaxKey(taxRate int, incoming bool) string {
	switch {
	case taxRate == 19 && incoming:
		return "9"
	case taxRate == 7 && incoming:
		return "8"
	case taxRate == 19:
		return "3"
	case taxRate == 7:
		return "2"
	default:
		return ""
	}
}
