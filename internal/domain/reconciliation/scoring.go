// Package reconciliation links bank transactions to the documents they settle.
//
// The scoring in this file is pure: it sees typed values only and never
// touches a store, so identical inputs always select the same transaction.
package reconciliation

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/ledger-integrity-pipeline/internal/domain/banking"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
)

// Rule identifies which matching rule produced a candidate
type Rule string

const (
	RuleAmountNameDate  Rule = "AMOUNT_NAME_DATE"
	RuleAmountReference Rule = "AMOUNT_REFERENCE"
	RuleAmountDate      Rule = "AMOUNT_DATE"
)

// Rule weights, in strict priority order.
const (
	WeightAmountNameDate  = 100
	WeightAmountReference = 95
	WeightAmountDate      = 80
)

const (
	NameSimilarityThreshold = 0.7
	NameRuleMaxDays         = 3
	DateRuleMaxDays         = 7
)

// Candidate is a transaction that satisfied one of the rules for a document
type Candidate struct {
	Transaction *banking.Transaction
	Rule        Rule
	Score       int
	DayDistance int
	Similarity  float64
}

// AmountsMatch reports |abs(tx) - doc| < 0.01, i.e. equal in whole cents.
func AmountsMatch(txCents, docCents int64) bool {
	if txCents < 0 {
		txCents = -txCents
	}
	diff := txCents - docCents
	if diff < 0 {
		diff = -diff
	}
	return diff < 1
}

// CalendarDayDistance is the absolute difference in calendar days, ignoring
// the time of day.
func CalendarDayDistance(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// NameSimilarity scores two counterparty names in [0, 1].
func NameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	shorter, longer := strings.Fields(na), strings.Fields(nb)
	if len(nb) < len(na) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}

	matched := 0
	for _, s := range shorter {
		for _, l := range longer {
			if strings.Contains(l, s) || strings.Contains(s, l) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(shorter))
}

// A Caser is stateful, so each call folds with its own.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Evaluate applies the rules in priority order and returns the first one the
// transaction satisfies.
func Evaluate(doc *document.FinancialDocument, tx *banking.Transaction) (Candidate, bool) {
	if !AmountsMatch(tx.Amount, doc.Amount) {
		return Candidate{}, false
	}

	distance := -1
	if doc.Date != nil {
		distance = CalendarDayDistance(*doc.Date, tx.BookingDate)
	}
	withinDays := func(limit int) bool { return distance >= 0 && distance <= limit }

	similarity := NameSimilarity(doc.CounterpartyName, tx.CounterpartyName)
	c := Candidate{Transaction: tx, DayDistance: distance, Similarity: similarity}

	if similarity >= NameSimilarityThreshold && withinDays(NameRuleMaxDays) {
		c.Rule, c.Score = RuleAmountNameDate, WeightAmountNameDate
		return c, true
	}
	if doc.DocumentNumber != "" && strings.Contains(strings.ToLower(tx.Reference), strings.ToLower(doc.DocumentNumber)) {
		c.Rule, c.Score = RuleAmountReference, WeightAmountReference
		return c, true
	}
	if withinDays(DateRuleMaxDays) {
		c.Rule, c.Score = RuleAmountDate, WeightAmountDate
		return c, true
	}
	return Candidate{}, false
}

// Rank evaluates every transaction not in excluded and orders the
// candidates best first: higher score, then smaller day distance, then the
// more recent booking, then the smaller transaction ID.
func Rank(doc *document.FinancialDocument, txs []*banking.Transaction, excluded map[string]struct{}) []Candidate {
	var candidates []Candidate
	for _, tx := range txs {
		if _, skip := excluded[tx.ID]; skip {
			continue
		}
		if tx.TenantID != "" && tx.TenantID != doc.TenantID {
			continue
		}
		if c, ok := Evaluate(doc, tx); ok {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	return candidates
}

// SelectBest returns the top-ranked candidate, if any.
func SelectBest(doc *document.FinancialDocument, txs []*banking.Transaction, excluded map[string]struct{}) (Candidate, bool) {
	ranked := Rank(doc, txs, excluded)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if da, db := sortableDistance(a.DayDistance), sortableDistance(b.DayDistance); da != db {
		return da < db
	}
	if !a.Transaction.BookingDate.Equal(b.Transaction.BookingDate) {
		return a.Transaction.BookingDate.After(b.Transaction.BookingDate)
	}
	return a.Transaction.ID < b.Transaction.ID
}

// Documents without a date rank behind every dated comparison.
func sortableDistance(d int) int {
	if d < 0 {
		return int(^uint(0) >> 1)
	}
	return d
}
