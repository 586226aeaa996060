// Package engine holds the pure ledger computations: filtering by the current
// criteria, totals and the expense breakdown per category. Nothing here reads
// the clock or touches storage; callers pass "now" in.
package engine

import (
	"strings"
	"time"

	"budget/internal/core"
)

type (
	KindFilter  string
	RangeFilter string
)

const (
	KindAll     KindFilter = "all"
	KindIncome  KindFilter = "income"
	KindExpense KindFilter = "expense"

	RangeAll   RangeFilter = "all"
	RangeMonth RangeFilter = "month"
)

// Criteria is the active search and filter selection.
type Criteria struct {
	Search string
	Kind   KindFilter
	Range  RangeFilter
}

// ParseCriteria normalises raw form values. Unknown kinds and ranges mean "all".
func ParseCriteria(search, kind, rng string) Criteria {
	c := Criteria{Search: strings.TrimSpace(search), Kind: KindAll, Range: RangeAll}
	switch KindFilter(kind) {
	case KindIncome, KindExpense:
		c.Kind = KindFilter(kind)
	}
	if RangeFilter(rng) == RangeMonth {
		c.Range = RangeMonth
	}
	return c
}

// RangeLabel is the human label shown next to the KPIs.
func (c Criteria) RangeLabel() string {
	if c.Range == RangeMonth {
		return "aktueller Monat"
	}
	return "gesamter Verlauf"
}

// Match reports whether a single entry passes every criterion.
func (c Criteria) Match(e core.Entry, now time.Time) bool {
	if q := strings.ToLower(strings.TrimSpace(c.Search)); q != "" {
		hay := strings.ToLower(e.Title + " " + e.Category)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	switch c.Kind {
	case KindIncome, KindExpense:
		if string(e.Kind) != string(c.Kind) {
			return false
		}
	}
	if c.Range == RangeMonth && !e.Date.SameMonth(now) {
		return false
	}
	return true
}

// Filter keeps the entries matching c in their original order.
func Filter(entries []core.Entry, c Criteria, now time.Time) []core.Entry {
	out := make([]core.Entry, 0, len(entries))
	for _, e := range entries {
		if c.Match(e, now) {
			out = append(out, e)
		}
	}
	return out
}

// Aggregate sums income and expense in cents. Balance = Income - Expense.
func Aggregate(entries []core.Entry) core.Totals {
	var t core.Totals
	for _, e := range entries {
		switch e.Kind {
		case core.Income:
			t.Income = t.Income.Add(e.Amount)
		case core.Expense:
			t.Expense = t.Expense.Add(e.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}

// Breakdown is the expense total per category in first-seen order.
type Breakdown []core.CategoryAmount

// CategoryBreakdown groups the expense entries by category. A blank category
// counts as the default expense category.
func CategoryBreakdown(entries []core.Entry) Breakdown {
	index := map[string]int{}
	var b Breakdown
	for _, e := range entries {
		if e.Kind != core.Expense {
			continue
		}
		name := strings.TrimSpace(e.Category)
		if name == "" {
			name = core.DefaultExpenseCategory
		}
		i, ok := index[name]
		if !ok {
			i = len(b)
			index[name] = i
			b = append(b, core.CategoryAmount{Name: name})
		}
		b[i].Amount = b[i].Amount.Add(e.Amount)
	}
	return b
}

func (b Breakdown) Total() core.Money {
	var sum core.Money
	for _, c := range b {
		sum = sum.Add(c.Amount)
	}
	return sum
}

// Percent returns the share of category i in the breakdown total, rounded
// half-up to a whole percent. An empty breakdown yields 0.
func (b Breakdown) Percent(i int) int {
	total := b.Total().Cents
	if total <= 0 || i < 0 || i >= len(b) {
		return 0
	}
	return int((b[i].Amount.Cents*100 + total/2) / total)
}
