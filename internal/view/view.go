// Package view turns filtered entries and their aggregates into display
// strings for the templates. Every render rebuilds the whole model.
package view

import (
	"fmt"
	"strconv"

	"budget/internal/core"
	"budget/internal/engine"
)

// Row is one table line.
type Row struct {
	ID        string
	Date      string
	Title     string
	Category  string
	Amount    string // signed, expenses carry a leading minus
	KindLabel string
	Income    bool
}

// KPIs are the three headline numbers.
type KPIs struct {
	Income          string
	Expense         string
	Balance         string
	BalanceNegative bool
}

// Segment is one slice of the expense doughnut.
type Segment struct {
	Label   string
	Amount  string
	Percent int
	Tooltip string
	Color   string
	// SVG stroke-dasharray/-dashoffset on a circle with pathLength 100
	Dash   string
	Gap    string
	Offset string
}

// Ledger is the complete render model for the KPIs, the table and the chart.
type Ledger struct {
	Rows       []Row
	KPIs       KPIs
	RangeLabel string
	Segments   []Segment
	ChartTotal string
	Currency   string
	Criteria   engine.Criteria
}

// Empty reports whether the filtered list has no rows.
func (l Ledger) Empty() bool { return len(l.Rows) == 0 }

var palette = []string{
	"#f43f5e", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6",
	"#ec4899", "#14b8a6", "#eab308", "#6366f1", "#64748b",
}

// Build assembles the render model. list must already be filtered and
// ordered; totals and breakdown must be computed from the same list.
func Build(list []core.Entry, totals core.Totals, breakdown engine.Breakdown, settings core.Settings, c engine.Criteria) Ledger {
	cur := settings.Currency
	if cur == "" {
		cur = core.DefaultCurrency
	}

	l := Ledger{
		Rows: make([]Row, 0, len(list)),
		KPIs: KPIs{
			Income:          core.FormatMoney(totals.Income, cur),
			Expense:         core.FormatMoney(totals.Expense, cur),
			Balance:         core.FormatMoney(totals.Balance, cur),
			BalanceNegative: totals.Balance.Cents < 0,
		},
		RangeLabel: c.RangeLabel(),
		ChartTotal: core.FormatMoney(breakdown.Total(), cur),
		Currency:   cur,
		Criteria:   c,
	}

	for _, e := range list {
		l.Rows = append(l.Rows, Row{
			ID:        e.ID,
			Date:      e.Date.String(),
			Title:     e.Title,
			Category:  e.Category,
			Amount:    SignedAmount(e, cur),
			KindLabel: e.Kind.Label(),
			Income:    e.Kind == core.Income,
		})
	}

	total := breakdown.Total().Cents
	var cumulative float64
	for i, cat := range breakdown {
		pct := breakdown.Percent(i)
		amount := core.FormatMoney(cat.Amount, cur)
		share := 0.0
		if total > 0 {
			share = float64(cat.Amount.Cents) * 100 / float64(total)
		}
		l.Segments = append(l.Segments, Segment{
			Label:   cat.Name,
			Amount:  amount,
			Percent: pct,
			Tooltip: Tooltip(cat.Name, amount, pct),
			Color:   palette[i%len(palette)],
			Dash:    ftoa(share),
			Gap:     ftoa(100 - share),
			// start at 12 o'clock and run clockwise
			Offset: ftoa(25 - cumulative),
		})
		cumulative += share
	}
	return l
}

// SignedAmount formats the entry amount with a minus for expenses.
func SignedAmount(e core.Entry, currency string) string {
	s := core.FormatMoney(e.Amount, currency)
	if e.Kind == core.Expense {
		return "-" + s
	}
	return s
}

// Tooltip is the hover text of a chart segment.
func Tooltip(label, amount string, pct int) string {
	return fmt.Sprintf("%s: %s (%d%%)", label, amount, pct)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
