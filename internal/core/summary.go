package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Totals is the KPI snapshot of a list of entries.
type Totals struct {
	Income  Money
	Expense Money
	Balance Money // Income - Expense
}
