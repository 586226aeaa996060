package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// Fallback labels used when a category is left blank.
const (
	DefaultIncomeCategory  = "Allgemein"
	DefaultExpenseCategory = "Sonstiges"
	DefaultImportTitle     = "Eintrag"
)

const isoDay = "2006-01-02"

type (
	Kind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Entry is one recorded income or expense transaction.
	Entry struct {
		ID        string `json:"id"`
		Kind      Kind   `json:"type"`
		Title     string `json:"title"`
		Amount    Money  `json:"amount"`
		Category  string `json:"category"`
		Date      Date   `json:"date"`
		CreatedAt int64  `json:"createdAt"` // unix milliseconds
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyTitle    = errors.New("empty title")
	ErrInvalidKind   = errors.New("invalid kind")
	ErrInvalidDate   = errors.New("invalid date")
	// ErrNotAList rejects an import payload whose top level is not an array.
	ErrNotAList = errors.New("import payload is not a list")
)

// ParseKind accepts "income" and "expense"; anything else is an error.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Label is the user-facing name of the kind.
func (k Kind) Label() string {
	if k == Income {
		return "Einnahme"
	}
	return "Ausgabe"
}

// DefaultCategory returns the category assigned to a blank form entry of kind k.
func (k Kind) DefaultCategory() string {
	if k == Income {
		return DefaultIncomeCategory
	}
	return DefaultExpenseCategory
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar day (YYYY-MM-DD). Impossible days such as
// 2024-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDay, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return Date{Time: t}, nil
}

// Today returns the calendar day of now, in now's location.
func Today(now time.Time) Date {
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoDay)
}

// SameMonth reports whether d falls in the calendar month of now.
func (d Date) SameMonth(now time.Time) bool {
	return d.Year() == now.Year() && d.Month() == now.Month()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants every stored entry must hold.
func (e Entry) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// Signed returns the amount with the sign of its kind: expenses are negative.
func (e Entry) Signed() Money {
	if e.Kind == Expense {
		return Money{Cents: -e.Amount.Cents}
	}
	return e.Amount
}
