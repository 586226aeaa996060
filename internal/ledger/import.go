package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"budget/internal/core"
)

// coerce turns one imported record into an entry. Records whose amount is
// not positive after rounding to cents are dropped. Callers hold s.mu.
func (s *EntryStore) coerce(rec map[string]any, taken map[string]bool) (core.Entry, bool) {
	amount := numberOf(rec["amount"])
	if amount <= 0 {
		return core.Entry{}, false
	}
	cents := core.CentsFromFloat(amount)
	if cents <= 0 {
		return core.Entry{}, false
	}

	e := core.Entry{
		Kind:     core.Expense,
		Title:    strings.TrimSpace(stringOf(rec["title"])),
		Amount:   core.Money{Cents: cents},
		Category: strings.TrimSpace(stringOf(rec["category"])),
	}
	if k, ok := rec["type"].(string); ok && core.Kind(k) == core.Income {
		e.Kind = core.Income
	}
	if e.Title == "" {
		e.Title = core.DefaultImportTitle
	}
	if e.Category == "" {
		e.Category = core.DefaultExpenseCategory
	}

	e.Date = core.Today(s.now())
	if raw, ok := rec["date"].(string); ok && len(raw) >= 10 {
		if d, err := core.ParseDate(raw[:10]); err == nil {
			e.Date = d
		}
	}

	e.ID = stringOf(rec["id"])
	if e.ID == "" || taken[e.ID] {
		e.ID = s.freshID(taken)
	}

	if created := numberOf(rec["createdAt"]); created >= 1 && created < math.MaxInt64 {
		e.CreatedAt = int64(created)
		s.lastCreated = max(s.lastCreated, e.CreatedAt)
	} else {
		e.CreatedAt = s.stamp()
	}
	return e, true
}

// numberOf reads a JSON-ish value as a number. Strings are parsed, everything
// unreadable is 0.
func numberOf(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		f, _ = x.Float64()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
