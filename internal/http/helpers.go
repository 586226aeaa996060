package http

import (
	"fmt"
	"strings"
	"time"

	"budget/internal/engine"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// viewKey identifies a rendered ledger. The month is part of the key because
// the "month" range depends on the current date.
func viewKey(revision uint64, c engine.Criteria, now time.Time, currency string) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s|%q", revision, now.Format("2006-01"), currency, c.Kind, c.Range, c.Search)
}
