package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"budget/internal/core"
)

func TestImportMergeDropsNonPositiveAmounts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.ImportMerge(ctx, []map[string]any{{"amount": float64(-10)}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 0 || res.Dropped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if s.Len() != 0 {
		t.Fatalf("ledger must stay empty, got %d", s.Len())
	}
}

func TestImportMergeDropsAmountsTooLargeForCents(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.ImportMerge(ctx, []map[string]any{
		{"title": "huge", "amount": 1e19},
		{"title": "too many cents", "amount": 1e17},
		{"title": "fits", "amount": 9e16},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 || res.Dropped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := s.All(ctx)[0]; got.Title != "fits" || got.Amount.Cents != 9000000000000000000 {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestImportMergeRejectsNonList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Add(ctx, Draft{Kind: core.Expense, Title: "Coffee", Amount: core.Money{Cents: 450}}); err != nil {
		t.Fatal(err)
	}
	rev := s.Revision()

	if _, err := s.ImportMerge(ctx, nil); !errors.Is(err, core.ErrNotAList) {
		t.Fatalf("expected ErrNotAList, got %v", err)
	}
	if s.Len() != 1 || s.Revision() != rev {
		t.Fatalf("rejected import must not touch the ledger")
	}
}

func TestImportMergeCoercesRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	existing, err := s.Add(ctx, Draft{Kind: core.Expense, Title: "Coffee", Amount: core.Money{Cents: 450}})
	if err != nil {
		t.Fatal(err)
	}

	records := []map[string]any{
		{
			"id": "keep-me", "type": "income", "title": "Salary", "amount": 5000.005,
			"category": "Lohn", "date": "2024-02-29T08:00:00Z", "createdAt": float64(1709193600000),
		},
		{"id": existing.ID, "amount": "12.5", "date": "garbage-date"},
		{"id": "keep-me", "type": "INCOME", "title": "   ", "amount": 3},
		{"amount": "abc"},
		nil,
	}
	res, err := s.ImportMerge(ctx, records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 3 || res.Dropped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	byTitle := map[string]core.Entry{}
	ids := map[string]bool{}
	for _, e := range s.All(ctx) {
		if ids[e.ID] {
			t.Fatalf("duplicate id %q after import", e.ID)
		}
		ids[e.ID] = true
		if e.Title != core.DefaultImportTitle {
			byTitle[e.Title] = e
		}
	}
	if len(ids) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(ids))
	}

	salary := byTitle["Salary"]
	if salary.ID != "keep-me" || salary.Kind != core.Income || salary.Amount.Cents != 500001 {
		t.Fatalf("unexpected salary %+v", salary)
	}
	if salary.Date.String() != "2024-02-29" || salary.CreatedAt != 1709193600000 {
		t.Fatalf("unexpected salary date/createdAt %s %d", salary.Date, salary.CreatedAt)
	}

	for _, e := range s.All(ctx) {
		if e.Title != core.DefaultImportTitle {
			continue
		}
		if e.ID == existing.ID || e.ID == "keep-me" {
			t.Fatalf("colliding id %q must be replaced", e.ID)
		}
		if e.Kind != core.Expense || e.Category != core.DefaultExpenseCategory {
			t.Fatalf("expected expense in default category, got %+v", e)
		}
		if e.Date.String() != "2024-03-15" {
			t.Fatalf("expected fallback date today, got %s", e.Date)
		}
	}
}

func TestImportMergeThenAddStaysNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	future := float64(fixedNow.Add(48 * time.Hour).UnixMilli())
	if _, err := s.ImportMerge(ctx, []map[string]any{{"title": "Old", "amount": 1, "createdAt": future}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, Draft{Kind: core.Expense, Title: "New", Amount: core.Money{Cents: 100}}); err != nil {
		t.Fatal(err)
	}
	if first := s.All(ctx)[0]; first.Title != "New" {
		t.Fatalf("expected the latest add first, got %q", first.Title)
	}
}

func TestNumberOf(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{float64(12.5), 12.5},
		{"  7.25 ", 7.25},
		{"", 0},
		{"abc", 0},
		{nil, 0},
		{true, 0},
		{3, 3},
	}
	for _, tt := range tests {
		if got := numberOf(tt.in); got != tt.want {
			t.Fatalf("numberOf(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
