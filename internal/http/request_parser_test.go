package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"budget/internal/engine"
)

func TestParseEntryForm(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		wantField string
		wantCents int64
	}{
		{
			name:      "valid expense",
			form:      url.Values{"kind": {"expense"}, "title": {" Coffee "}, "amount": {"4,50"}, "date": {"2024-03-02"}},
			wantCents: 450,
		},
		{
			name:      "half-up rounding",
			form:      url.Values{"kind": {"income"}, "title": {"Salary"}, "amount": {"5000.005"}},
			wantCents: 500001,
		},
		{
			name:      "missing title",
			form:      url.Values{"kind": {"expense"}, "title": {"   "}, "amount": {"1"}},
			wantField: FieldTitle,
		},
		{
			name:      "zero amount",
			form:      url.Values{"kind": {"expense"}, "title": {"x"}, "amount": {"0"}},
			wantField: FieldAmount,
		},
		{
			name:      "garbage amount",
			form:      url.Values{"kind": {"expense"}, "title": {"x"}, "amount": {"abc"}},
			wantField: FieldAmount,
		},
		{
			name:      "unknown kind",
			form:      url.Values{"kind": {"transfer"}, "title": {"x"}, "amount": {"1"}},
			wantField: FieldKind,
		},
		{
			name:      "bad date",
			form:      url.Values{"kind": {"income"}, "title": {"x"}, "amount": {"1"}, "date": {"2024-13-40"}},
			wantField: FieldDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := ParseEntryForm(tt.form)
			if tt.wantField != "" {
				var fe *FormError
				if !errors.As(err, &fe) {
					t.Fatalf("expected FormError, got %v", err)
				}
				if fe.Field != tt.wantField || fe.Message == "" {
					t.Fatalf("Field = %q, want %q", fe.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntryForm() error = %v", err)
			}
			if draft.Amount.Cents != tt.wantCents {
				t.Fatalf("Cents = %d, want %d", draft.Amount.Cents, tt.wantCents)
			}
		})
	}
}

func TestParseEntryFormKeepsEmptyDateZero(t *testing.T) {
	draft, err := ParseEntryForm(url.Values{"kind": {"expense"}, "title": {" Coffee "}, "amount": {"4.5"}})
	if err != nil {
		t.Fatalf("ParseEntryForm() error = %v", err)
	}
	if !draft.Date.IsZero() {
		t.Fatalf("expected zero date, got %s", draft.Date)
	}
	if draft.Title != "Coffee" {
		t.Fatalf("Title = %q, want trimmed", draft.Title)
	}
}

func TestParseCriteria(t *testing.T) {
	c := ParseCriteria(url.Values{"q": {" Miete "}, "type": {"expense"}, "range": {"month"}})
	if c.Search != "Miete" || c.Kind != engine.KindExpense || c.Range != engine.RangeMonth {
		t.Fatalf("unexpected criteria %+v", c)
	}

	c = ParseCriteria(url.Values{"type": {"bogus"}})
	if c.Kind != engine.KindAll || c.Range != engine.RangeAll {
		t.Fatalf("unknown values must fall back to all, got %+v", c)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Values().Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Values().Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Values().Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Values().Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Values().Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Values().Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"DELETE allowed with multiple", http.MethodDelete, []string{http.MethodDelete, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}

func TestRequireDeleteOrPOST(t *testing.T) {
	tests := []struct {
		method  string
		wantErr bool
	}{
		{http.MethodPost, false},
		{http.MethodDelete, false},
		{http.MethodGet, true},
		{http.MethodPut, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireDeleteOrPOST(req)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestParseFormOrFail(t *testing.T) {
	// Valid form request
	body := "field=value"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result := ParseFormOrFail(req)
	if result != nil {
		t.Error("Expected nil for valid form, got error response")
	}

	// Verify form was parsed
	if req.Form.Get("field") != "value" {
		t.Error("Form was not parsed correctly")
	}
}
