// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the entry form, the filter criteria and bodies that may be form or JSON.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budget/internal/core"
	"budget/internal/engine"
	"budget/internal/ledger"
)

// Entry form field names. The kind field is not called "type" so that it
// does not collide with the filter of the same name when both forms are
// submitted together.
const (
	FieldKind     = "kind"
	FieldDate     = "date"
	FieldTitle    = "title"
	FieldAmount   = "amount"
	FieldCategory = "category"
)

// FormError is a validation failure tied to one entry form field.
type FormError struct {
	Field   string
	Message string
	Err     error
}

func (e *FormError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// ParseEntryForm turns the entry form into a draft. An empty date is left
// zero so the store fills in today.
func ParseEntryForm(form url.Values) (ledger.Draft, error) {
	kind, err := core.ParseKind(form.Get(FieldKind))
	if err != nil {
		return ledger.Draft{}, formError(core.ErrInvalidKind)
	}

	var date core.Date
	if v := strings.TrimSpace(form.Get(FieldDate)); v != "" {
		if date, err = core.ParseDate(v); err != nil {
			return ledger.Draft{}, formError(core.ErrInvalidDate)
		}
	}

	title := sanitizeInput(form.Get(FieldTitle))
	if title == "" {
		return ledger.Draft{}, formError(core.ErrEmptyTitle)
	}

	cents, err := core.ParseDecimalToCents(form.Get(FieldAmount))
	if err != nil {
		return ledger.Draft{}, formError(core.ErrInvalidAmount)
	}

	return ledger.Draft{
		Kind:     kind,
		Title:    title,
		Amount:   core.Money{Cents: cents},
		Category: sanitizeInput(form.Get(FieldCategory)),
		Date:     date,
	}, nil
}

// formError maps a domain validation error to the field that caused it.
// It returns nil for errors that are not validation errors.
func formError(err error) *FormError {
	switch {
	case errors.Is(err, core.ErrEmptyTitle):
		return &FormError{Field: FieldTitle, Message: "Bitte einen Titel eingeben", Err: err}
	case errors.Is(err, core.ErrInvalidAmount):
		return &FormError{Field: FieldAmount, Message: "Bitte einen gültigen Betrag eingeben", Err: err}
	case errors.Is(err, core.ErrInvalidKind):
		return &FormError{Field: FieldKind, Message: "Ungültige Art", Err: err}
	case errors.Is(err, core.ErrInvalidDate):
		return &FormError{Field: FieldDate, Message: "Ungültiges Datum", Err: err}
	default:
		return nil
	}
}

// ParseCriteria reads the search box and the two filters.
func ParseCriteria(values url.Values) engine.Criteria {
	return engine.ParseCriteria(
		sanitizeInput(values.Get("q")),
		values.Get("type"),
		values.Get("range"),
	)
}

// RequestBodyParser reads a body that is either JSON or form encoded. htmx
// sends DELETE parameters in the body, which net/http does not parse.
type RequestBodyParser struct {
	body   []byte
	values url.Values
	json   bool
	done   bool
	err    error
}

// NewRequestBodyParser drains r.Body; Parse decodes it.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{values: url.Values{}}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse decodes a JSON object or a query string. Only the first call does
// any work.
func (p *RequestBodyParser) Parse() error {
	if p.done || p.err != nil {
		return p.err
	}
	p.done = true

	body := bytes.TrimSpace(p.body)
	switch {
	case len(body) == 0:
		return nil
	case body[0] == '{':
		p.json = true
		var obj map[string]any
		if p.err = json.Unmarshal(body, &obj); p.err != nil {
			return p.err
		}
		for k, v := range obj {
			if s := stringValue(v); s != "" {
				p.values.Set(k, s)
			}
		}
		return nil
	default:
		p.values, p.err = url.ParseQuery(string(body))
		return p.err
	}
}

// Values returns the decoded parameters. JSON scalars become strings and
// nested values are skipped.
func (p *RequestBodyParser) Values() url.Values {
	return p.values
}

// IsJSON reports whether the body was a JSON object.
func (p *RequestBodyParser) IsJSON() bool {
	return p.json
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Ungültige Anfrage")
	}
	return nil
}
