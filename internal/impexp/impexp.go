// Package impexp converts the ledger to and from files: a CSV export of every
// entry and a tolerant JSON (or CSV) import that yields loosely typed records
// for ledger.EntryStore.ImportMerge.
package impexp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/ledger"
)

var (
	// ErrUnreadable means the file could not be parsed at all.
	ErrUnreadable = errors.New("unreadable import file")
	ErrNotAList   = core.ErrNotAList
)

// Header is the first CSV row of every export.
var Header = []string{"id", "art", "titel", "kategorie", "datum", "betrag"}

// csvToRecord maps export columns back to import field names.
var csvToRecord = map[string]string{
	"id":        "id",
	"art":       "type",
	"titel":     "title",
	"kategorie": "category",
	"datum":     "date",
	"betrag":    "amount",
}

// ExportFilename names the export file after the given day.
func ExportFilename(now time.Time) string {
	return "budget-export-" + now.Format("2006-01-02") + ".csv"
}

// WriteCSV writes one row per entry. Fields containing commas, quotes or
// newlines are quoted.
func WriteCSV(w io.Writer, entries []core.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.ID,
			string(e.Kind),
			e.Title,
			e.Category,
			e.Date.String(),
			e.Amount.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// DecodeJSON reads a JSON array of records. Elements that are not objects
// become empty records, which the ledger drops.
func DecodeJSON(r io.Reader) ([]map[string]any, error) {
	var payload any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrUnreadable)
	}
	list, ok := payload.([]any)
	if !ok {
		return nil, ErrNotAList
	}
	records := make([]map[string]any, len(list))
	for i, item := range list {
		if obj, ok := item.(map[string]any); ok {
			records[i] = obj
		}
	}
	return records, nil
}

// DecodeCSV reads a file in the export layout. Unknown columns are ignored.
func DecodeCSV(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty csv", ErrUnreadable)
	}

	fields := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		fields[i] = csvToRecord[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))]
	}

	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := map[string]any{}
		for i, v := range row {
			if i < len(fields) && fields[i] != "" {
				rec[fields[i]] = v
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Decode picks the CSV reader for .csv names and JSON for everything else.
func Decode(name string, r io.Reader) ([]map[string]any, error) {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return DecodeCSV(r)
	}
	return DecodeJSON(r)
}

// Merger is the ledger side of an import.
type Merger interface {
	ImportMerge(ctx context.Context, records []map[string]any) (ledger.ImportResult, error)
}

// Import decodes the file and merges it into m. The ledger is untouched when
// decoding fails.
func Import(ctx context.Context, m Merger, name string, r io.Reader) (ledger.ImportResult, error) {
	records, err := Decode(name, r)
	if err != nil {
		return ledger.ImportResult{}, err
	}
	return m.ImportMerge(ctx, records)
}

// Export renders the CSV into memory, so a failure never produces a partial
// download.
func Export(entries []core.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UserMessage is the German text shown for an import failure.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAList):
		return "Ungültiges JSON"
	case errors.Is(err, ErrUnreadable):
		return "Konnte Datei nicht lesen"
	default:
		return "Import fehlgeschlagen"
	}
}
