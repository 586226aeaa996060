package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"budget/internal/core"
	"budget/internal/impexp"
	applog "budget/internal/log"
)

// maxImportBytes caps the size of an uploaded import file.
const maxImportBytes = 10 << 20

// handleSetCurrency changes the display currency. Amounts are not converted.
func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	settings, err := s.settings.SetCurrency(r.Context(), r.Form.Get("currency"))
	switch {
	case errors.Is(err, core.ErrUnsupportedCurrency):
		UnprocessableEntityError("Nicht unterstützte Währung").
			TriggerErrorNotification("Nicht unterstützte Währung").
			Write(w)
		return
	case err != nil:
		s.events.LogError(r.Context(), "Failed to save settings", err, applog.ComponentLedger, applog.OpSettings, nil)
		InternalServerError("Einstellungen konnten nicht gespeichert werden").
			TriggerErrorNotification("Einstellungen konnten nicht gespeichert werden").
			Write(w)
		return
	}

	s.renderLedger(w, r, NewHTMXResponse().TriggerCurrencyChanged(settings.Currency))
}

// handleExport downloads the whole ledger as CSV, ignoring search and filters.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	entries := s.entries.All(r.Context())
	data, err := impexp.Export(entries)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to export ledger", err, applog.ComponentImport, applog.OpExport, nil)
		InternalServerError("Export fehlgeschlagen").Write(w)
		return
	}

	s.logger.InfoContext(r.Context(), "Ledger exported",
		applog.FieldOperation, applog.OpExport,
		"count", len(entries))

	NewHTMXResponse().
		Header("Content-Type", "text/csv; charset=utf-8").
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", impexp.ExportFilename(s.entries.Now()))).
		Header("Content-Length", strconv.Itoa(len(data))).
		Body(data).
		Write(w)
}

// handleImport merges an uploaded JSON or CSV file into the ledger.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		s.rejectImport(w, r, "", impexp.ErrUnreadable)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.rejectImport(w, r, "", impexp.ErrUnreadable)
		return
	}
	defer file.Close()

	res, err := impexp.Import(r.Context(), s.entries, header.Filename, file)
	switch {
	case errors.Is(err, impexp.ErrUnreadable), errors.Is(err, impexp.ErrNotAList):
		s.rejectImport(w, r, header.Filename, err)
		return
	case err != nil:
		s.events.LogError(r.Context(), "Failed to store import", err, applog.ComponentImport, applog.OpImport,
			applog.NewFields().WithImport(0, 0))
		InternalServerError("Import fehlgeschlagen").
			TriggerErrorNotification("Import fehlgeschlagen").
			Write(w)
		return
	}

	s.appMetrics.importedTotal.Add(int64(res.Imported))
	s.appMetrics.droppedTotal.Add(int64(res.Dropped))
	s.events.LogImport(r.Context(), header.Filename, res.Imported, res.Dropped)

	msg := fmt.Sprintf("%d Einträge importiert", res.Imported)
	if res.Dropped > 0 {
		msg += fmt.Sprintf(", %d verworfen", res.Dropped)
	}
	s.renderLedger(w, r, NewHTMXResponse().
		TriggerImported(res.Imported, res.Dropped).
		TriggerSuccessNotification(msg))
}

func (s *Server) rejectImport(w http.ResponseWriter, r *http.Request, filename string, err error) {
	msg := impexp.UserMessage(err)
	s.logger.WarnContext(r.Context(), "Import rejected",
		applog.FieldError, err,
		"filename", filename,
		"error_type", applog.ErrorTypeImport)
	BadRequestError(msg).
		TriggerErrorNotification(msg).
		Write(w)
}
