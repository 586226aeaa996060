package http

import (
	"errors"
	"net/http"

	"budget/internal/core"
	applog "budget/internal/log"
)

// handleCreateEntry adds one entry from the form and re-renders the ledger.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	draft, err := ParseEntryForm(r.Form)
	if err == nil {
		var entry core.Entry
		if entry, err = s.entries.Add(r.Context(), draft); err == nil {
			s.appMetrics.entriesCreated.Add(1)
			s.events.LogEntryAdded(r.Context(), entry.ID, string(entry.Kind), entry.Title, entry.Amount.Cents, entry.Category)
			s.renderLedger(w, r, NewHTMXResponse().
				TriggerEntryCreated(entry.ID).
				TriggerFormReset())
			return
		}
	}

	var fe *FormError
	if !errors.As(err, &fe) {
		fe = formError(err)
	}
	if fe != nil {
		s.logger.WarnContext(r.Context(), "Entry rejected",
			applog.FieldError, err,
			"field", fe.Field,
			"error_type", applog.ErrorTypeValidation)
		UnprocessableEntityError(fe.Message).
			TriggerFormInvalid(fe.Field).
			TriggerErrorNotification(fe.Message).
			Write(w)
		return
	}

	s.events.LogError(r.Context(), "Failed to save entry", err, applog.ComponentLedger, applog.OpCreate, nil)
	InternalServerError("Eintrag konnte nicht gespeichert werden").
		TriggerErrorNotification("Eintrag konnte nicht gespeichert werden").
		Write(w)
}

// handleDeleteEntry removes one entry by id. The id may come from the query,
// a form body or a JSON body. An unknown id is not an error.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Ungültige Anfrage").Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	for k, v := range parser.Values() {
		r.Form[k] = v
	}

	id := sanitizeInput(r.Form.Get("id"))
	if id == "" {
		BadRequestError("ID fehlt").Write(w)
		return
	}

	removed, err := s.entries.Remove(r.Context(), id)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to delete entry", err, applog.ComponentLedger, applog.OpDelete,
			applog.NewFields().WithEntry(id, "", "", 0, ""))
		InternalServerError("Eintrag konnte nicht gelöscht werden").
			TriggerErrorNotification("Eintrag konnte nicht gelöscht werden").
			Write(w)
		return
	}

	b := NewHTMXResponse()
	if removed {
		s.appMetrics.entriesDeleted.Add(1)
		s.logger.InfoContext(r.Context(), "Entry deleted",
			applog.FieldEntryID, id,
			applog.FieldOperation, applog.OpDelete)
		b.TriggerEntryDeleted(id)
	}
	s.renderLedger(w, r, b)
}

// handleClearEntries empties the ledger. The page asks for confirmation
// before sending the request.
func (s *Server) handleClearEntries(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	n := s.entries.Len()
	if err := s.entries.Clear(r.Context()); err != nil {
		s.events.LogError(r.Context(), "Failed to clear ledger", err, applog.ComponentLedger, applog.OpClear, nil)
		InternalServerError("Löschen fehlgeschlagen").
			TriggerErrorNotification("Löschen fehlgeschlagen").
			Write(w)
		return
	}

	s.appMetrics.entriesDeleted.Add(int64(n))
	s.logger.InfoContext(r.Context(), "Ledger cleared",
		applog.FieldOperation, applog.OpClear,
		"removed", n)
	s.renderLedger(w, r, NewHTMXResponse().
		TriggerLedgerCleared().
		TriggerSuccessNotification("Alle Einträge gelöscht"))
}
