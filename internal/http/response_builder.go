package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponseBuilder collects the status, headers, HX-Trigger events and
// body of one htmx reply. Write sends it.
type HTMXResponseBuilder struct {
	status  int
	header  http.Header
	events  map[string]any
	payload []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: http.Header{},
		events: map[string]any{},
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

// Trigger queues a client event; data becomes event.detail in the browser.
func (b *HTMXResponseBuilder) Trigger(event string, data any) *HTMXResponseBuilder {
	b.events[event] = data
	return b
}

// Ledger events. The page script listens for the form:* ones, the rest are
// for anything else on the page that wants to react.

func (b *HTMXResponseBuilder) TriggerEntryCreated(id string) *HTMXResponseBuilder {
	return b.Trigger("entry:created", map[string]string{"id": id})
}

func (b *HTMXResponseBuilder) TriggerEntryDeleted(id string) *HTMXResponseBuilder {
	return b.Trigger("entry:deleted", map[string]string{"id": id})
}

func (b *HTMXResponseBuilder) TriggerLedgerCleared() *HTMXResponseBuilder {
	return b.Trigger("ledger:cleared", struct{}{})
}

func (b *HTMXResponseBuilder) TriggerImported(imported, dropped int) *HTMXResponseBuilder {
	return b.Trigger("ledger:imported", map[string]int{"imported": imported, "dropped": dropped})
}

func (b *HTMXResponseBuilder) TriggerCurrencyChanged(code string) *HTMXResponseBuilder {
	return b.Trigger("currency:changed", map[string]string{"currency": code})
}

// TriggerFormReset empties the entry form after a successful save.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// TriggerFormInvalid moves focus back to the offending field.
func (b *HTMXResponseBuilder) TriggerFormInvalid(field string) *HTMXResponseBuilder {
	return b.Trigger("form:invalid", map[string]string{"field": field})
}

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     kind,
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// Errors stay on screen a little longer.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.payload = content
	return b
}

func (b *HTMXResponseBuilder) BodyString(s string) *HTMXResponseBuilder {
	return b.Body([]byte(s))
}

func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	return b.BodyString(html)
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range b.header {
		h[name] = values
	}
	if len(b.events) > 0 {
		if raw, err := json.Marshal(b.events); err == nil {
			h.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.payload) > 0 {
		_, _ = w.Write(b.payload)
	}
}

// ErrorResponse renders message, escaped, as an error fragment.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError answers 405 with the Allow header and no body.
func MethodNotAllowedError(allowed string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}
