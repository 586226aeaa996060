package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	kv      *memory.Store
	entries *ledger.EntryStore
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	kv := memory.New()

	n := 0
	entries, err := ledger.Open(ctx, kv,
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		ledger.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("open entries: %v", err)
	}
	settings, err := ledger.OpenSettings(ctx, kv, "CHF")
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}

	opts.Entries = entries
	opts.Settings = settings
	opts.Logger = applog.New(applog.Config{Output: io.Discard})
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, kv: kv, entries: entries}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postForm(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req)
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Neuer Eintrag", "Keine Einträge", "Wirklich alles löschen?", `value="2024-03-15"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("middleware headers missing: %v", rr.Header())
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

// The import picker must be reset after every upload, including rejected ones,
// or choosing the same file again does not fire change.
func TestImportPickerResetsAfterAnyUpload(t *testing.T) {
	env := newTestEnv(t, Options{})

	page := env.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if !strings.Contains(page, `id="import-form"`) {
		t.Fatalf("index has no import form")
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("app.js status=%d", rr.Code)
	}
	script := rr.Body.String()
	if !strings.Contains(script, "htmx:afterRequest") || !strings.Contains(script, "'import-form'") {
		t.Fatalf("app.js does not reset the import picker after requests")
	}
	if strings.Contains(script, "'ledger:imported'") {
		t.Fatalf("picker reset must not depend on a successful import")
	}
}

func TestReadyReportsStorageFailure(t *testing.T) {
	env := newTestEnv(t, Options{Storage: failingPinger{}})
	rr := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "disk gone") {
		t.Fatalf("readiness body missing cause: %s", rr.Body.String())
	}
}

func TestCreateEntryValidationAndSuccess(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/entries", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	invalid := []struct {
		name  string
		body  string
		field string
	}{
		{"garbage amount", "kind=expense&title=x&amount=abc", "amount"},
		{"zero amount", "kind=expense&title=x&amount=0", "amount"},
		{"blank title", "kind=expense&title=+++&amount=1", "title"},
		{"unknown kind", "kind=transfer&title=x&amount=1", "kind"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.postForm("/entries", tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}
			want := fmt.Sprintf(`"form:invalid":{"field":%q}`, tt.field)
			if !strings.Contains(rr.Header().Get("HX-Trigger"), want) {
				t.Fatalf("HX-Trigger missing %s: %s", want, rr.Header().Get("HX-Trigger"))
			}
		})
	}
	if env.entries.Len() != 0 {
		t.Fatalf("rejected entries must not be stored")
	}

	rr = env.postForm("/entries", "kind=expense&date=2024-03-02&title=%3Cb%3ECoffee%3C%2Fb%3E&amount=4,50")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, want := range []string{`"entry:created":{"id":"id-1"}`, `"form:reset"`} {
		if !strings.Contains(trigger, want) {
			t.Fatalf("HX-Trigger missing %s: %s", want, trigger)
		}
	}
	body := rr.Body.String()
	if strings.Contains(body, "<b>Coffee</b>") || !strings.Contains(body, "&lt;b&gt;Coffee&lt;/b&gt;") {
		t.Fatalf("title must be escaped: %s", body)
	}
	if !strings.Contains(body, "Sonstiges") || !strings.Contains(body, "Ausgabe") {
		t.Fatalf("row missing default category or label: %s", body)
	}

	all := env.entries.All(context.Background())
	if len(all) != 1 || all[0].Amount.Cents != 450 || all[0].Date.String() != "2024-03-02" {
		t.Fatalf("unexpected stored entries %+v", all)
	}
}

func TestCreateEntryStorageFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.kv.FailPuts = errors.New("quota exceeded")

	rr := env.postForm("/entries", "kind=income&title=Salary&amount=100")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if env.entries.Len() != 0 {
		t.Fatalf("failed save must leave the ledger unchanged")
	}
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postForm("/entries", "kind=expense&title=A&amount=1")
	env.postForm("/entries", "kind=expense&title=B&amount=2")

	rr := env.postForm("/entries/delete", "id=id-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"entry:deleted":{"id":"id-1"}`) {
		t.Fatalf("missing entry:deleted trigger: %s", rr.Header().Get("HX-Trigger"))
	}
	if env.entries.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", env.entries.Len())
	}

	req := httptest.NewRequest(http.MethodDelete, "/entries/delete", strings.NewReader(`{"id":"id-2"}`))
	req.Header.Set("Content-Type", "application/json")
	if rr := env.do(req); rr.Code != http.StatusOK || env.entries.Len() != 0 {
		t.Fatalf("JSON delete failed: status=%d len=%d", rr.Code, env.entries.Len())
	}

	rr = env.postForm("/entries/delete", "id=missing")
	if rr.Code != http.StatusOK || rr.Header().Get("HX-Trigger") != "" {
		t.Fatalf("unknown id must be a no-op: status=%d trigger=%q", rr.Code, rr.Header().Get("HX-Trigger"))
	}

	if rr := env.postForm("/entries/delete", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", rr.Code)
	}
}

func TestClearEntries(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postForm("/entries", "kind=expense&title=A&amount=1")

	rr := env.postForm("/entries/clear", "")
	if rr.Code != http.StatusOK || env.entries.Len() != 0 {
		t.Fatalf("clear failed: status=%d len=%d", rr.Code, env.entries.Len())
	}
	if !strings.Contains(rr.Body.String(), "Keine Einträge") {
		t.Fatalf("cleared ledger should render empty")
	}
}

func TestLedgerPartialFilters(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postForm("/entries", "kind=income&title=Salary&category=Lohn&amount=5000&date=2024-03-01")
	env.postForm("/entries", "kind=expense&title=Coffee&amount=4.50&date=2024-02-10")

	tests := []struct {
		query   string
		want    string
		notWant string
	}{
		{"q=coffee", "Coffee", "Salary"},
		{"q=LOHN", "Salary", "Coffee"},
		{"type=income", "Salary", "Coffee"},
		{"range=month", "Salary", "Coffee"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger?"+tt.query, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			body := rr.Body.String()
			if !strings.Contains(body, tt.want) || strings.Contains(body, tt.notWant) {
				t.Fatalf("want %q without %q in %s", tt.want, tt.notWant, body)
			}
		})
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger?range=month", nil))
	if !strings.Contains(rr.Body.String(), "aktueller Monat") {
		t.Fatalf("range label missing")
	}
}

func TestViewCacheFollowsMutations(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger", nil))
	if stats := env.srv.views.Stats(); stats.Hits != 1 {
		t.Fatalf("expected a cache hit, got %+v", stats)
	}

	env.postForm("/entries", "kind=expense&title=Rent&amount=1200")
	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger", nil))
	if !strings.Contains(rr.Body.String(), "Rent") {
		t.Fatalf("stale view served after mutation")
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postForm("/entries", "kind=expense&title=Coffee&amount=4.50&date=2024-03-02")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/export.csv?q=nothing-matches", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "budget-export-2024-03-15.csv") {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("export must not be cached")
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || lines[0] != "id,art,titel,kategorie,datum,betrag" {
		t.Fatalf("unexpected CSV %q", rr.Body.String())
	}
	if !strings.Contains(lines[1], "Coffee") || !strings.HasSuffix(lines[1], "4.50") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestImport(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.upload(t, "backup.json", `[{"type":"expense","title":"Rent","amount":1200,"date":"2024-03-01"},{"title":"no amount"}]`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"imported":1`) || !strings.Contains(trigger, `"dropped":1`) {
		t.Fatalf("unexpected trigger %s", trigger)
	}
	if env.entries.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", env.entries.Len())
	}

	failures := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"object instead of list", "x.json", `{"type":"expense"}`, "Ungültiges JSON"},
		{"not json", "x.json", `nope`, "Konnte Datei nicht lesen"},
		{"json followed by garbage", "x.json", `[{"amount":5,"title":"a"}] not json`, "Konnte Datei nicht lesen"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.upload(t, tt.filename, tt.content)
			if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), tt.want) {
				t.Fatalf("expected 400 %q, got %d %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
	if env.entries.Len() != 1 {
		t.Fatalf("failed imports must leave the ledger unchanged")
	}

	if rr := env.postForm("/import", "file=x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart file, got %d", rr.Code)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t, Options{})
	src.postForm("/entries", "kind=income&title=Salary%2C+March&category=Lohn&amount=5000.005&date=2024-03-01")
	src.postForm("/entries", "kind=expense&title=Coffee&amount=4.50&date=2024-03-02")
	csv := src.do(httptest.NewRequest(http.MethodGet, "/export.csv", nil)).Body.String()

	dst := newTestEnv(t, Options{})
	if rr := dst.upload(t, "budget-export-2024-03-15.csv", csv); rr.Code != http.StatusOK {
		t.Fatalf("CSV import failed: %d %s", rr.Code, rr.Body.String())
	}

	got := dst.entries.All(context.Background())
	want := src.entries.All(context.Background())
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	byID := make(map[string]int, len(got))
	for i, e := range got {
		byID[e.ID] = i
	}
	for _, w := range want {
		i, ok := byID[w.ID]
		if !ok {
			t.Fatalf("entry %s missing after round trip", w.ID)
		}
		g := got[i]
		if g.Kind != w.Kind || g.Title != w.Title || g.Category != w.Category || g.Amount != w.Amount || !g.Date.Equal(w.Date.Time) {
			t.Fatalf("entry %s differs: got %+v want %+v", w.ID, g, w)
		}
	}
}

func TestSetCurrency(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.postForm("/settings/currency", "currency=eur")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"currency":"EUR"`) {
		t.Fatalf("missing currency trigger: %s", rr.Header().Get("HX-Trigger"))
	}

	if rr := env.postForm("/settings/currency", "currency=XYZ"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rr.Body.String(), `<option value="EUR" selected>`) {
		t.Fatalf("currency selector should show EUR")
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := env.postForm("/entries/clear", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := env.postForm("/entries/clear", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}

	if rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/ledger", nil)); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.postForm("/entries", "kind=expense&title=A&amount=1")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{"ledger_entries 1", "entries_created_total 1", "http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
