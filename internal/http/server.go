package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budget/internal/cache"
	"budget/internal/engine"
	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/view"
	appweb "budget/web"
)

// Pinger reports whether the storage behind the ledger is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its stores and tunes the middleware.
type Options struct {
	Addr     string
	Entries  *ledger.EntryStore
	Settings *ledger.SettingsStore
	Storage  Pinger
	Logger   *applog.Logger

	RateLimitPerMinute int
	ViewCacheSize      int
	ViewCacheTTL       time.Duration
}

type Server struct {
	http.Server
	templates *template.Template
	entries   *ledger.EntryStore
	settings  *ledger.SettingsStore
	storage   Pinger
	logger    *applog.Logger
	events    *applog.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	views        *cache.LRUCache[view.Ledger]
	cacheManager *cache.Manager

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	entriesCreated atomic.Int64
	entriesDeleted atomic.Int64
	importedTotal  atomic.Int64
	droppedTotal   atomic.Int64
	uptime         time.Time
}

// NewServer parses the embedded templates, mounts the routes and returns a
// ready-to-run http.Server.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	if opts.ViewCacheSize <= 0 {
		opts.ViewCacheSize = 64
	}
	if opts.ViewCacheTTL <= 0 {
		opts.ViewCacheTTL = 5 * time.Minute
	}

	t, err := template.New("").ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates:        t,
		entries:          opts.Entries,
		settings:         opts.Settings,
		storage:          opts.Storage,
		logger:           logger,
		events:           applog.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		views:            cache.NewLRUCache[view.Ledger](opts.ViewCacheSize, opts.ViewCacheTTL),
		cacheManager:     cache.NewManager(),
	}
	s.appMetrics.uptime = time.Now()
	s.traceMiddleware = trace.NewMiddleware(logger.WithComponent(applog.ComponentTrace), s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.views)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("/static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// UI partials
	mux.HandleFunc("/ui/ledger", s.handleLedger)

	mux.HandleFunc("/entries", s.handleCreateEntry)
	mux.HandleFunc("/entries/delete", s.handleDeleteEntry)
	mux.HandleFunc("/entries/clear", s.handleClearEntries)
	mux.HandleFunc("/settings/currency", s.handleSetCurrency)
	mux.Handle("/export.csv", security.NoStore(http.HandlerFunc(s.handleExport)))
	mux.HandleFunc("/import", s.handleImport)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit, http.MethodPost, http.MethodDelete)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Zu viele Anfragen, bitte später erneut versuchen").
		Header("Retry-After", "60").
		TriggerErrorNotification("Zu viele Anfragen, bitte später erneut versuchen").
		Write(w)
}

// ledgerView returns the render model for c, from the cache when the ledger
// has not changed since it was built.
func (s *Server) ledgerView(ctx context.Context, c engine.Criteria) view.Ledger {
	now := s.entries.Now()
	settings := s.settings.Get()
	key := viewKey(s.entries.Revision(), c, now, settings.Currency)
	if v, ok := s.views.Get(key); ok {
		return v
	}

	list := engine.Filter(s.entries.All(ctx), c, now)
	v := view.Build(list, engine.Aggregate(list), engine.CategoryBreakdown(list), settings, c)
	s.views.Set(key, v)
	return v
}

// Shutdown stops the background sweepers and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.InfoContext(ctx, "HTTP server stopped", applog.FieldOperation, applog.OpShutdown)
	})

	return shutdownErr
}

// renderLedger writes the ledger partial for the criteria carried by r
// together with the triggers collected in b.
func (s *Server) renderLedger(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder) {
	v := s.ledgerView(r.Context(), ParseCriteria(r.Form))

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "ledger", v); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to render ledger",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"error_type", applog.ErrorTypeInternal)
		InternalServerError("Darstellung fehlgeschlagen").Write(w)
		return
	}
	b.BodyHTML(buf.String()).Write(w)
}
