package http

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"iptvprofit/internal/core"
	"iptvprofit/internal/log"
	"iptvprofit/internal/metrics"
	"iptvprofit/internal/middleware/ratelimit"
	"iptvprofit/internal/middleware/security"
	"iptvprofit/internal/middleware/trace"
	"iptvprofit/internal/presenter"
	"iptvprofit/internal/services"
	appweb "iptvprofit/web"
)

// Ledger is the write side used by the handlers.
type Ledger interface {
	ListSales(ctx context.Context) ([]core.Sale, error)
	ListAdSpends(ctx context.Context) ([]core.AdSpend, error)
	CreateSale(ctx context.Context, in core.SaleInput) (core.Sale, error)
	UpdateSale(ctx context.Context, id int64, in core.SaleInput) (core.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	CreateAdSpend(ctx context.Context, in core.AdSpendInput) (core.AdSpend, error)
}

// Reports produces aggregated snapshots.
type Reports interface {
	Snapshot(ctx context.Context) (services.Snapshot, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Ledger             Ledger
	Reports            Reports
	Presenter          *presenter.Presenter
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	Pinger             Pinger
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	TrustedProxies     []string
}

type Server struct {
	http.Server
	templates      *template.Template
	ledger         Ledger
	reports        Reports
	presenter      *presenter.Presenter
	metrics        *metrics.Metrics
	logger         *log.Logger
	pinger         Pinger
	limiter        *ratelimit.Limiter
	detector       *security.Detector
	requestTimeout time.Duration
	started        time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. Templates are parsed from the
// embedded filesystem; a parse failure is returned since the dashboard
// cannot work without them.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Presenter == nil {
		opts.Presenter = presenter.New(presenter.Options{})
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 7 * time.Second
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		templates:      t,
		ledger:         opts.Ledger,
		reports:        opts.Reports,
		presenter:      opts.Presenter,
		metrics:        opts.Metrics,
		logger:         opts.Logger.WithComponent(log.ComponentHTTP),
		pinger:         opts.Pinger,
		limiter:        ratelimit.NewLimiter(limiterCfg),
		detector:       security.NewDetector(),
		requestTimeout: opts.RequestTimeout,
		started:        time.Now(),
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// JSON API
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/ad-spends", s.handleListAdSpends)
	mux.HandleFunc("POST /api/ad-spends", s.handleCreateAdSpend)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/daily-summaries", s.handleDailySummaries)
	mux.HandleFunc("GET /api/report", s.handleReport)

	// Dashboard
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /ui/sales/form", s.handleSaleForm)
	mux.HandleFunc("GET /ui/sales/{id}/edit", s.handleEditSaleForm)
	mux.HandleFunc("POST /ui/sales", s.handleUICreateSale)
	mux.HandleFunc("PUT /ui/sales/{id}", s.handleUIUpdateSale)
	mux.HandleFunc("DELETE /ui/sales/{id}", s.handleUIDeleteSale)
	mux.HandleFunc("POST /ui/ad-spends", s.handleUICreateAdSpend)
}

// chain applies the middleware outermost first: security headers, request
// tracing, suspicious request detection, rate limiting, then metrics.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.metrics.Middleware(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = s.detector.Middleware(h)
	h = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordRateLimited()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
	)
	if isHTMX(r) {
		ErrorResponse(http.StatusTooManyRequests, "Too many changes, please wait a minute.").Write(w)
		return
	}
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"uptime":              time.Since(s.started).Round(time.Second).String(),
		"suspicious_requests": s.detector.SuspiciousCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	checks := map[string]string{"templates": "ok", "store": "ok"}
	status := http.StatusOK
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg, field string) {
	body := map[string]string{"error": msg}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
