package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"sitefin/internal/core"
	applog "sitefin/internal/log"
	"sitefin/internal/middleware/ratelimit"
	"sitefin/internal/middleware/security"
	"sitefin/internal/middleware/trace"
	"sitefin/internal/services"
)

// Ledger is the set of ledger operations the API exposes.
type Ledger interface {
	CreateSite(ctx context.Context, name, supervisorID string) (core.Site, error)
	GetSite(ctx context.Context, id string) (core.Site, error)
	ListSites(ctx context.Context) ([]core.Site, error)
	SetSiteCompleted(ctx context.Context, id string, completed bool) (core.Site, error)
	DeleteSite(ctx context.Context, id string) error

	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Summary, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, siteID string) ([]core.Transaction, error)
	SetTransactionStatus(ctx context.Context, id string, status core.Status) (core.Transaction, core.Summary, error)
	DeleteTransaction(ctx context.Context, id string) (core.Summary, error)

	PostTransfer(ctx context.Context, t core.SupervisorTransfer) (core.SupervisorTransfer, []core.Summary, error)
	GetTransfer(ctx context.Context, id string) (core.SupervisorTransfer, error)
	ListTransfers(ctx context.Context, siteID string) ([]core.SupervisorTransfer, error)
	DeleteTransfer(ctx context.Context, id string) ([]core.Summary, error)

	GetSummary(ctx context.Context, siteID string) (core.Summary, error)
	RecomputeSite(ctx context.Context, siteID string) (core.Summary, error)
	RecomputeAll(ctx context.Context) (services.RepairReport, error)
	Subscribe(ctx context.Context, siteID string) (<-chan core.SummaryChanged, func(), error)
}

// Options tunes the server. Zero values pick defaults.
type Options struct {
	// RateLimitPerMinute bounds mutating requests per client (default: 120)
	RateLimitPerMinute int

	// Ready reports whether dependencies are reachable; nil means always ready
	Ready func(ctx context.Context) error

	// Logger is attached to every request context
	Logger *applog.Logger

	// HeartbeatInterval spaces SSE keep-alive comments (default: 25s)
	HeartbeatInterval time.Duration
}

type Server struct {
	http.Server
	ledger      Ledger
	ready       func(ctx context.Context) error
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter
	heartbeat   time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}

	s := &Server{
		ledger:      ledger,
		ready:       opts.Ready,
		tracer:      trace.NewMiddleware(security.ClientIP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		heartbeat:   opts.HeartbeatInterval,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.Logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.rateLimiter.Middleware(security.ClientIP, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, retry later")
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeValidation, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/recompute", s.handleRecomputeAll)

		r.Route("/sites", func(r chi.Router) {
			r.Post("/", s.handleCreateSite)
			r.Get("/", s.handleListSites)
			r.Route("/{siteID}", func(r chi.Router) {
				r.Get("/", s.handleGetSite)
				r.Patch("/", s.handleUpdateSite)
				r.Delete("/", s.handleDeleteSite)
				r.Get("/summary", s.handleGetSummary)
				r.Post("/recompute", s.handleRecomputeSite)
				r.Get("/transactions", s.handleListTransactions)
				r.Get("/transfers", s.handleListTransfers)
				r.Get("/events", s.handleEvents)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", s.handleCreateTransaction)
			r.Get("/{id}", s.handleGetTransaction)
			r.Patch("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", s.handlePostTransfer)
			r.Get("/{id}", s.handleGetTransfer)
			r.Delete("/{id}", s.handleDeleteTransfer)
		})
	})

	return r
}

// Metrics returns the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
