// Package httpapi exposes reports over HTTP with gorilla/mux.
//
// Report endpoints are GET /reports/{name}. Responses carry a private
// Cache-Control max-age matching the report TTL and an ETag; a matching
// If-None-Match yields 304. The admin refresh trigger, Prometheus metrics and a
// health check are registered alongside.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/httpcache"
	"github.com/goliatone/go-report-cache/refresh"
	"github.com/goliatone/go-report-cache/reporting"
)

// CorrelationHeader carries the request correlation id in and out.
const CorrelationHeader = "X-Correlation-ID"

// ScopeFunc resolves the caller scope of a request. Authentication happens upstream.
type ScopeFunc func(r *http.Request) cache.Scope

// ReportFunc produces a report for filters as seen by caller.
type ReportFunc[T any] func(ctx context.Context, filters cache.Filters, caller reporting.Caller) (T, error)

// Refresher triggers an on-demand aggregate refresh.
type Refresher interface {
	RunNow(ctx context.Context) (refresh.Result, error)
}

// Server routes report, admin and operational endpoints.
type Server struct {
	router    *mux.Router
	runner    *reporting.Runner
	scope     ScopeFunc
	refresher Refresher
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithScopeFunc sets how the caller scope is read from requests.
func WithScopeFunc(fn ScopeFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.scope = fn
		}
	}
}

// WithRefresher enables POST /admin/reports/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) {
		s.refresher = r
	}
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server whose cache headers follow runner's TTLs.
func NewServer(runner *reporting.Runner, opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		runner: runner,
		scope:  HeaderScope,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.refresher != nil {
		s.router.HandleFunc("/admin/reports/refresh", s.refresh).Methods(http.MethodPost)
	}
	return s
}

// Router returns the underlying router so callers can add routes or middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handle registers GET /reports/{name} served by fn.
func Handle[T any](s *Server, name string, fn ReportFunc[T]) {
	s.router.HandleFunc("/reports/"+name, func(w http.ResponseWriter, r *http.Request) {
		caller := reporting.Caller{
			CorrelationID: r.Header.Get(CorrelationHeader),
			Scope:         s.scope(r),
		}.Resolved(r.Context())
		w.Header().Set(CorrelationHeader, caller.CorrelationID)

		value, err := fn(r.Context(), FiltersFromRequest(r), caller)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "report failed",
				slog.String("endpoint", name),
				slog.String("correlation_id", caller.CorrelationID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "report failed"})
			return
		}

		negotiated, err := httpcache.Negotiate(r.Header.Get("If-None-Match"), value)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "report encoding failed",
				slog.String("endpoint", name),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "report encoding failed"})
			return
		}

		w.Header().Set("Cache-Control", s.cacheControl(name))
		w.Header().Set("ETag", negotiated.Fingerprint)

		if negotiated.NotModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(negotiated.Body)
	}).Methods(http.MethodGet)
}

func (s *Server) cacheControl(report string) string {
	if s.runner == nil || !s.runner.CachingEnabled() {
		return "private, no-cache"
	}
	return fmt.Sprintf("private, max-age=%d", int64(s.runner.TTL(report).Seconds()))
}

type refreshRequest struct {
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

type refreshFailure struct {
	Error  string         `json:"error"`
	Result refresh.Result `json:"result"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	// the refresh is always full, the range is informational
	s.logger.InfoContext(r.Context(), "manual aggregate refresh requested",
		slog.String("date_from", req.DateFrom),
		slog.String("date_to", req.DateTo),
	)

	result, err := s.refresher.RunNow(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "manual aggregate refresh failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, refreshFailure{Error: err.Error(), Result: result})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
