package reporting

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-report-cache/cache"
)

const tracerName = "github.com/goliatone/go-report-cache/reporting"

// Config controls caching and slow query reporting for a Runner.
type Config struct {
	// Enabled turns result caching on. When false every run computes.
	Enabled bool
	// DefaultTTL applies to reports without an override.
	DefaultTTL time.Duration
	// TTLOverrides maps report names to their own TTL.
	TTLOverrides map[string]time.Duration
	// SlowQueryThreshold triggers a warning when a computation takes longer. Zero disables it.
	SlowQueryThreshold time.Duration
}

// ComputeFunc produces a report. It receives a Probe for timing subqueries and
// tagging which source answered each section.
type ComputeFunc[T any] func(ctx context.Context, p *Probe) (T, error)

// PerfRecord is the structured performance event emitted once per computed report.
type PerfRecord struct {
	Endpoint      string            `json:"endpoint"`
	CorrelationID string            `json:"correlationId"`
	Filters       cache.Filters     `json:"filters"`
	TotalMs       int64             `json:"totalMs"`
	CacheHit      bool              `json:"cacheHit"`
	DataSource    map[string]Source `json:"dataSource"`
	Subqueries    map[string]int64  `json:"subqueries"`
}

// Runner is the read-through path every report goes through: cache lookup,
// computation with per section timing, cache store, and perf logging.
// It is safe for concurrent use as long as its Store is.
type Runner struct {
	cfg     Config
	store   cache.Store
	keys    *cache.KeyBuilder
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	flight  singleflight.Group
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used for expiry and timings.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger perf records are written to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// WithKeyBuilder replaces the default key builder.
func WithKeyBuilder(keys *cache.KeyBuilder) Option {
	return func(r *Runner) {
		if keys != nil {
			r.keys = keys
		}
	}
}

// WithTracer sets the tracer used for report spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRunner creates a Runner caching into store. A nil store disables caching.
func NewRunner(cfg Config, store cache.Store, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		store:  store,
		keys:   cache.NewKeyBuilder(),
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns how long results for report stay cached.
func (r *Runner) TTL(report string) time.Duration {
	if ttl, ok := r.cfg.TTLOverrides[report]; ok && ttl > 0 {
		return ttl
	}
	return r.cfg.DefaultTTL
}

// CachingEnabled reports whether results are cached.
func (r *Runner) CachingEnabled() bool {
	return r.cfg.Enabled && r.store != nil
}

// Run returns the report named report for filters and caller, computing it with
// compute on a cache miss. Errors from compute are returned unchanged and nothing
// is cached for them. Concurrent misses for the same key share one computation,
// and a caller whose ctx is cancelled returns ctx.Err() without failing the others.
func Run[T any](ctx context.Context, r *Runner, report string, filters cache.Filters, caller Caller, compute ComputeFunc[T]) (T, error) {
	var zero T

	correlationID := caller.correlationID(ctx)
	ctx = WithCorrelationID(ctx, correlationID)

	ctx, span := r.tracer.Start(ctx, "report.run", trace.WithAttributes(
		attribute.String("report.name", report),
		attribute.String("report.correlation_id", correlationID),
	))
	defer span.End()

	start := r.clock.Now()
	caching := r.CachingEnabled()

	var key string
	if caching {
		key = r.keys.BuildKey(report, filters, caller.Scope)
		if cached, ok := r.store.Get(key, start); ok {
			if value, ok := cached.(T); ok {
				r.metrics.cacheHit(report)
				span.SetAttributes(attribute.Bool("report.cache_hit", true))
				r.logger.LogAttrs(ctx, slog.LevelDebug, "report cache hit",
					slog.String("endpoint", report),
					slog.String("correlation_id", correlationID),
				)
				return value, nil
			}
			r.logger.LogAttrs(ctx, slog.LevelWarn, "cached report has unexpected type",
				slog.String("endpoint", report),
				slog.String("correlation_id", correlationID),
			)
		}
		r.metrics.cacheMiss(report)
		r.logger.LogAttrs(ctx, slog.LevelDebug, "report cache miss",
			slog.String("endpoint", report),
			slog.String("correlation_id", correlationID),
		)
	}
	span.SetAttributes(attribute.Bool("report.cache_hit", false))

	var (
		out    computed
		err    error
		shared bool
	)
	if caching {
		out, shared, err = r.coalesce(ctx, key, report, func(ctx context.Context, p *Probe) (any, error) {
			value, err := compute(ctx, p)
			return value, err
		})
	} else {
		probe := newProbe(ctx, r.clock, r.tracer)
		out.value, err = compute(ctx, probe)
		out.sources, out.subqueries = probe.Sources(), probe.Subqueries()
	}

	if err != nil {
		r.metrics.failed(report)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	elapsed := r.clock.Since(start)
	r.emit(ctx, PerfRecord{
		Endpoint:      report,
		CorrelationID: correlationID,
		Filters:       filters,
		TotalMs:       elapsed.Milliseconds(),
		CacheHit:      false,
		DataSource:    out.sources,
		Subqueries:    out.subqueries,
	}, elapsed, shared)

	value, _ := out.value.(T)
	return value, nil
}

// computed is a finished computation together with what its probe recorded.
type computed struct {
	value      any
	sources    map[string]Source
	subqueries map[string]int64
}

// coalesce runs compute once per key across concurrent callers and caches the
// result. The computation is detached from any single caller's cancellation;
// each caller stops waiting when its own ctx is done.
func (r *Runner) coalesce(ctx context.Context, key, report string, compute func(context.Context, *Probe) (any, error)) (computed, bool, error) {
	detached := context.WithoutCancel(ctx)
	results := r.flight.DoChan(key, func() (any, error) {
		probe := newProbe(detached, r.clock, r.tracer)
		value, err := compute(detached, probe)
		if err != nil {
			return nil, err
		}
		r.store.Set(key, value, r.TTL(report), r.clock.Now())
		return computed{value: value, sources: probe.Sources(), subqueries: probe.Subqueries()}, nil
	})

	select {
	case <-ctx.Done():
		return computed{}, false, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return computed{}, res.Shared, res.Err
		}
		out, _ := res.Val.(computed)
		return out, res.Shared, nil
	}
}

func (r *Runner) emit(ctx context.Context, record PerfRecord, elapsed time.Duration, shared bool) {
	slow := r.cfg.SlowQueryThreshold > 0 && elapsed > r.cfg.SlowQueryThreshold
	r.metrics.computed(record.Endpoint, elapsed.Seconds(), slow)

	attrs := perfAttrs(record)
	if shared {
		attrs = append(attrs, slog.Bool("coalesced", true))
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "report performance", attrs...)
	if slow {
		attrs = append(attrs, slog.Int64("threshold_ms", r.cfg.SlowQueryThreshold.Milliseconds()))
		r.logger.LogAttrs(ctx, slog.LevelWarn, "slow report query", attrs...)
	}
}

func perfAttrs(record PerfRecord) []slog.Attr {
	sources := make([]any, 0, len(record.DataSource)*2)
	for section, source := range record.DataSource {
		sources = append(sources, slog.String(section, string(source)))
	}

	subqueries := make([]any, 0, len(record.Subqueries)*2)
	for name, ms := range record.Subqueries {
		subqueries = append(subqueries, slog.Int64(name, ms))
	}

	return []slog.Attr{
		slog.String("endpoint", record.Endpoint),
		slog.String("correlation_id", record.CorrelationID),
		slog.Group("filters",
			slog.String("company_id", record.Filters.CompanyID),
			slog.String("branch_id", record.Filters.BranchID),
			slog.String("station_id", record.Filters.StationID),
			slog.String("product_id", record.Filters.ProductID),
			slog.String("date_from", record.Filters.DateFrom),
			slog.String("date_to", record.Filters.DateTo),
		),
		slog.Int64("total_ms", record.TotalMs),
		slog.Bool("cache_hit", record.CacheHit),
		slog.Group("data_source", sources...),
		slog.Group("subqueries", subqueries...),
	}
}
