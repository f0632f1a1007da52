package aggregate

import (
	"context"
	"log/slog"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-report-cache/cache"
)

// DefaultWarnEvery is how many consecutive fallbacks of one view trigger a warning.
const DefaultWarnEvery = 10

// Fallback reasons recorded in report_aggregate_fallbacks_total.
const (
	ReasonError = "error"
	ReasonEmpty = "empty"
)

// Source reads report sections from precomputed aggregate views.
//
// Every failure is converted into "unavailable" so callers fall back to raw
// queries. Fallbacks are counted per view and a warning is logged each time a
// view falls back WarnEvery times in a row, so a broken view shows up without
// changing the result callers see.
type Source struct {
	db        bun.IDB
	enabled   bool
	logger    *slog.Logger
	warnEvery int64

	hits      *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	streaks   *xsync.MapOf[string, int64]
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger fallbacks are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegisterer registers the source's counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Source) {
		s.registerMetrics(reg)
	}
}

// WithWarnEvery sets the consecutive fallback count that triggers a warning. Zero or
// less disables the warning.
func WithWarnEvery(n int) Option {
	return func(s *Source) {
		s.warnEvery = int64(n)
	}
}

// WithEnabled turns the aggregate path on or off. A disabled source always reports unavailable.
func WithEnabled(enabled bool) Option {
	return func(s *Source) {
		s.enabled = enabled
	}
}

// NewSource creates a Source querying db. A nil db disables the source.
func NewSource(db bun.IDB, opts ...Option) *Source {
	s := &Source{
		db:        db,
		enabled:   true,
		logger:    slog.Default(),
		warnEvery: DefaultWarnEvery,
		streaks:   xsync.NewMapOf[string, int64](),
	}
	s.registerMetrics(nil)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) registerMetrics(reg prometheus.Registerer) {
	factory := promauto.With(reg)
	s.hits = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "report_aggregate_hits_total",
		Help: "Report sections answered from aggregate views.",
	}, []string{"view"})
	s.fallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "report_aggregate_fallbacks_total",
		Help: "Aggregate lookups that fell back to raw queries, by reason.",
	}, []string{"view", "reason"})
}

// Enabled reports whether the source will query aggregates at all.
func (s *Source) Enabled() bool {
	return s != nil && s.enabled && s.db != nil
}

// ConsecutiveFallbacks returns how many times view fell back since its last hit.
func (s *Source) ConsecutiveFallbacks(view string) int64 {
	if s == nil {
		return 0
	}
	n, _ := s.streaks.Load(view)
	return n
}

// Try reads the rows of view matching filters. It returns false when the request
// is not eligible, the source is disabled, the query fails or no rows match.
// The caller must then use the raw path; false never means "the answer is empty".
func Try[T any](ctx context.Context, s *Source, view View[T], filters cache.Filters) ([]T, bool) {
	if !s.Enabled() || !Eligible(filters) {
		return nil, false
	}

	var rows []T
	q := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS ?TableAlias", bun.Ident(view.Name))

	criteria := append([]repository.SelectCriteria{
		ScopeCriteria(filters, view.columns()),
		DateRangeCriteria(view.dateColumn(), filters.DateFrom, filters.DateTo),
	}, view.Criteria...)
	for _, c := range criteria {
		q = c(q)
	}

	if err := q.Scan(ctx); err != nil {
		s.fallback(ctx, view.Name, ReasonError, slog.String("error", err.Error()))
		return nil, false
	}
	if len(rows) == 0 {
		s.fallback(ctx, view.Name, ReasonEmpty)
		return nil, false
	}

	s.hits.WithLabelValues(view.Name).Inc()
	s.streaks.Delete(view.Name)
	return rows, true
}

func (s *Source) fallback(ctx context.Context, view, reason string, attrs ...slog.Attr) {
	s.fallbacks.WithLabelValues(view, reason).Inc()

	streak, _ := s.streaks.Compute(view, func(old int64, _ bool) (int64, bool) {
		return old + 1, false
	})

	attrs = append(attrs,
		slog.String("view", view),
		slog.String("reason", reason),
		slog.Int64("consecutive", streak),
	)
	s.logger.LogAttrs(ctx, slog.LevelDebug, "aggregate unavailable, using raw query", attrs...)

	if s.warnEvery > 0 && streak%s.warnEvery == 0 {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "aggregate view keeps falling back", attrs...)
	}
}
