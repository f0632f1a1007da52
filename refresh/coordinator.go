package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SkippedInProgress is reported when another instance holds the refresh lock.
const SkippedInProgress = "another refresh is in progress"

// Outcomes recorded in report_refresh_runs_total.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// View is an aggregate view to refresh. Concurrent views support a refresh that
// keeps them readable; the others only support a blocking refresh.
type View struct {
	Name       string `json:"name" yaml:"name"`
	Concurrent bool   `json:"concurrent" yaml:"concurrent"`
}

// Lease is a held refresh lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out the cluster wide refresh lock.
type Locker interface {
	// TryLock returns immediately. ok is false when another holder has the lock.
	TryLock(ctx context.Context) (lease Lease, ok bool, err error)
}

// Refresher rebuilds one aggregate view.
type Refresher interface {
	Refresh(ctx context.Context, view string, concurrent bool) error
}

// Result describes one refresh run.
type Result struct {
	OK             bool          `json:"ok"`
	ViewsRefreshed []string      `json:"viewsRefreshed"`
	Duration       time.Duration `json:"-"`
	DurationMs     int64         `json:"durationMs"`
	Skipped        string        `json:"skipped,omitempty"`
}

// Coordinator refreshes aggregate views in order under a cluster wide lock so at
// most one instance refreshes at a time.
type Coordinator struct {
	locker    Locker
	refresher Refresher
	views     []View
	clock     clockwork.Clock
	logger    *slog.Logger

	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for run durations.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the refresh collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Coordinator) {
		c.registerMetrics(reg)
	}
}

// NewCoordinator creates a coordinator refreshing views in the given order.
func NewCoordinator(locker Locker, refresher Refresher, views []View, opts ...Option) *Coordinator {
	c := &Coordinator{
		locker:    locker,
		refresher: refresher,
		views:     append([]View(nil), views...),
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	c.registerMetrics(nil)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) registerMetrics(reg prometheus.Registerer) {
	factory := promauto.With(reg)
	c.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "report_refresh_runs_total",
		Help: "Aggregate refresh runs by outcome.",
	}, []string{"outcome"})
	c.duration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_refresh_duration_seconds",
		Help:    "Duration of aggregate refresh runs that acquired the lock.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
}

// Views returns the refresh order.
func (c *Coordinator) Views() []View {
	return append([]View(nil), c.views...)
}

// RefreshAll refreshes every view if the lock is free.
//
// When another holder has the lock the result has OK false, Skipped set and a nil
// error. Each view is refreshed concurrently when supported, falling back to a
// blocking refresh. A failed blocking refresh stops the run: the result lists the
// views refreshed so far and the error is returned. The lock is released on every
// exit path.
func (c *Coordinator) RefreshAll(ctx context.Context) (result Result, err error) {
	start := c.clock.Now()
	result = Result{ViewsRefreshed: []string{}}

	lease, ok, err := c.locker.TryLock(ctx)
	if err != nil {
		c.runs.WithLabelValues(OutcomeFailed).Inc()
		return result, goerrors.Wrap(err, goerrors.CategoryExternal, "acquire refresh lock")
	}
	if !ok {
		c.runs.WithLabelValues(OutcomeSkipped).Inc()
		c.logger.Info("aggregate refresh skipped", slog.String("reason", SkippedInProgress))
		result.Skipped = SkippedInProgress
		return result, nil
	}

	defer func() {
		recovered := recover()

		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			c.logger.Warn("failed to release refresh lock", slog.String("error", releaseErr.Error()))
		}

		elapsed := c.clock.Since(start)
		result.Duration = elapsed
		result.DurationMs = elapsed.Milliseconds()
		c.duration.Observe(elapsed.Seconds())

		if err != nil || recovered != nil {
			c.runs.WithLabelValues(OutcomeFailed).Inc()
		} else {
			c.runs.WithLabelValues(OutcomeSuccess).Inc()
		}

		if recovered != nil {
			panic(recovered)
		}
	}()

	c.logger.Info("aggregate refresh started", slog.Int("views", len(c.views)))

	for _, view := range c.views {
		if err := c.refreshView(ctx, view); err != nil {
			c.logger.Error("aggregate refresh aborted",
				slog.String("view", view.Name),
				slog.Any("refreshed", result.ViewsRefreshed),
				slog.String("error", err.Error()),
			)
			return result, err
		}
		result.ViewsRefreshed = append(result.ViewsRefreshed, view.Name)
	}

	result.OK = true
	c.logger.Info("aggregate refresh finished",
		slog.Any("refreshed", result.ViewsRefreshed),
		slog.Int64("duration_ms", c.clock.Since(start).Milliseconds()),
	)
	return result, nil
}

func (c *Coordinator) refreshView(ctx context.Context, view View) error {
	if view.Concurrent {
		err := c.refresher.Refresh(ctx, view.Name, true)
		if err == nil {
			return nil
		}
		c.logger.Warn("concurrent refresh failed, retrying with blocking refresh",
			slog.String("view", view.Name),
			slog.String("error", err.Error()),
		)
	}

	if err := c.refresher.Refresh(ctx, view.Name, false); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("refresh view %s", view.Name))
	}
	return nil
}
