package di

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-report-cache/aggregate"
	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/pkg/config"
	"github.com/goliatone/go-report-cache/refresh"
	"github.com/goliatone/go-report-cache/reporting"
	"github.com/goliatone/go-report-cache/reports/sales"
	"github.com/goliatone/go-report-cache/transport/httpapi"
)

// Container wires the report service from a resolved configuration.
// Components are created once and shared; the container does not own the
// database handle.
type Container struct {
	config   config.Config
	db       *bun.DB
	logger   *slog.Logger
	registry *prometheus.Registry

	store      cache.Store
	keys       *cache.KeyBuilder
	runner     *reporting.Runner
	aggregates *aggregate.Source
	sales      *sales.Service

	locker      refresh.Locker
	refresher   refresh.Refresher
	coordinator *refresh.Coordinator
	scheduler   *refresh.Scheduler

	server *httpapi.Server
}

// Option customizes a Container before its components are built.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRefreshBackend replaces the lock and refresh implementations. Without it
// Postgres databases get advisory locks and REFRESH MATERIALIZED VIEW, and other
// databases get no refresh pipeline.
func WithRefreshBackend(locker refresh.Locker, refresher refresh.Refresher) Option {
	return func(c *Container) {
		c.locker = locker
		c.refresher = refresher
	}
}

// NewContainer validates cfg and builds the service components on top of db.
func NewContainer(cfg config.Config, db *bun.DB, opts ...Option) (*Container, error) {
	if db == nil {
		return nil, goerrors.New("database is required", goerrors.CategoryValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config:   cfg,
		db:       db,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := cache.NewStore(storeConfig(cfg))
	if err != nil {
		return nil, err
	}
	c.store = store
	c.keys = cache.NewKeyBuilder(cache.WithMaxKeyLength(cfg.MaxKeyLength))

	c.runner = reporting.NewRunner(reporting.Config{
		Enabled:            cfg.CacheEnabled,
		DefaultTTL:         cfg.DefaultTTL,
		TTLOverrides:       cfg.TTLOverrides,
		SlowQueryThreshold: cfg.SlowQueryThreshold,
	}, store,
		reporting.WithKeyBuilder(c.keys),
		reporting.WithMetrics(reporting.NewMetrics(c.registry)),
		reporting.WithLogger(c.logger),
	)

	c.aggregates = aggregate.NewSource(db,
		aggregate.WithEnabled(cfg.UseAggregates),
		aggregate.WithWarnEvery(cfg.FallbackWarnEvery),
		aggregate.WithLogger(c.logger),
		aggregate.WithRegisterer(c.registry),
	)
	c.sales = sales.NewService(db, c.aggregates, c.runner)

	if c.locker == nil && c.refresher == nil && db.Dialect().Name() == dialect.PG {
		c.locker = refresh.NewPGLocker(db, cfg.RefreshLockKey)
		c.refresher = refresh.NewPGRefresher(db)
	}

	serverOpts := []httpapi.Option{
		httpapi.WithGatherer(c.registry),
		httpapi.WithLogger(c.logger),
	}

	if c.locker != nil && c.refresher != nil {
		c.coordinator = refresh.NewCoordinator(c.locker, c.refresher, cfg.Views(),
			refresh.WithLogger(c.logger),
			refresh.WithRegisterer(c.registry),
		)
		scheduler, err := refresh.NewScheduler(c.coordinator, cfg.RefreshSchedule,
			refresh.WithSchedulerLogger(c.logger),
			refresh.WithLocation(cfg.Location()),
		)
		if err != nil {
			return nil, err
		}
		c.scheduler = scheduler
		serverOpts = append(serverOpts, httpapi.WithRefresher(scheduler))
	} else {
		c.logger.Warn("aggregate refresh disabled, no refresh backend for database",
			slog.String("dialect", db.Dialect().Name().String()),
		)
	}

	c.server = httpapi.NewServer(c.runner, serverOpts...)
	httpapi.Handle(c.server, sales.ReportName, c.sales.Summary)

	return c, nil
}

// storeConfig sizes the cache so the sharded backend keeps entries at least as
// long as the longest report TTL.
func storeConfig(cfg config.Config) cache.Config {
	out := cache.DefaultConfig()
	out.Backend = cfg.CacheBackend
	out.Capacity = cfg.MaxEntries

	longest := cfg.DefaultTTL
	for _, ttl := range cfg.TTLOverrides {
		if ttl > longest {
			longest = ttl
		}
	}
	if longest > out.MaxTTL {
		out.MaxTTL = longest
	}
	return out
}

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config {
	return c.config
}

// DB returns the database handle shared by the report services.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Registry returns the Prometheus registry all components report to.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Store returns the report cache store.
func (c *Container) Store() cache.Store {
	return c.store
}

// KeyBuilder returns the cache key builder used by the runner.
func (c *Container) KeyBuilder() *cache.KeyBuilder {
	return c.keys
}

// Runner returns the shared report runner.
func (c *Container) Runner() *reporting.Runner {
	return c.runner
}

// Aggregates returns the aggregate source.
func (c *Container) Aggregates() *aggregate.Source {
	return c.aggregates
}

// Sales returns the sales summary report service.
func (c *Container) Sales() *sales.Service {
	return c.sales
}

// Coordinator returns the refresh coordinator, or nil when refresh is disabled.
func (c *Container) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// Scheduler returns the refresh scheduler, or nil when refresh is disabled.
func (c *Container) Scheduler() *refresh.Scheduler {
	return c.scheduler
}

// Server returns the HTTP handler.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Start starts the refresh scheduler when one is configured.
func (c *Container) Start(ctx context.Context) error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Start(ctx)
}

// Shutdown stops the refresh scheduler, waiting for a running refresh or ctx.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Stop(ctx)
}

// OpenDB opens and pings the database named by dsn. postgres:// and
// postgresql:// URLs use lib/pq, anything else is treated as a SQLite DSN.
func OpenDB(ctx context.Context, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, goerrors.New("database url is required", goerrors.CategoryValidation)
	}

	var db *bun.DB
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "database unreachable")
	}
	return db, nil
}
