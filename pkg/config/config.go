// Package config resolves the report service configuration once at startup.
//
// Values are layered: Defaults, then an optional YAML file, then REPORT_*
// environment variables. The result is validated and treated as immutable.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cespare/xxhash/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/refresh"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "REPORT_CONFIG"

// LockName seeds the default refresh lock key.
const LockName = "report-aggregates-refresh"

// DefaultRefreshViews is the refresh order used when none is configured.
var DefaultRefreshViews = []string{
	"mv_daily_sales",
	"mv_daily_inventory_variance",
	"mv_credit_aging",
	"mv_shift_summary",
}

// Config is the resolved service configuration.
type Config struct {
	CacheEnabled       bool                     `yaml:"cache_enabled" env:"REPORT_CACHE_ENABLED"`
	CacheBackend       string                   `yaml:"cache_backend" env:"REPORT_CACHE_BACKEND"`
	DefaultTTL         time.Duration            `yaml:"default_ttl" env:"REPORT_CACHE_DEFAULT_TTL"`
	TTLOverrides       map[string]time.Duration `yaml:"ttl_overrides" env:"REPORT_CACHE_TTL_OVERRIDES"`
	MaxEntries         int                      `yaml:"max_entries" env:"REPORT_CACHE_MAX_ENTRIES"`
	MaxKeyLength       int                      `yaml:"max_key_length" env:"REPORT_CACHE_MAX_KEY_LENGTH"`
	SlowQueryThreshold time.Duration            `yaml:"slow_query_threshold" env:"REPORT_SLOW_QUERY_THRESHOLD"`

	UseAggregates     bool `yaml:"use_aggregates" env:"REPORT_USE_AGGREGATES"`
	FallbackWarnEvery int  `yaml:"fallback_warn_every" env:"REPORT_AGGREGATE_FALLBACK_WARN_EVERY"`

	RefreshSchedule      string   `yaml:"refresh_schedule" env:"REPORT_REFRESH_SCHEDULE"`
	RefreshTimezone      string   `yaml:"refresh_timezone" env:"REPORT_REFRESH_TIMEZONE"`
	RefreshViews         []string `yaml:"refresh_views" env:"REPORT_REFRESH_VIEWS" envSeparator:","`
	RefreshBlockingViews []string `yaml:"refresh_blocking_views" env:"REPORT_REFRESH_BLOCKING_VIEWS" envSeparator:","`
	RefreshLockKey       int64    `yaml:"refresh_lock_key" env:"REPORT_REFRESH_LOCK_KEY"`

	DatabaseURL  string `yaml:"database_url" env:"REPORT_DATABASE_URL"`
	HTTPAddr     string `yaml:"http_addr" env:"REPORT_HTTP_ADDR"`
	LogLevel     string `yaml:"log_level" env:"REPORT_LOG_LEVEL"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"REPORT_OTEL_ENDPOINT"`
}

// DefaultLockKey derives the advisory lock key from LockName.
func DefaultLockKey() int64 {
	return int64(xxhash.Sum64String(LockName))
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		CacheEnabled:       true,
		CacheBackend:       cache.BackendLRU,
		DefaultTTL:         60 * time.Second,
		TTLOverrides:       map[string]time.Duration{},
		MaxEntries:         500,
		SlowQueryThreshold: 2 * time.Second,
		UseAggregates:      true,
		FallbackWarnEvery:  10,
		RefreshSchedule:    refresh.DefaultSchedule,
		RefreshTimezone:    "UTC",
		RefreshViews:       append([]string(nil), DefaultRefreshViews...),
		RefreshLockKey:     DefaultLockKey(),
		HTTPAddr:           ":8080",
		LogLevel:           "info",
	}
}

// Load resolves the configuration. path names an optional YAML file; when empty
// the REPORT_CONFIG environment variable is consulted.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("failed to read config file: %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("failed to parse config file: %s", path))
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.CacheBackend, validation.Required, validation.In(cache.BackendLRU, cache.BackendSharded)),
		validation.Field(&c.DefaultTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxKeyLength, validation.Min(0)),
		validation.Field(&c.SlowQueryThreshold, validation.Min(time.Duration(0))),
		validation.Field(&c.FallbackWarnEvery, validation.Min(0)),
		validation.Field(&c.RefreshSchedule, validation.Required, validation.By(validSchedule)),
		validation.Field(&c.RefreshTimezone, validation.Required, validation.By(validTimezone)),
		validation.Field(&c.RefreshViews, validation.Required),
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.LogLevel, validation.By(validLogLevel)),
		validation.Field(&c.TTLOverrides, validation.By(validOverrides)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return nil
}

// Location returns the refresh timezone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.RefreshTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Views returns the refresh list in order. Views named in RefreshBlockingViews
// only get a blocking refresh.
func (c Config) Views() []refresh.View {
	blocking := make(map[string]bool, len(c.RefreshBlockingViews))
	for _, name := range c.RefreshBlockingViews {
		blocking[strings.TrimSpace(name)] = true
	}

	views := make([]refresh.View, 0, len(c.RefreshViews))
	for _, name := range c.RefreshViews {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		views = append(views, refresh.View{Name: name, Concurrent: !blocking[name]})
	}
	return views
}

func validSchedule(value any) error {
	spec, _ := value.(string)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("must be a five field cron expression: %w", err)
	}
	return nil
}

func validTimezone(value any) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown timezone %q", name)
	}
	return nil
}

func validLogLevel(value any) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

func validOverrides(value any) error {
	overrides, _ := value.(map[string]time.Duration)
	for report, ttl := range overrides {
		if ttl <= 0 {
			return fmt.Errorf("ttl for %q must be positive", report)
		}
	}
	return nil
}
