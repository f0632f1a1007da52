package di

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-report-cache/cache"
	"github.com/goliatone/go-report-cache/internal/cacheinfra"
	"github.com/goliatone/go-report-cache/pkg/config"
	"github.com/goliatone/go-report-cache/pkg/testsupport"
)

func TestNewContainer(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	cfg := config.Defaults()
	cfg.MaxKeyLength = 64

	container, err := NewContainer(cfg, db)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.KeyBuilder() == nil {
		t.Error("Container should have a non-nil key builder")
	}
	if container.Runner() == nil || !container.Runner().CachingEnabled() {
		t.Error("Container runner should cache by default")
	}
	if !container.Aggregates().Enabled() {
		t.Error("Aggregates should be enabled by default")
	}
	if container.Sales() == nil {
		t.Error("Container should have a sales service")
	}
	if container.Server() == nil {
		t.Error("Container should have an HTTP server")
	}
	if container.DB() != db {
		t.Error("Container should expose the database it was given")
	}

	// sqlite has no materialized views, so nothing refreshes
	if container.Coordinator() != nil || container.Scheduler() != nil {
		t.Error("Refresh should be disabled without a refresh backend")
	}

	if got := container.Config().MaxKeyLength; got != 64 {
		t.Errorf("Config().MaxKeyLength = %d, want 64", got)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	db := testsupport.OpenSQLite(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.CacheBackend = "redis" }},
		{name: "no capacity", mutate: func(c *config.Config) { c.MaxEntries = 0 }},
		{name: "bad schedule", mutate: func(c *config.Config) { c.RefreshSchedule = "daily" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)

			_, err := NewContainer(cfg, db)
			if err == nil {
				t.Fatal("NewContainer() should fail")
			}

			var richErr *goerrors.Error
			if !errors.As(err, &richErr) || richErr.Category != goerrors.CategoryValidation {
				t.Errorf("NewContainer() error = %v, want validation category", err)
			}
		})
	}
}

func TestNewContainer_RequiresDatabase(t *testing.T) {
	if _, err := NewContainer(config.Defaults(), nil); err == nil {
		t.Fatal("NewContainer() should fail without a database")
	}
}

func TestNewContainer_ShardedBackend(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	cfg := config.Defaults()
	cfg.CacheBackend = cache.BackendSharded

	container, err := NewContainer(cfg, db)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if _, ok := container.Store().(*cacheinfra.SturdycStore); !ok {
		t.Errorf("Store() = %T, want *cacheinfra.SturdycStore", container.Store())
	}
}

func TestNewContainer_CachingDisabled(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	cfg := config.Defaults()
	cfg.CacheEnabled = false
	cfg.UseAggregates = false

	container, err := NewContainer(cfg, db)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Runner().CachingEnabled() {
		t.Error("Runner should not cache when caching is disabled")
	}
	if container.Aggregates().Enabled() {
		t.Error("Aggregates should be disabled")
	}
}

func TestNewContainer_RefreshBackend(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	cfg := config.Defaults()
	cfg.RefreshViews = []string{"mv_daily_sales", "mv_credit_aging"}
	cfg.RefreshBlockingViews = []string{"mv_credit_aging"}

	locker := &mutexLocker{}
	refresher := &recordingRefresher{}
	container, err := NewContainer(cfg, db, WithRefreshBackend(locker, refresher))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Coordinator() == nil || container.Scheduler() == nil {
		t.Fatal("Refresh pipeline should be wired")
	}
	if got := container.Scheduler().Spec(); got != cfg.RefreshSchedule {
		t.Errorf("Scheduler().Spec() = %q, want %q", got, cfg.RefreshSchedule)
	}

	views := container.Coordinator().Views()
	if len(views) != 2 || !views[0].Concurrent || views[1].Concurrent {
		t.Errorf("Coordinator().Views() = %+v, want concurrent sales then blocking credit aging", views)
	}

	rec := httptest.NewRecorder()
	container.Server().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reports/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /admin/reports/refresh = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := refresher.Calls(); len(got) != 2 {
		t.Errorf("refresher calls = %v, want 2", got)
	}
}

func TestContainer_StartShutdown(t *testing.T) {
	db := testsupport.OpenSQLite(t)

	withoutRefresh, err := NewContainer(config.Defaults(), db)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if err := withoutRefresh.Start(context.Background()); err != nil {
		t.Errorf("Start() without refresh = %v, want nil", err)
	}
	if err := withoutRefresh.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() without refresh = %v, want nil", err)
	}

	container, err := NewContainer(config.Defaults(), db, WithRefreshBackend(&mutexLocker{}, &recordingRefresher{}))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if err := container.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for container.Scheduler().Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if container.Scheduler().Next().IsZero() {
		t.Error("Scheduler should have a next run after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := container.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestStoreConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxEntries = 42
	cfg.TTLOverrides = map[string]time.Duration{
		"credit-aging": 2 * time.Hour,
		"sales":        time.Minute,
	}

	got := storeConfig(cfg)

	if got.Capacity != 42 {
		t.Errorf("Capacity = %d, want 42", got.Capacity)
	}
	if got.MaxTTL != 2*time.Hour {
		t.Errorf("MaxTTL = %v, want %v", got.MaxTTL, 2*time.Hour)
	}
	if got.Backend != cache.BackendLRU {
		t.Errorf("Backend = %q, want %q", got.Backend, cache.BackendLRU)
	}

	cfg.TTLOverrides = nil
	if got := storeConfig(cfg); got.MaxTTL != cache.DefaultConfig().MaxTTL {
		t.Errorf("MaxTTL = %v, want default %v", got.MaxTTL, cache.DefaultConfig().MaxTTL)
	}
}

func TestOpenDB(t *testing.T) {
	ctx := context.Background()

	db, err := OpenDB(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	defer db.Close()

	if name := db.Dialect().Name().String(); name != "sqlite" {
		t.Errorf("Dialect = %q, want sqlite", name)
	}

	if _, err := OpenDB(ctx, "  "); err == nil {
		t.Error("OpenDB() should reject an empty url")
	}
}
