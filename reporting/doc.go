// Package reporting runs report computations through the result cache.
//
// # Overview
//
// Every report endpoint calls Run with the report name, its filters, the caller and a
// ComputeFunc. Run follows a read-through pattern:
//
//  1. Build the cache key from report, filters and caller scope
//  2. On hit, return the cached value (no computation, no subquery timings)
//  3. On miss, call the ComputeFunc with a Probe
//  4. Store the result with the report's TTL
//  5. Emit one perf record, plus a slow query warning above the threshold
//
// When caching is disabled the lookup and store steps are skipped.
//
// # Basic Usage
//
//	store, _ := cache.NewSynchronized(500)
//	runner := reporting.NewRunner(reporting.Config{
//		Enabled:            true,
//		DefaultTTL:         time.Minute,
//		SlowQueryThreshold: 2 * time.Second,
//	}, store)
//
//	summary, err := reporting.Run(ctx, runner, "sales-summary", filters, caller,
//		func(ctx context.Context, p *reporting.Probe) (Summary, error) {
//			days, err := reporting.Section(ctx, p, "days", tryAggregate, queryRaw)
//			...
//		})
//
// # Sections and Data Sources
//
// Section wraps the aggregate-then-raw pattern: it times the section, asks the
// aggregate path first and falls back to the raw query, tagging the section with
// SourceAggregate or SourceRaw. Computations that need finer control use
// Probe.Time, Timed and Probe.RecordSource directly.
//
// # Failures
//
// Errors from the ComputeFunc are returned unchanged and nothing is cached.
package reporting
