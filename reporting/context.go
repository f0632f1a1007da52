package reporting

import (
	"context"

	"github.com/google/uuid"

	"github.com/goliatone/go-report-cache/cache"
)

type correlationIDContextKey struct{}

// WithCorrelationID attaches a correlation id to the context. Empty ids are ignored.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored in ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// Caller identifies who requested a report.
type Caller struct {
	// CorrelationID ties the perf record to the inbound request. When empty the
	// context value is used, and failing that a new UUID.
	CorrelationID string
	Scope         cache.Scope
}

// Resolved returns c with CorrelationID filled in the same way Run does, so
// callers can echo the id before the report runs.
func (c Caller) Resolved(ctx context.Context) Caller {
	c.CorrelationID = c.correlationID(ctx)
	return c
}

func (c Caller) correlationID(ctx context.Context) string {
	if c.CorrelationID != "" {
		return c.CorrelationID
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
