package reporting

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source tags which path answered a report section.
type Source string

const (
	SourceRaw       Source = "raw"
	SourceAggregate Source = "aggregate"
)

// Probe is handed to a report computation to time its subqueries and record
// which data source answered each section. It is safe for concurrent use so
// sections may be computed in parallel.
type Probe struct {
	ctx    context.Context
	clock  clockwork.Clock
	tracer trace.Tracer

	mu         sync.Mutex
	subqueries map[string]int64
	sources    map[string]Source
}

// NewProbe returns a Probe measuring with clock. A nil clock uses the real clock.
func NewProbe(ctx context.Context, clock clockwork.Clock) *Probe {
	return newProbe(ctx, clock, nil)
}

func newProbe(ctx context.Context, clock clockwork.Clock, tracer trace.Tracer) *Probe {
	if ctx == nil {
		ctx = context.Background()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Probe{
		ctx:        ctx,
		clock:      clock,
		tracer:     tracer,
		subqueries: make(map[string]int64),
		sources:    make(map[string]Source),
	}
}

// Time runs fn and records its elapsed milliseconds under name.
func (p *Probe) Time(name string, fn func() error) error {
	_, span := p.tracer.Start(p.ctx, "report.subquery", trace.WithAttributes(attribute.String("report.subquery", name)))
	defer span.End()

	start := p.clock.Now()
	err := fn()
	p.record(name, p.clock.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Timed runs fn through p.Time and returns its result.
func Timed[T any](p *Probe, name string, fn func() (T, error)) (T, error) {
	var out T
	err := p.Time(name, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// RecordSource tags section as answered by source.
func (p *Probe) RecordSource(section string, source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[section] = source
}

// Subqueries returns a copy of the recorded timings in milliseconds.
func (p *Probe) Subqueries() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.subqueries)
}

// Sources returns a copy of the recorded section sources.
func (p *Probe) Sources() map[string]Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.sources)
}

func (p *Probe) record(name string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subqueries[name] = elapsed.Milliseconds()
}

// Section answers one report section, preferring precomputed aggregates.
//
// tryAggregate reports false when aggregates cannot answer (ineligible request,
// missing data, query failure); raw is then used. The section is timed under name
// and tagged with whichever source produced the value. A nil tryAggregate always
// uses raw.
func Section[T any](
	ctx context.Context,
	p *Probe,
	name string,
	tryAggregate func(context.Context) (T, bool),
	raw func(context.Context) (T, error),
) (T, error) {
	return Timed(p, name, func() (T, error) {
		if tryAggregate != nil {
			if value, ok := tryAggregate(ctx); ok {
				p.RecordSource(name, SourceAggregate)
				return value, nil
			}
		}

		value, err := raw(ctx)
		if err != nil {
			return value, err
		}
		p.RecordSource(name, SourceRaw)
		return value, nil
	})
}
