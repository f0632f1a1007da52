package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the refresh daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// Scheduler triggers RefreshAll on a cron schedule and on demand. Scheduled runs
// log their errors and never propagate them; RunNow returns them to the caller.
type Scheduler struct {
	coordinator *Coordinator
	spec        string
	location    *time.Location
	logger      *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation sets the timezone the schedule is evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewScheduler creates a scheduler for coordinator. spec is a standard five field
// cron expression.
func NewScheduler(coordinator *Coordinator, spec string, opts ...SchedulerOption) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid refresh schedule")
	}

	s := &Scheduler{
		coordinator: coordinator,
		spec:        spec,
		location:    time.UTC,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spec returns the cron expression.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Start registers the schedule and starts the cron runner. Scheduled runs use a
// context derived from ctx that is cancelled by Stop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(s.spec, s.tick); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "register refresh schedule")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()

	s.logger.Info("aggregate refresh scheduled",
		slog.String("schedule", s.spec),
		slog.String("timezone", s.location.String()),
	)
	return nil
}

// Stop cancels in flight scheduled runs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	cancel()
	done := c.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow runs a refresh immediately and returns its result and error.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	return s.coordinator.RefreshAll(ctx)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.coordinator.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("scheduled aggregate refresh failed",
			slog.String("error", err.Error()),
			slog.Any("refreshed", result.ViewsRefreshed),
		)
		return
	}
	if result.Skipped != "" {
		s.logger.Info("scheduled aggregate refresh skipped", slog.String("reason", result.Skipped))
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
