package refresh

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewScheduler(t *testing.T) {
	coord := NewCoordinator(&fakeLocker{}, &fakeRefresher{}, testViews)

	tests := []struct {
		name     string
		spec     string
		wantSpec string
		wantErr  bool
	}{
		{name: "default", spec: "", wantSpec: DefaultSchedule},
		{name: "custom", spec: "*/15 * * * *", wantSpec: "*/15 * * * *"},
		{name: "descriptor", spec: "@hourly", wantSpec: "@hourly"},
		{name: "invalid", spec: "every day", wantErr: true},
		{name: "seconds field rejected", spec: "0 0 3 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(coord, tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScheduler() error = %v", err)
			}
			if s.Spec() != tt.wantSpec {
				t.Errorf("Spec() = %q, want %q", s.Spec(), tt.wantSpec)
			}
		})
	}
}

func TestScheduler_TickLogsErrors(t *testing.T) {
	boom := errors.New("refresh failed")
	refresher := &fakeRefresher{failures: map[string]error{"mv_credit_aging/blocking": boom}}
	coord := NewCoordinator(&fakeLocker{}, refresher, testViews)

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	s, err := NewScheduler(coord, DefaultSchedule, WithSchedulerLogger(logger))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.tick()

	if !strings.Contains(buf.String(), "scheduled aggregate refresh failed") {
		t.Errorf("expected the failure to be logged, got %q", buf.String())
	}
}

func TestScheduler_RunNowPropagatesErrors(t *testing.T) {
	boom := errors.New("refresh failed")
	refresher := &fakeRefresher{failures: map[string]error{"mv_credit_aging/blocking": boom}}
	s, err := NewScheduler(NewCoordinator(&fakeLocker{}, refresher, testViews), "")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	result, err := s.RunNow(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("RunNow() error = %v, want %v", err, boom)
	}
	if len(result.ViewsRefreshed) != 2 {
		t.Errorf("ViewsRefreshed = %v, want the two views before the failure", result.ViewsRefreshed)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	s, err := NewScheduler(NewCoordinator(&fakeLocker{}, &fakeRefresher{}, testViews), "0 3 * * *", WithLocation(loc))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if !s.Next().IsZero() {
		t.Error("expected no next run before Start")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	// cron computes entry times on its run loop
	deadline := time.Now().Add(time.Second)
	var next time.Time
	for time.Now().Before(deadline) {
		if next = s.Next(); !next.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if next.IsZero() {
		t.Fatal("expected a next run after Start")
	}
	if local := next.In(loc); local.Hour() != 3 || local.Minute() != 0 {
		t.Errorf("next run = %v, want 03:00 in %s", local, loc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestCronLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := cronLogger{logger: slog.New(slog.NewTextHandler(buf, nil))}

	logger.Error(errors.New("job panicked"), "panic", "entry", 1)

	out := buf.String()
	if !strings.Contains(out, "cron: panic") || !strings.Contains(out, "job panicked") || !strings.Contains(out, "entry=1") {
		t.Errorf("unexpected cron log output %q", out)
	}
}
