package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCronParse(t *testing.T) {
	schedule, err := ParseSchedule("@every 10m")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	next1 := schedule.Next(time.Now())
	next2 := schedule.Next(next1)
	if !next2.After(next1) {
		t.Fatalf("expected next2 to be after next1, got next1=%v next2=%v", next1, next2)
	}

	for _, expr := range []string{"0 10 * * 1-5", "30 9 * * *", "@hourly"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q) error: %v", expr, err)
		}
	}
	if _, err := ParseSchedule("every morning"); err == nil {
		t.Errorf("expected error for invalid expression")
	}
}

func TestSchedulerScheduleStatus(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	if err := s.Schedule("@every 1m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	expr, next, running := s.Status()
	if running {
		t.Fatalf("scheduler should not be running")
	}
	if expr != "@every 1m" || next.IsZero() {
		t.Fatalf("status = %q %v", expr, next)
	}
	if runs := s.NextRuns(3); len(runs) != 3 || !runs[2].After(runs[1]) {
		t.Fatalf("NextRuns(3) = %v", runs)
	}

	if err := s.Schedule(""); err != nil {
		t.Fatalf("Schedule(\"\") error: %v", err)
	}
	if _, next, _ := s.Status(); !next.IsZero() {
		t.Fatalf("disabled schedule has next run %v", next)
	}
	if runs := s.NextRuns(3); runs != nil {
		t.Fatalf("NextRuns() = %v for disabled schedule", runs)
	}
}

func TestSchedulerSkipAndPostpone(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Postpone(time.Minute); err == nil {
		t.Fatalf("expected error postponing without a schedule")
	}
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.Start()
	defer s.Stop()

	_, orig, _ := s.Status()
	if err := s.Skip(); err != nil {
		t.Fatalf("Skip() error: %v", err)
	}
	_, skipped, _ := s.Status()
	if !skipped.After(orig) {
		t.Fatalf("expected skip to move schedule forward, got %v <= %v", skipped, orig)
	}

	if err := s.Postpone(5 * time.Minute); err != nil {
		t.Fatalf("Postpone() error: %v", err)
	}
	_, postponed, _ := s.Status()
	if !postponed.Equal(skipped.Add(5 * time.Minute)) {
		t.Fatalf("postponed to %v, want %v", postponed, skipped.Add(5*time.Minute))
	}

	if err := s.Postpone(time.Hour); err == nil {
		t.Fatalf("expected error postponing past the following run")
	}
	if err := s.Postpone(-time.Minute); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestSchedulerRunCycle(t *testing.T) {
	notifyCh := make(chan time.Time, 1)
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	var preChecks atomic.Int32

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}
	preCheck := func() error {
		preChecks.Add(1)
		return nil
	}

	s := NewScheduler(task, preCheck, func(at time.Time) { notifyCh <- at }, func(err error) { errCh <- err })
	s.lead = 30 * time.Millisecond
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	forced := time.Now().Add(80 * time.Millisecond)
	s.mu.Lock()
	s.nextRun = forced
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case at := <-notifyCh:
		if !at.Equal(forced) {
			t.Errorf("upcoming notice for %v, want %v", at, forced)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive upcoming notice in time")
	}

	select {
	case <-taskCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not execute in time")
	}

	if preChecks.Load() == 0 {
		t.Fatalf("precheck should have been executed")
	}
	if _, next, _ := s.Status(); !next.After(forced) {
		t.Errorf("next run %v was not advanced past %v", next, forced)
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected error callback: %v", err)
	default:
	}
}

func TestSchedulerPreCheckFailure(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 4)
	var preChecks atomic.Int32

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}
	preCheck := func() error {
		preChecks.Add(1)
		return errors.New("desk is not connected")
	}

	s := NewScheduler(task, preCheck, nil, func(err error) { errCh <- err })
	s.lead = 0
	s.retryInterval = 10 * time.Millisecond
	s.maxRetries = 2
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	forced := time.Now().Add(20 * time.Millisecond)
	s.mu.Lock()
	s.nextRun = forced
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected error callback from failed precheck")
	}

	waitUntil(t, time.Second, func() bool {
		_, next, _ := s.Status()
		return next.After(forced)
	})

	if n := preChecks.Load(); n != 3 {
		t.Errorf("precheck ran %d times, want 3", n)
	}
	select {
	case <-taskCh:
		t.Fatalf("task should not execute when precheck fails")
	default:
	}
	// Repeated identical failures are reported once.
	if len(errCh) != 0 {
		t.Errorf("got %d extra error callbacks", len(errCh))
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
