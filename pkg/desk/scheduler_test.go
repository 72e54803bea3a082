package desk

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// runNow executes posted work on the ticker goroutine.
func runNow(fn func()) bool {
	fn()
	return true
}

type tickRecorder struct {
	mu    sync.Mutex
	ticks []Mode
}

func (r *tickRecorder) onTick(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, m)
}

func (r *tickRecorder) snapshot() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mode(nil), r.ticks...)
}

func (r *tickRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSchedulerModes(t *testing.T) {
	rec := &tickRecorder{}
	s := NewScheduler(10*time.Millisecond, 2*time.Millisecond, runNow, rec.onTick)
	defer s.Stop()

	if s.Mode() != ModeStopped {
		t.Fatalf("mode = %v, want stopped", s.Mode())
	}

	s.StartIdle()
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) >= 2 })
	for _, m := range rec.snapshot() {
		if m != ModeIdle {
			t.Fatalf("got %v tick in idle mode", m)
		}
	}

	s.StartMoving()
	if s.Mode() != ModeMoving {
		t.Fatalf("mode = %v, want moving", s.Mode())
	}
	// Let anything racing the switch drain.
	time.Sleep(20 * time.Millisecond)
	rec.reset()
	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) >= 5 })
	for _, m := range rec.snapshot() {
		if m != ModeMoving {
			t.Fatalf("got %v tick in moving mode", m)
		}
	}
}

func TestSchedulerSingleTimer(t *testing.T) {
	rec := &tickRecorder{}
	s := NewScheduler(time.Millisecond, time.Millisecond, runNow, rec.onTick)

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			s.StartIdle()
		} else {
			s.StartMoving()
		}
	}
	waitFor(t, time.Second, func() bool { return s.timers.Load() == 1 })

	s.Stop()
	waitFor(t, time.Second, func() bool { return s.timers.Load() == 0 })
	if s.Mode() != ModeStopped {
		t.Errorf("mode = %v after Stop", s.Mode())
	}
}

func TestSchedulerSameModeKeepsTimer(t *testing.T) {
	rec := &tickRecorder{}
	s := NewScheduler(time.Hour, time.Hour, runNow, rec.onTick)
	defer s.Stop()

	s.StartIdle()
	gen := s.gen
	s.StartIdle()
	if s.gen != gen {
		t.Errorf("re-arming the same mode restarted the timer")
	}
}

func TestSchedulerStopSilences(t *testing.T) {
	var n atomic.Int32
	s := NewScheduler(time.Millisecond, time.Millisecond, runNow, func(Mode) { n.Add(1) })

	s.StartMoving()
	waitFor(t, time.Second, func() bool { return n.Load() > 0 })
	s.Stop()
	time.Sleep(10 * time.Millisecond)

	before := n.Load()
	time.Sleep(30 * time.Millisecond)
	if after := n.Load(); after != before {
		t.Errorf("got %d ticks after Stop", after-before)
	}
}

func TestSchedulerDropsQueuedTicksFromOldTimer(t *testing.T) {
	var mu sync.Mutex
	var queue []func()
	post := func(fn func()) bool {
		mu.Lock()
		defer mu.Unlock()
		queue = append(queue, fn)
		return true
	}
	rec := &tickRecorder{}
	s := NewScheduler(time.Millisecond, time.Hour, post, rec.onTick)
	defer s.Stop()

	s.StartIdle()
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queue) > 0
	})
	s.StartMoving()

	mu.Lock()
	pending := queue
	queue = nil
	mu.Unlock()
	for _, fn := range pending {
		fn()
	}

	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("stale idle ticks ran: %v", got)
	}
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for zero interval")
		}
	}()
	s := NewScheduler(0, time.Second, runNow, func(Mode) {})
	s.StartIdle()
}

func TestSchedulerSetIntervals(t *testing.T) {
	var n atomic.Int32
	s := NewScheduler(time.Hour, time.Hour, runNow, func(Mode) { n.Add(1) })
	defer s.Stop()

	s.StartIdle()
	time.Sleep(20 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Fatalf("got %d ticks at a 1h interval", got)
	}

	if err := s.SetIntervals(5*time.Millisecond, time.Hour); err != nil {
		t.Fatalf("SetIntervals() error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return n.Load() >= 3 })
	if s.Mode() != ModeIdle {
		t.Errorf("mode = %v, want idle", s.Mode())
	}
	waitFor(t, time.Second, func() bool { return s.timers.Load() == 1 })

	// Changing only the other cadence keeps the running timer.
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	if err := s.SetIntervals(5*time.Millisecond, time.Millisecond); err != nil {
		t.Fatalf("SetIntervals() error: %v", err)
	}
	s.mu.Lock()
	restarted := s.gen != gen
	s.mu.Unlock()
	if restarted {
		t.Errorf("timer restarted although the idle interval did not change")
	}
	if idle, moving := s.Intervals(); idle != 5*time.Millisecond || moving != time.Millisecond {
		t.Errorf("Intervals() = %s, %s", idle, moving)
	}

	if err := s.SetIntervals(0, time.Second); err == nil {
		t.Errorf("expected error for zero interval")
	}
}

func TestSchedulerSetIntervalsWhileStopped(t *testing.T) {
	var n atomic.Int32
	s := NewScheduler(time.Hour, time.Hour, runNow, func(Mode) { n.Add(1) })

	if err := s.SetIntervals(time.Millisecond, time.Millisecond); err != nil {
		t.Fatalf("SetIntervals() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := n.Load(); got != 0 || s.Mode() != ModeStopped {
		t.Errorf("stopped scheduler ticked %d times, mode %v", got, s.Mode())
	}
}
