package desk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode is the polling cadence.
type Mode int

const (
	ModeStopped Mode = iota
	// ModeIdle is the slow liveness cadence.
	ModeIdle
	// ModeMoving is the fast cadence used while the desk is commanded to move.
	ModeMoving
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeMoving:
		return "moving"
	default:
		return "stopped"
	}
}

// PostFunc hands fn to the goroutine that owns the polled state. It must
// not block and reports whether fn was accepted.
type PostFunc func(fn func()) bool

// TickFunc is called for every tick, on the owner goroutine.
type TickFunc func(mode Mode)

// Scheduler owns exactly one repeating timer. Switching modes stops the
// previous timer before arming the next one, and ticks already queued from
// a stopped timer are discarded.
type Scheduler struct {
	post   PostFunc
	onTick TickFunc

	mu       sync.Mutex
	idle     time.Duration
	moving   time.Duration
	mode     Mode
	interval time.Duration // of the running timer
	gen      uint64
	stopCh   chan struct{}

	// timers counts running ticker goroutines.
	timers atomic.Int32
}

func NewScheduler(idle, moving time.Duration, post PostFunc, onTick TickFunc) *Scheduler {
	if post == nil || onTick == nil {
		panic("post and tick functions cannot be nil")
	}
	return &Scheduler{
		idle:   idle,
		moving: moving,
		post:   post,
		onTick: onTick,
	}
}

// StartIdle switches to the slow cadence.
func (s *Scheduler) StartIdle() {
	s.arm(ModeIdle)
}

// StartMoving switches to the fast cadence. It always supersedes idle.
func (s *Scheduler) StartMoving() {
	s.arm(ModeMoving)
}

// SetIntervals changes both cadences. The running timer is replaced right
// away if its interval changed.
func (s *Scheduler) SetIntervals(idle, moving time.Duration) error {
	if idle <= 0 || moving <= 0 {
		return fmt.Errorf("polling intervals must be positive, got idle=%s moving=%s", idle, moving)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.idle = idle
	s.moving = moving
	if s.mode == ModeStopped {
		return nil
	}
	if interval := s.intervalLocked(s.mode); interval != s.interval {
		s.startLocked(s.mode, interval)
	}
	return nil
}

// Intervals returns the idle and moving cadences.
func (s *Scheduler) Intervals() (idle, moving time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle, s.moving
}

// Stop cancels the active timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.mode = ModeStopped
	s.interval = 0
	logrus.Debug("polling stopped")
}

func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Scheduler) intervalLocked(mode Mode) time.Duration {
	if mode == ModeMoving {
		return s.moving
	}
	return s.idle
}

func (s *Scheduler) arm(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interval := s.intervalLocked(mode)
	if interval <= 0 {
		panic("polling interval must be positive")
	}
	if s.mode == mode {
		return
	}
	s.startLocked(mode, interval)
}

func (s *Scheduler) startLocked(mode Mode, interval time.Duration) {
	s.cancelLocked()
	s.mode = mode
	s.interval = interval
	s.gen++
	s.stopCh = make(chan struct{})

	logrus.WithFields(logrus.Fields{
		"mode":     mode,
		"interval": interval,
	}).Debug("polling mode changed")

	s.timers.Add(1)
	go s.run(mode, s.gen, interval, s.stopCh)
}

func (s *Scheduler) cancelLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	// Invalidates ticks still waiting in the owner's queue.
	s.gen++
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Scheduler) run(mode Mode, gen uint64, interval time.Duration, stopCh chan struct{}) {
	defer s.timers.Add(-1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ok := s.post(func() {
				if !s.current(gen) {
					return
				}
				s.onTick(mode)
			})
			if !ok {
				logrus.WithField("mode", mode).Trace("owner busy, tick dropped")
			}
		}
	}
}
