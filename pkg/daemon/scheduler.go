package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	leadDuration     = time.Minute // leadDuration is how long before a run the upcoming notice is sent.
	preCheckMaxTimes = 10
	preCheckInterval = time.Second * 30
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler runs Task at the times of one cron schedule. Before each run it
// calls OnUpcoming, then PreCheck, which is retried for a while if it fails.
type Scheduler struct {
	OnUpcoming func(runAt time.Time)
	OnError    func(err error)
	Task       func() error
	PreCheck   func() error

	lead          time.Duration
	retryInterval time.Duration
	maxRetries    int

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	wakeCh chan struct{}
	stopCh chan struct{}
}

func NewScheduler(task, preCheck func() error, onUpcoming func(time.Time), onError func(error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming:    onUpcoming,
		OnError:       onError,
		Task:          task,
		PreCheck:      preCheck,
		lead:          leadDuration,
		retryInterval: preCheckInterval,
		maxRetries:    preCheckMaxTimes,
		wakeCh:        make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

// Schedule replaces the cron expression. An empty expression disables the
// schedule.
func (s *Scheduler) Schedule(expr string) error {
	var sh cron.Schedule
	if expr != "" {
		var err error
		sh, err = ParseSchedule(expr)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.expr = expr
	s.schedule = sh
	if sh == nil {
		s.nextRun = time.Time{}
	} else {
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	s.wake()
	return nil
}

// Postpone moves the next run by d. It cannot move past the run after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	pp := s.nextRun.Add(d)
	if !pp.Before(s.schedule.Next(s.nextRun)) {
		s.mu.Unlock()
		return fmt.Errorf("postpone duration too long")
	}
	s.nextRun = pp
	s.mu.Unlock()

	s.wake()
	return nil
}

// Skip drops the next run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	s.mu.Unlock()

	s.wake()
	return nil
}

// Status returns the expression, the next run time and whether the loop runs.
func (s *Scheduler) Status() (expr string, nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.nextRun, s.running
}

// NextRuns lists up to n upcoming runs, starting with the (possibly
// postponed) next one.
func (s *Scheduler) NextRuns(n int) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil || s.nextRun.IsZero() {
		return nil
	}
	runs := []time.Time{s.nextRun}
	for len(runs) < n {
		runs = append(runs, s.schedule.Next(runs[len(runs)-1]))
	}
	return runs
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("preset scheduler stopped")
	}()

	logrus.Debug("preset scheduler started")

	var (
		notifiedFor time.Time // run the upcoming notice was sent for
		retryFor    time.Time // run the prechecks are failing for
		retryAt     time.Time
		attempts    int
		lastErr     string
	)

	for {
		s.mu.Lock()
		nextRun := s.nextRun
		s.mu.Unlock()

		if !nextRun.Equal(retryFor) {
			attempts, lastErr, retryAt = 0, "", time.Time{}
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		notify := false
		if !nextRun.IsZero() {
			var wait time.Duration
			switch {
			case !nextRun.Equal(notifiedFor):
				wait = time.Until(nextRun) - s.lead
				notify = true
			case !retryAt.IsZero():
				wait = time.Until(retryAt)
			default:
				wait = time.Until(nextRun)
			}
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-s.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wakeCh:
			if timer != nil {
				timer.Stop()
			}
			continue
		case <-timerC:
		}

		if notify {
			notifiedFor = nextRun
			logrus.Debugf("upcoming scheduled recall at %s", nextRun.Format(time.DateTime))
			if s.OnUpcoming != nil {
				go s.OnUpcoming(nextRun)
			}
			if time.Until(nextRun) > 0 {
				continue
			}
		}

		logrus.Debugf("running scheduled recall for %s", nextRun.Format(time.DateTime))

		if s.PreCheck != nil {
			if err := s.PreCheck(); err != nil {
				retryFor = nextRun
				attempts++
				if err.Error() != lastErr {
					lastErr = err.Error()
					s.sendError(fmt.Errorf("precheck failed: %v", err))
				}
				if attempts <= s.maxRetries {
					logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, s.maxRetries, err, s.retryInterval)
					retryAt = time.Now().Add(s.retryInterval)
					continue
				}
				logrus.Warnf("giving up scheduled recall for %s", nextRun.Format(time.DateTime))
				s.advance(nextRun)
				continue
			}
		}

		go func() {
			if err := s.Task(); err != nil {
				s.sendError(fmt.Errorf("task failed: %v", err))
			}
		}()
		s.advance(nextRun)
	}
}

// advance moves past the run at from, unless the schedule was changed
// meanwhile.
func (s *Scheduler) advance(from time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(from) {
		return
	}
	s.nextRun = s.schedule.Next(from)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}
