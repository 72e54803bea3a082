package desk

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/config"
)

// Tuning holds the empirical constants of motion detection. The right
// values depend on how fast the actuator travels.
type Tuning struct {
	// DeadBandMM is the largest reading difference absorbed as jitter.
	DeadBandMM int
	// MovingStableReadings consecutive stable readings while moving mean
	// the desk has stopped.
	MovingStableReadings int
	// IdleStableReadings consecutive stable readings while idle pause
	// further height updates.
	IdleStableReadings int
}

// DefaultTuning is 2mm / 4 readings / 3 readings.
func DefaultTuning() Tuning {
	return Tuning{
		DeadBandMM:           2,
		MovingStableReadings: 4,
		IdleStableReadings:   3,
	}
}

// TuningFromConfig reads the tunables from conf.
func TuningFromConfig(conf config.Config) Tuning {
	return Tuning{
		DeadBandMM:           conf.DeadBandMM(),
		MovingStableReadings: conf.MovingStableReadings(),
		IdleStableReadings:   conf.IdleStableReadings(),
	}
}

// Phase is the state of the motion state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseMovingUnstable means readings are still changing.
	PhaseMovingUnstable
	// PhaseMovingStabilizing means at least one stable reading has been
	// seen, but not enough to call the desk stopped.
	PhaseMovingStabilizing
)

func (p Phase) String() string {
	switch p {
	case PhaseMovingUnstable:
		return "MovingUnstable"
	case PhaseMovingStabilizing:
		return "MovingStabilizing"
	default:
		return "Idle"
	}
}

// Decision tells the caller what to do with the polling cadence.
type Decision int

const (
	KeepCadence Decision = iota
	SwitchToIdle
)

// MotionSession is the bookkeeping of one commanded movement.
type MotionSession struct {
	// LastHeight is the previous successful reading.
	LastHeight         *int
	StableCount        int
	HeightUpdatePaused bool
	LastMovement       time.Time
}

// Reconciler decides, reading by reading, what the user should see.
type Reconciler struct {
	tuning  Tuning
	state   *State
	phase   Phase
	session MotionSession
}

func NewReconciler(state *State, tuning Tuning) *Reconciler {
	return &Reconciler{
		tuning: tuning,
		state:  state,
	}
}

func (r *Reconciler) Phase() Phase {
	return r.phase
}

// Session returns a copy of the current motion bookkeeping.
func (r *Reconciler) Session() MotionSession {
	s := r.session
	if s.LastHeight != nil {
		h := *s.LastHeight
		s.LastHeight = &h
	}
	return s
}

func (r *Reconciler) Paused() bool {
	return r.session.HeightUpdatePaused
}

func (r *Reconciler) moving() bool {
	return r.phase != PhaseIdle
}

// BeginMotion records a movement command. It always clears the pause flag
// and the stability counter. It reports whether a new session started,
// in which case the caller must switch to fast polling.
func (r *Reconciler) BeginMotion(now time.Time) bool {
	started := !r.moving()
	if started {
		r.session = MotionSession{}
		r.phase = PhaseMovingUnstable
		r.state.setMoving(true)
		logrus.Debug("motion session started")
	}

	r.session.StableCount = 0
	r.session.HeightUpdatePaused = false
	r.session.LastMovement = now

	return started
}

// ApplyHeight feeds one successful reading into the state machine.
func (r *Reconciler) ApplyHeight(height int) Decision {
	r.state.setStatus(StatusConnected)

	prev := r.session.LastHeight
	changed := prev == nil || abs(height-*prev) > r.tuning.DeadBandMM
	if r.moving() || !r.session.HeightUpdatePaused {
		r.session.LastHeight = &height
	}

	if r.moving() {
		// Moving always shows the live value.
		r.state.setHeight(height)

		if changed {
			r.session.StableCount = 0
			r.phase = PhaseMovingUnstable
			return KeepCadence
		}

		r.session.StableCount++
		if r.session.StableCount < r.tuning.MovingStableReadings {
			r.phase = PhaseMovingStabilizing
			return KeepCadence
		}

		logrus.WithFields(logrus.Fields{
			"height":      height,
			"stableCount": r.session.StableCount,
		}).Info("desk stopped moving")

		r.phase = PhaseIdle
		r.state.setMoving(false)
		r.session.StableCount = 0
		r.session.HeightUpdatePaused = true
		return SwitchToIdle
	}

	if r.session.HeightUpdatePaused {
		// Paused: only fill in a height we do not know.
		if !r.state.heightKnown() {
			r.state.setHeight(height)
			r.session.LastHeight = &height
		}
		return KeepCadence
	}

	if changed {
		if prev != nil {
			logrus.WithFields(logrus.Fields{
				"from": *prev,
				"to":   height,
			}).Info("height changed outside a commanded movement")
		}
		r.session.StableCount = 0
		r.state.setHeight(height)
		return KeepCadence
	}

	if !r.state.heightKnown() {
		r.state.setHeight(height)
	}
	r.session.StableCount++
	if r.session.StableCount >= r.tuning.IdleStableReadings {
		r.session.HeightUpdatePaused = true
		logrus.WithField("height", height).Debug("height stable, pausing height updates")
	}
	return KeepCadence
}

// ApplyParseFailure records a reachable device whose status had no height.
// Motion bookkeeping is left alone.
func (r *Reconciler) ApplyParseFailure() {
	r.state.setStatus(StatusConnectedNoHeight)
	r.state.clearHeight()
}

// ApplyNetworkError records an unreachable device. It overrides any motion
// in progress: a desk that drops off the network mid-move must show as
// disconnected, not at a stale height.
func (r *Reconciler) ApplyNetworkError() Decision {
	wasMoving := r.moving()

	r.state.setStatus(StatusDisconnected)
	r.state.clearHeight()
	r.state.setMoving(false)
	r.phase = PhaseIdle
	r.session = MotionSession{}

	if wasMoving {
		logrus.Warn("lost connection to desk while moving")
		return SwitchToIdle
	}
	return KeepCadence
}

// ApplyProbeSuccess records a liveness-only check that succeeded.
func (r *Reconciler) ApplyProbeSuccess() {
	if r.state.status != StatusConnected && r.state.status != StatusConnectedNoHeight {
		r.state.setStatus(StatusConnected)
	}
}

// Reset forgets everything known about the device, e.g. after the base URL
// changed.
func (r *Reconciler) Reset() {
	r.phase = PhaseIdle
	r.session = MotionSession{}
	r.state.setMoving(false)
	r.state.clearHeight()
	r.state.setStatus(StatusConnecting)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
