package desk

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/device"
	"github.com/charlie0129/deskctl/pkg/events"
	"github.com/charlie0129/deskctl/pkg/types"
)

const (
	actionQueueSize  = 64
	commandQueueSize = 32
)

// Controller drives one desk. All state is owned by a single loop
// goroutine; exported methods hand work to it and are safe to call from
// anywhere.
type Controller struct {
	conf   config.Config
	client *device.Client
	hub    *events.EventHub

	state   *State
	rec     *Reconciler
	sched   *Scheduler
	presets *PresetList
	limits  device.Limits
	// limitsRev counts local limit changes, so a slow fetch from the
	// device does not undo them.
	limitsRev uint64

	actions  chan func()
	commands chan string

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	// Poll bookkeeping. inflight is the sequence number of the running
	// poll, 0 when none. Results numbered below staleBefore were requested
	// before the current motion session or base URL and are dropped.
	seq         uint64
	inflight    uint64
	appliedSeq  uint64
	staleBefore uint64

	now func() time.Time
}

// New creates a controller from conf. hub may be nil.
func New(conf config.Config, hub *events.EventHub) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	state := NewState(hub)
	c := &Controller{
		conf:     conf,
		client:   device.NewClient(conf.BaseURL(), conf.RequestTimeout()),
		hub:      hub,
		state:    state,
		rec:      NewReconciler(state, TuningFromConfig(conf)),
		presets:  NewPresetList(conf.Presets()),
		limits:   device.Limits{Min: conf.MinLimit(), Max: conf.MaxLimit()},
		actions:  make(chan func(), actionQueueSize),
		commands: make(chan string, commandQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		now:      time.Now,
	}
	c.sched = NewScheduler(conf.IdleInterval(), conf.MovingInterval(), c.tryPost, c.onTick)

	return c
}

// Client exposes the device client, e.g. to swap the height parser.
func (c *Controller) Client() *device.Client {
	return c.client
}

// Start runs the loop, polls once right away, arms idle polling and loads
// the travel limits from the device.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		logrus.WithField("baseURL", c.client.BaseURL()).Info("starting desk controller")

		go c.run()
		c.wg.Add(1)
		go c.sendCommands()

		c.post(func() {
			c.poll(false)
			c.sched.StartIdle()
			c.loadLimits()
		})
	})
}

// Shutdown stops polling and waits for helper goroutines. Commands still
// queued are dropped.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() {
		logrus.Info("stopping desk controller")

		started := true
		c.startOnce.Do(func() { started = false })

		if started {
			_ = c.do(func() error {
				c.sched.Stop()
				c.state.setMoving(false)
				return nil
			})
		}

		close(c.stopCh)
		c.cancel()
		if started {
			<-c.doneCh
		}
		c.wg.Wait()
	})
}

func (c *Controller) run() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case fn := <-c.actions:
			fn()
			c.state.commit()
		}
	}
}

// post queues fn on the loop, waiting for room.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.stopCh:
		return false
	default:
	}
	select {
	case c.actions <- fn:
		return true
	case <-c.stopCh:
		return false
	}
}

// tryPost queues fn only if there is room.
func (c *Controller) tryPost(fn func()) bool {
	select {
	case <-c.stopCh:
		return false
	default:
	}
	select {
	case c.actions <- fn:
		return true
	default:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(fn func() error) error {
	errCh := make(chan error, 1)
	if !c.post(func() { errCh <- fn() }) {
		return ErrControllerStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-c.doneCh:
		return ErrControllerStopped
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	return c.state.Snapshot()
}

// Observe calls fn with every new snapshot, on the controller loop. fn
// must not call back into the controller synchronously. The returned func
// removes the observer.
func (c *Controller) Observe(fn func(Snapshot)) (cancel func()) {
	var id int
	if err := c.do(func() error {
		id = c.state.observe(fn)
		return nil
	}); err != nil {
		return func() {}
	}
	return func() {
		_ = c.do(func() error {
			c.state.unobserve(id)
			return nil
		})
	}
}

func (c *Controller) onTick(mode Mode) {
	switch mode {
	case ModeMoving:
		c.poll(false)
	case ModeIdle:
		// A known, settled height only needs a liveness check.
		c.poll(c.rec.Paused() && c.state.heightKnown())
	}
}

type pollResult struct {
	seq    uint64
	probe  bool
	height int
	err    error
}

func (c *Controller) poll(probe bool) {
	if c.inflight != 0 {
		logrus.WithField("seq", c.inflight).Trace("poll in flight, skipping tick")
		return
	}
	c.seq++
	c.inflight = c.seq

	res := pollResult{seq: c.seq, probe: probe}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if probe {
			res.err = c.client.Probe(c.ctx)
		} else {
			res.height, res.err = c.client.FetchHeight(c.ctx)
		}
		c.post(func() { c.applyPoll(res) })
	}()
}

func (c *Controller) applyPoll(res pollResult) {
	if res.seq == c.inflight {
		c.inflight = 0
	}
	if res.seq <= c.appliedSeq || res.seq < c.staleBefore {
		logrus.WithField("seq", res.seq).Debug("dropping stale poll result")
		return
	}
	c.appliedSeq = res.seq

	decision := KeepCadence
	switch {
	case res.err == nil && res.probe:
		c.rec.ApplyProbeSuccess()
	case res.err == nil:
		decision = c.rec.ApplyHeight(res.height)
	case device.IsParseFailure(res.err):
		logrus.WithError(res.err).Debug("desk reachable but height unknown")
		c.rec.ApplyParseFailure()
	default:
		logrus.WithError(res.err).Debug("desk unreachable")
		decision = c.rec.ApplyNetworkError()
	}

	if decision == SwitchToIdle {
		c.sched.StartIdle()
	}
}

// discardInflight makes any running poll stale so the next tick can start
// a fresh one.
func (c *Controller) discardInflight() {
	c.staleBefore = c.seq + 1
	c.inflight = 0
}

func (c *Controller) beginMotion(cmd string) {
	if c.rec.BeginMotion(c.now()) {
		c.discardInflight()
		c.sched.StartMoving()
	}
	c.send(cmd)
}

// MoveUp starts or continues an upward move. Call it repeatedly while a
// button is held.
func (c *Controller) MoveUp() error {
	return c.do(func() error {
		c.beginMotion(device.CommandUp)
		return nil
	})
}

// MoveDown starts or continues a downward move.
func (c *Controller) MoveDown() error {
	return c.do(func() error {
		c.beginMotion(device.CommandDown)
		return nil
	})
}

// Stop asks the desk to stop. The moving flag is cleared once readings
// settle, not here.
func (c *Controller) Stop() error {
	return c.do(func() error {
		c.send(device.CommandStop)
		return nil
	})
}

// GotoPreset moves to the preset at index. The device only stores the
// first device.PresetSlots presets; the rest are sent as a target height.
func (c *Controller) GotoPreset(index int) error {
	return c.do(func() error {
		p, err := c.presets.Get(index)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"index":  index,
			"name":   p.Name,
			"height": p.Height,
		}).Info("moving to preset")

		if index < device.PresetSlots {
			c.beginMotion(device.GotoCommand(index))
		} else {
			c.beginMotion(device.HeightCommand(p.Height))
		}
		return nil
	})
}

// MoveToHeight moves to height. Callers check the height against Limits.
func (c *Controller) MoveToHeight(height int) error {
	return c.do(func() error {
		logrus.WithField("height", height).Info("moving to height")
		c.beginMotion(device.HeightCommand(height))
		return nil
	})
}

// send queues cmd for the command goroutine, which sends in order.
func (c *Controller) send(cmd string) {
	select {
	case c.commands <- cmd:
	default:
		logrus.WithField("command", cmd).Warn("command queue full, dropping command")
		c.warn(fmt.Sprintf("Command %q dropped: too many pending commands", cmd))
	}
}

func (c *Controller) sendCommands() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case cmd := <-c.commands:
			if err := c.client.SendCommand(c.ctx, cmd); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				logrus.WithError(err).WithField("command", cmd).Warn("failed to send command")
				c.warn(fmt.Sprintf("Failed to send %q: %v", cmd, err))
			}
		}
	}
}

func (c *Controller) warn(msg string) {
	c.hub.PublishWarning(msg, c.now())
}

// reject publishes err as a warning and returns it.
func (c *Controller) reject(err error) error {
	logrus.WithError(err).Warn("rejected change")
	c.warn(err.Error())
	return err
}

// Presets returns a copy of the preset list.
func (c *Controller) Presets() []types.Preset {
	var out []types.Preset
	_ = c.do(func() error {
		out = c.presets.All()
		return nil
	})
	return out
}

// Limits returns the travel limits in use.
func (c *Controller) Limits() device.Limits {
	var out device.Limits
	_ = c.do(func() error {
		out = c.limits
		return nil
	})
	return out
}

func (c *Controller) checkHeight(height int) error {
	if height < c.limits.Min || height > c.limits.Max {
		return pkgerrors.Wrapf(ErrHeightOutOfLimits, "%d mm is outside %d-%d mm", height, c.limits.Min, c.limits.Max)
	}
	return nil
}

// CheckHeight reports whether height is within the travel limits.
func (c *Controller) CheckHeight(height int) error {
	return c.do(func() error {
		return c.checkHeight(height)
	})
}

// editPresets validates height, applies edit to a copy of the presets and
// saves the result. On any error nothing is changed.
func (c *Controller) editPresets(height *int, edit func(l *PresetList) error) error {
	return c.do(func() error {
		if height != nil {
			if err := c.checkHeight(*height); err != nil {
				return c.reject(err)
			}
		}
		next := NewPresetList(c.presets.items)
		if err := edit(next); err != nil {
			return c.reject(err)
		}
		c.presets = next
		return c.savePresets()
	})
}

// AddPreset appends a preset.
func (c *Controller) AddPreset(name string, height int) (types.Preset, error) {
	p := types.NewPreset(name, height)
	err := c.editPresets(&height, func(l *PresetList) error {
		return l.Add(p)
	})
	return p, err
}

// UpdatePreset renames and/or re-heights the preset at index.
func (c *Controller) UpdatePreset(index int, name string, height int) error {
	return c.editPresets(&height, func(l *PresetList) error {
		return l.Update(index, types.Preset{Name: name, Height: height})
	})
}

func (c *Controller) RemovePreset(index int) error {
	return c.editPresets(nil, func(l *PresetList) error {
		return l.Remove(index)
	})
}

// ReplacePresets swaps the whole list, as a settings form would.
func (c *Controller) ReplacePresets(in []types.Preset) error {
	return c.do(func() error {
		for _, p := range in {
			if err := c.checkHeight(p.Height); err != nil {
				return c.reject(pkgerrors.Wrapf(err, "preset %q", p.Name))
			}
		}
		next := NewPresetList(nil)
		if err := next.Replace(in); err != nil {
			return c.reject(err)
		}
		c.presets = next
		return c.savePresets()
	})
}

// SyncPresets pushes the stored presets to the device again.
func (c *Controller) SyncPresets() error {
	return c.do(func() error {
		c.pushPresets()
		return nil
	})
}

func (c *Controller) savePresets() error {
	c.conf.SetPresets(c.presets.All())
	if err := c.conf.Save(); err != nil {
		return pkgerrors.Wrapf(err, "failed to save presets")
	}
	logrus.WithField("count", c.presets.Len()).Info("presets saved")
	c.pushPresets()
	return nil
}

func (c *Controller) pushPresets() {
	for i, p := range c.presets.All() {
		if i >= device.PresetSlots {
			break
		}
		c.send(device.SetPresetCommand(i, p.Height))
	}
}

// SetLimits stores new travel limits locally and on the device. Presets
// outside the new range are kept but reported.
func (c *Controller) SetLimits(l device.Limits) error {
	return c.do(func() error {
		if l.Min <= 0 || l.Min >= l.Max {
			return c.reject(pkgerrors.Wrapf(ErrInvalidLimits, "min %d must be positive and below max %d", l.Min, l.Max))
		}

		c.limits = l
		c.limitsRev++
		c.conf.SetLimits(l.Min, l.Max)
		if err := c.conf.Save(); err != nil {
			return pkgerrors.Wrapf(err, "failed to save limits")
		}
		logrus.WithFields(logrus.Fields{
			"min": l.Min,
			"max": l.Max,
		}).Info("limits saved")

		for _, p := range c.presets.All() {
			if c.checkHeight(p.Height) != nil {
				c.warn(fmt.Sprintf("Preset %q (%d mm) is outside the new limits", p.Name, p.Height))
			}
		}

		c.send(device.SetMinCommand(l.Min))
		c.send(device.SetMaxCommand(l.Max))
		return nil
	})
}

// loadLimits replaces the in-memory limits with the device's. Nothing is
// persisted.
func (c *Controller) loadLimits() {
	rev := c.limitsRev
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		l, err := c.client.FetchLimits(c.ctx)
		if err != nil {
			logrus.WithError(err).Debug("failed to load limits from desk")
			return
		}
		c.post(func() {
			if rev != c.limitsRev {
				logrus.Debug("limits changed locally while loading, ignoring desk limits")
				return
			}
			if l.Min <= 0 || l.Min >= l.Max {
				logrus.WithFields(logrus.Fields{
					"min": l.Min,
					"max": l.Max,
				}).Warn("desk reported invalid limits, ignoring")
				return
			}
			logrus.WithFields(logrus.Fields{
				"min": l.Min,
				"max": l.Max,
			}).Info("loaded limits from desk")
			c.limits = l
		})
	}()
}

// BaseURL returns the device address in use.
func (c *Controller) BaseURL() string {
	return c.client.BaseURL()
}

// SetBaseURL points the controller to another device, persists the address
// and polls it right away.
func (c *Controller) SetBaseURL(raw string) error {
	u := device.NormalizeBaseURL(raw)
	if u == "" {
		return c.reject(pkgerrors.Wrapf(device.ErrBadURL, "empty address"))
	}
	return c.do(func() error {
		c.client.SetBaseURL(u)
		c.conf.SetBaseURL(u)
		if err := c.conf.Save(); err != nil {
			return pkgerrors.Wrapf(err, "failed to save base URL")
		}
		logrus.WithField("baseURL", u).Info("base URL changed")

		wasMoving := c.rec.Phase() != PhaseIdle
		c.rec.Reset()
		if wasMoving {
			c.sched.StartIdle()
		}
		c.discardInflight()
		c.poll(false)
		return nil
	})
}

// TestConnection checks the current address for a desk controller.
func (c *Controller) TestConnection(ctx context.Context) bool {
	return c.client.TestConnection(ctx)
}

// ResetWiFi makes the device forget its Wi-Fi network, then points the
// controller back to the access-point address. The command is sent
// synchronously since the device drops off the network afterwards.
func (c *Controller) ResetWiFi(ctx context.Context) error {
	if err := c.client.SendCommand(ctx, device.CommandResetWiFi); err != nil {
		logrus.WithError(err).Warn("failed to send Wi-Fi reset")
		c.warn(fmt.Sprintf("Failed to reset Wi-Fi: %v", err))
	}
	return c.SetBaseURL(device.DefaultBaseURL)
}

// Reload re-reads the configuration and applies it.
func (c *Controller) Reload() error {
	return c.do(func() error {
		if err := c.conf.Load(); err != nil {
			return pkgerrors.Wrapf(err, "failed to reload config")
		}
		logrus.WithFields(c.conf.LogrusFields()).Info("config reloaded")

		c.presets = NewPresetList(c.conf.Presets())
		c.limits = device.Limits{Min: c.conf.MinLimit(), Max: c.conf.MaxLimit()}
		c.limitsRev++
		c.rec.tuning = TuningFromConfig(c.conf)
		if err := c.sched.SetIntervals(c.conf.IdleInterval(), c.conf.MovingInterval()); err != nil {
			return pkgerrors.Wrapf(err, "failed to apply polling intervals")
		}

		if u := device.NormalizeBaseURL(c.conf.BaseURL()); u != c.client.BaseURL() {
			c.client.SetBaseURL(u)
			c.rec.Reset()
			c.sched.StartIdle()
			c.discardInflight()
			c.poll(false)
		}
		return nil
	})
}
