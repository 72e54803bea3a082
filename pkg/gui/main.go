package gui

import (
	"context"
	"time"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/client"
	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/events"
	"github.com/charlie0129/deskctl/pkg/types"
)

// refreshInterval is how often presets and the schedule are re-read. Height
// and status arrive as events.
const refreshInterval = 10 * time.Second

type tray struct {
	api *client.Client

	statusItem   *systray.MenuItem
	messageItem  *systray.MenuItem
	upItem       *systray.MenuItem
	downItem     *systray.MenuItem
	stopItem     *systray.MenuItem
	presetsItem  *systray.MenuItem
	presetItems  [types.MaxPresets]*systray.MenuItem
	scheduleItem *systray.MenuItem
	skipItem     *systray.MenuItem
	quitItem     *systray.MenuItem

	presetCh chan int
}

func newTray(api *client.Client) *tray {
	return &tray{
		api:      api,
		presetCh: make(chan int),
	}
}

func (t *tray) build() {
	systray.SetTitle("🪑 Loading...")
	systray.SetTooltip(trayTooltip)

	t.statusItem = systray.AddMenuItem("Status: Connecting...", "Connection to the desk")
	t.statusItem.Disable()
	t.messageItem = systray.AddMenuItem("", "Last warning")
	t.messageItem.Disable()
	t.messageItem.Hide()

	systray.AddSeparator()

	t.upItem = systray.AddMenuItem("▲ Up", "Move the desk up")
	t.downItem = systray.AddMenuItem("▼ Down", "Move the desk down")
	t.stopItem = systray.AddMenuItem("■ Stop", stopTooltip)

	systray.AddSeparator()

	t.presetsItem = systray.AddMenuItem("Presets", "Saved desk heights")
	for i := range t.presetItems {
		item := t.presetsItem.AddSubMenuItem("", presetTooltip)
		item.Hide()
		t.presetItems[i] = item

		go func(i int) {
			for range item.ClickedCh {
				t.presetCh <- i
			}
		}(i)
	}

	t.scheduleItem = systray.AddMenuItem("Schedule: off", "Scheduled preset recall")
	t.scheduleItem.Disable()
	t.skipItem = systray.AddMenuItem("Skip Next Recall", "Skip the next scheduled preset recall")
	t.skipItem.Hide()

	systray.AddSeparator()
	t.quitItem = systray.AddMenuItem("Quit", quitTooltip)

	t.refresh()
}

func (t *tray) watchClicks() {
	for {
		var err error
		select {
		case <-t.upItem.ClickedCh:
			_, err = t.api.MoveUp()
		case <-t.downItem.ClickedCh:
			_, err = t.api.MoveDown()
		case <-t.stopItem.ClickedCh:
			_, err = t.api.Stop()
		case i := <-t.presetCh:
			_, err = t.api.GotoPreset(i)
		case <-t.skipItem.ClickedCh:
			var st *types.ScheduleStatus
			if st, err = t.api.SkipSchedule(); err == nil {
				t.setSchedule(st, nil)
			}
		case <-t.quitItem.ClickedCh:
			systray.Quit()
			return
		}
		if err != nil {
			logrus.WithError(err).Error("request failed")
			t.showMessage(err.Error())
		}
	}
}

func (t *tray) watchEvents(ctx context.Context) {
	for ev := range t.api.SubscribeEvents(ctx) {
		logrus.WithFields(logrus.Fields{
			"event": ev.Name,
			"data":  string(ev.Data),
		}).Debug("new event")

		switch ev.Name {
		case events.StateChanged:
			snap, err := events.DecodeAs[desk.Snapshot](ev)
			if err != nil {
				logrus.WithError(err).Error("failed to decode state event")
				continue
			}
			t.setState(snap)
		case events.Warning:
			w, err := events.DecodeAs[events.WarningEvent](ev)
			if err != nil {
				logrus.WithError(err).Error("failed to decode warning event")
				continue
			}
			t.showMessage(w.Message)
		case events.ScheduleUpcoming, events.ScheduleRecall:
			se, err := events.DecodeAs[events.ScheduleEvent](ev)
			if err != nil {
				logrus.WithError(err).Errorf("failed to decode %s event", ev.Name)
				continue
			}
			t.showMessage(se.Message)
			t.refresh()
		}
	}
}

func (t *tray) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

// refresh re-reads the presets and the schedule.
func (t *tray) refresh() {
	presets, err := t.api.GetPresets()
	if err != nil {
		logrus.WithError(err).Debug("cannot get presets")
		t.setOffline()
		return
	}
	t.setPresets(presets)

	st, err := t.api.GetSchedule()
	if err != nil {
		logrus.WithError(err).Debug("cannot get schedule")
		return
	}
	t.setSchedule(st, presets)
}

func (t *tray) setState(s desk.Snapshot) {
	systray.SetTitle(trayTitle(s))
	t.statusItem.SetTitle(statusLine(s))
}

func (t *tray) setOffline() {
	systray.SetTitle("🚫 Offline")
	t.statusItem.SetTitle("Status: daemon not running")
}

func (t *tray) setPresets(presets []types.Preset) {
	for i, item := range t.presetItems {
		if i < len(presets) {
			item.SetTitle(presetLabel(i, presets[i]))
			item.Show()
		} else {
			item.Hide()
		}
	}
	if len(presets) == 0 {
		t.presetsItem.Disable()
	} else {
		t.presetsItem.Enable()
	}
}

// setSchedule updates the schedule line. With nil presets the line is
// rebuilt from a fresh preset list.
func (t *tray) setSchedule(st *types.ScheduleStatus, presets []types.Preset) {
	if presets == nil {
		var err error
		if presets, err = t.api.GetPresets(); err != nil {
			logrus.WithError(err).Debug("cannot get presets")
		}
	}
	t.scheduleItem.SetTitle(scheduleLine(st, presets, time.Now()))
	if st.Enabled() {
		t.skipItem.Show()
	} else {
		t.skipItem.Hide()
	}
}

func (t *tray) showMessage(msg string) {
	t.messageItem.SetTitle("⚠ " + msg)
	t.messageItem.Show()
}
