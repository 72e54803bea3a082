package gui

import (
	"fmt"
	"time"

	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/types"
)

// trayTitle is the text next to the tray icon.
func trayTitle(s desk.Snapshot) string {
	switch {
	case s.Status == desk.StatusDisconnected:
		return "🚫 Offline"
	case s.IsMoving:
		return "↕ " + s.HeightString()
	default:
		return "🪑 " + s.HeightString()
	}
}

func statusLine(s desk.Snapshot) string {
	return "Status: " + s.StatusMessage
}

func presetLabel(i int, p types.Preset) string {
	return fmt.Sprintf("%d. %s (%d mm)", i+1, p.Name, p.Height)
}

// scheduleLine describes the next scheduled recall.
func scheduleLine(st *types.ScheduleStatus, presets []types.Preset, now time.Time) string {
	if st == nil || !st.Enabled() || len(st.NextRuns) == 0 {
		return "Schedule: off"
	}

	name := fmt.Sprintf("#%d", st.Preset+1)
	if st.Preset < len(presets) {
		name = presets[st.Preset].Name
	}

	next := st.NextRuns[0]
	when := next.Format("Mon 15:04")
	if sameDay(next, now) {
		when = next.Format("15:04")
	}
	return fmt.Sprintf("Schedule: %s at %s", name, when)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
