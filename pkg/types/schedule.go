package types

import "time"

// ScheduleRequest is the body of PUT /schedule. An empty Cron disables the
// schedule.
type ScheduleRequest struct {
	Cron   string `json:"cron"`
	Preset int    `json:"preset"`
}

// ScheduleStatus is returned by the /schedule endpoints.
type ScheduleStatus struct {
	Cron     string      `json:"cron"`
	Preset   int         `json:"preset"`
	NextRuns []time.Time `json:"nextRuns"`
}

// Enabled reports whether a cron expression is set.
func (s ScheduleStatus) Enabled() bool {
	return s.Cron != ""
}
