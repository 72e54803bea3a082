package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/types"
)

// Config is the persisted local state: where the desk is, the user's
// presets, the travel limits and the polling tunables.
type Config interface {
	BaseURL() string
	Presets() []types.Preset
	MinLimit() int
	MaxLimit() int

	// DeadBandMM is the largest reading difference not treated as motion.
	DeadBandMM() int
	// MovingStableReadings is how many consecutive stable readings while
	// moving mean the desk has stopped.
	MovingStableReadings() int
	// IdleStableReadings is how many consecutive stable readings while idle
	// pause further height updates.
	IdleStableReadings() int
	MovingInterval() time.Duration
	IdleInterval() time.Duration
	RequestTimeout() time.Duration

	// Schedule is the cron expression for the scheduled preset recall.
	// Empty means disabled.
	Schedule() string
	// SchedulePreset is the index of the preset the schedule recalls.
	SchedulePreset() int

	SetBaseURL(string)
	SetPresets([]types.Preset)
	SetLimits(min, max int)
	SetSchedule(cronExpr string, preset int)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
