package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/types"
	"github.com/charlie0129/deskctl/pkg/utils/ptr"
)

var (
	defaultPresets = []types.Preset{
		{Name: "Sit", Height: 700},
		{Name: "Stand", Height: 1100},
		{Name: "Focus", Height: 850},
	}

	defaultFileConfig = &RawFileConfig{
		BaseURL:              ptr.To("http://192.168.4.1"),
		MinLimit:             ptr.To(575),
		MaxLimit:             ptr.To(1185),
		DeadBandMM:           ptr.To(2),
		MovingStableReadings: ptr.To(4),
		IdleStableReadings:   ptr.To(3),
		MovingIntervalMillis: ptr.To(500),
		IdleIntervalMillis:   ptr.To(10000),
		RequestTimeoutMillis: ptr.To(3000),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// DefaultPath returns ~/.config/deskctl/config.json (or the platform
// equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "deskctl.json"
	}
	return filepath.Join(dir, "deskctl", "config.json")
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	BaseURL              *string         `json:"baseURL,omitempty"`
	Presets              *[]types.Preset `json:"presets,omitempty"`
	MinLimit             *int            `json:"minLimit,omitempty"`
	MaxLimit             *int            `json:"maxLimit,omitempty"`
	DeadBandMM           *int            `json:"deadBandMM,omitempty"`
	MovingStableReadings *int            `json:"movingStableReadings,omitempty"`
	IdleStableReadings   *int            `json:"idleStableReadings,omitempty"`
	MovingIntervalMillis *int            `json:"movingIntervalMillis,omitempty"`
	IdleIntervalMillis   *int            `json:"idleIntervalMillis,omitempty"`
	RequestTimeoutMillis *int            `json:"requestTimeoutMillis,omitempty"`
	Schedule             *string         `json:"schedule,omitempty"`
	SchedulePreset       *int            `json:"schedulePreset,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	presets := c.Presets()
	rawConfig := &RawFileConfig{
		BaseURL:              ptr.To(c.BaseURL()),
		Presets:              &presets,
		MinLimit:             ptr.To(c.MinLimit()),
		MaxLimit:             ptr.To(c.MaxLimit()),
		DeadBandMM:           ptr.To(c.DeadBandMM()),
		MovingStableReadings: ptr.To(c.MovingStableReadings()),
		IdleStableReadings:   ptr.To(c.IdleStableReadings()),
		MovingIntervalMillis: ptr.To(int(c.MovingInterval() / time.Millisecond)),
		IdleIntervalMillis:   ptr.To(int(c.IdleInterval() / time.Millisecond)),
		RequestTimeoutMillis: ptr.To(int(c.RequestTimeout() / time.Millisecond)),
		Schedule:             ptr.To(c.Schedule()),
		SchedulePreset:       ptr.To(c.SchedulePreset()),
	}

	return rawConfig, nil
}

// intOr returns *v, or *def when v is unset or not positive.
func intOr(v, def *int) int {
	if v != nil && *v > 0 {
		return *v
	}
	return *def
}

func (f *File) BaseURL() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.BaseURL != nil && *f.c.BaseURL != "" {
		return *f.c.BaseURL
	}
	return *defaultFileConfig.BaseURL
}

// Presets returns a copy of the stored presets, capped at types.MaxPresets.
func (f *File) Presets() []types.Preset {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.Presets == nil {
		return types.ClonePresets(defaultPresets)
	}
	return types.ClonePresets(*f.c.Presets)
}

func (f *File) MinLimit() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr(f.c.MinLimit, defaultFileConfig.MinLimit)
}

func (f *File) MaxLimit() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr(f.c.MaxLimit, defaultFileConfig.MaxLimit)
}

func (f *File) DeadBandMM() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	// A zero dead-band is legitimate: every millimetre counts as motion.
	if f.c.DeadBandMM != nil && *f.c.DeadBandMM >= 0 {
		return *f.c.DeadBandMM
	}
	return *defaultFileConfig.DeadBandMM
}

func (f *File) MovingStableReadings() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr(f.c.MovingStableReadings, defaultFileConfig.MovingStableReadings)
}

func (f *File) IdleStableReadings() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr(f.c.IdleStableReadings, defaultFileConfig.IdleStableReadings)
}

func (f *File) MovingInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(intOr(f.c.MovingIntervalMillis, defaultFileConfig.MovingIntervalMillis)) * time.Millisecond
}

func (f *File) IdleInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(intOr(f.c.IdleIntervalMillis, defaultFileConfig.IdleIntervalMillis)) * time.Millisecond
}

func (f *File) RequestTimeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(intOr(f.c.RequestTimeoutMillis, defaultFileConfig.RequestTimeoutMillis)) * time.Millisecond
}

func (f *File) Schedule() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.Schedule == nil {
		return ""
	}
	return *f.c.Schedule
}

func (f *File) SchedulePreset() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SchedulePreset == nil || *f.c.SchedulePreset < 0 {
		return 0
	}
	return *f.c.SchedulePreset
}

func (f *File) SetSchedule(cronExpr string, preset int) {
	if f.c == nil {
		panic("config is nil")
	}

	if preset < 0 || preset >= types.MaxPresets {
		panic("schedule preset index out of range")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Schedule = &cronExpr
	f.c.SchedulePreset = &preset
}

func (f *File) SetBaseURL(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.BaseURL = &s
}

func (f *File) SetPresets(p []types.Preset) {
	if f.c == nil {
		panic("config is nil")
	}

	if len(p) > types.MaxPresets {
		panic("at most 9 presets can be stored")
	}

	presets := types.ClonePresets(p)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Presets = &presets
}

func (f *File) SetLimits(min, max int) {
	if f.c == nil {
		panic("config is nil")
	}

	if min <= 0 || min >= max {
		panic("min limit must be positive and less than max limit")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MinLimit = &min
	f.c.MaxLimit = &max
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}

	if conf.Presets != nil && len(*conf.Presets) > types.MaxPresets {
		logrus.WithFields(logrus.Fields{
			"stored": len(*conf.Presets),
			"max":    types.MaxPresets,
		}).Warn("too many presets in config file, extra presets are dropped")
	}
	if conf.Presets != nil {
		presets := types.ClonePresets(*conf.Presets)
		conf.Presets = &presets
	}

	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create config directory for %s", f.filepath)
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"baseURL":              f.BaseURL(),
		"presets":              len(f.Presets()),
		"minLimit":             f.MinLimit(),
		"maxLimit":             f.MaxLimit(),
		"deadBandMM":           f.DeadBandMM(),
		"movingStableReadings": f.MovingStableReadings(),
		"idleStableReadings":   f.IdleStableReadings(),
		"movingInterval":       f.MovingInterval().String(),
		"idleInterval":         f.IdleInterval().String(),
		"requestTimeout":       f.RequestTimeout().String(),
		"schedule":             f.Schedule(),
		"schedulePreset":       f.SchedulePreset(),
	}
}
