package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/device"
	"github.com/charlie0129/deskctl/pkg/types"
)

type statusData struct {
	state    *desk.Snapshot
	presets  []types.Preset
	limits   *device.Limits
	baseURL  string
	schedule *types.ScheduleStatus
}

type statusJSON struct {
	Desk     desk.Snapshot         `json:"desk"`
	BaseURL  string                `json:"baseURL"`
	Limits   device.Limits         `json:"limits"`
	Presets  []types.Preset        `json:"presets"`
	Schedule *types.ScheduleStatus `json:"schedule,omitempty"`
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	state, err := apiClient.GetState()
	if err != nil {
		return nil, fmt.Errorf("failed to get desk state: %w", err)
	}

	presets, err := apiClient.GetPresets()
	if err != nil {
		return nil, fmt.Errorf("failed to get presets: %w", err)
	}

	limits, err := apiClient.GetLimits()
	if err != nil {
		return nil, fmt.Errorf("failed to get limits: %w", err)
	}

	baseURL, err := apiClient.GetBaseURL()
	if err != nil {
		return nil, fmt.Errorf("failed to get base URL: %w", err)
	}

	schedule, err := apiClient.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return &statusData{
		state:    state,
		presets:  presets,
		limits:   limits,
		baseURL:  baseURL,
		schedule: schedule,
	}, nil
}

func (d *statusData) json() statusJSON {
	out := statusJSON{
		Desk:    *d.state,
		BaseURL: d.baseURL,
		Limits:  *d.limits,
		Presets: d.presets,
	}
	if d.schedule.Enabled() {
		out.Schedule = d.schedule
	}
	return out
}

func statusColor(s desk.Status) *color.Color {
	switch s {
	case desk.StatusConnected:
		return color.New(color.Bold, color.FgGreen)
	case desk.StatusConnectedNoHeight:
		return color.New(color.Bold, color.FgYellow)
	case desk.StatusDisconnected:
		return color.New(color.Bold, color.FgRed)
	default:
		return color.New(color.Bold)
	}
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the desk",
		Long:    `Get the desk height and connection status, presets, limits and schedule.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(data.json(), "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			// Desk.
			cmd.Println(bold("Desk status:"))
			cmd.Printf("  Height: %s\n", bold("%s", data.state.HeightString()))
			cmd.Printf("  Connection: %s\n", statusColor(data.state.Status).Sprint(data.state.StatusMessage))
			cmd.Printf("  Moving: %s\n", bool2Text(data.state.IsMoving))
			cmd.Printf("  Controller: %s\n", data.baseURL)

			cmd.Println()

			// Presets.
			cmd.Println(bold("Presets:"))
			printPresets(cmd, data.presets)

			cmd.Println()

			// Config.
			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Limits: %s\n", bold("%d-%d mm", data.limits.Min, data.limits.Max))
			if data.schedule.Enabled() {
				next := "-"
				if len(data.schedule.NextRuns) > 0 {
					next = data.schedule.NextRuns[0].Local().Format(time.DateTime)
				}
				cmd.Printf("  Schedule: %s, preset %d, next at %s\n", bold("%s", data.schedule.Cron), data.schedule.Preset+1, next)
			} else {
				cmd.Printf("  Schedule: %s\n", bool2Text(false))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")

	return cmd
}
