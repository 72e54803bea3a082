package client

import (
	"encoding/json"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/device"
	"github.com/charlie0129/deskctl/pkg/types"
)

func (c *Client) GetState() (*desk.Snapshot, error) {
	ret, err := c.Get("/state")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get desk state")
	}

	var snap desk.Snapshot
	if err := json.Unmarshal([]byte(ret), &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal desk state")
	}
	return &snap, nil
}

func (c *Client) MoveUp() (string, error) {
	return c.message(c.Put("/move/up", ""))
}

func (c *Client) MoveDown() (string, error) {
	return c.message(c.Put("/move/down", ""))
}

func (c *Client) Stop() (string, error) {
	return c.message(c.Put("/stop", ""))
}

func (c *Client) GotoPreset(index int) (string, error) {
	return c.message(c.Put("/goto/"+strconv.Itoa(index), ""))
}

func (c *Client) MoveToHeight(height int) (string, error) {
	return c.message(c.Put("/height", strconv.Itoa(height)))
}

func (c *Client) GetPresets() ([]types.Preset, error) {
	ret, err := c.Get("/presets")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get presets")
	}

	var presets []types.Preset
	if err := json.Unmarshal([]byte(ret), &presets); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal presets")
	}
	return presets, nil
}

func (c *Client) AddPreset(name string, height int) (*types.Preset, error) {
	payload, err := json.Marshal(types.Preset{Name: name, Height: height})
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/presets", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to add preset")
	}

	var p types.Preset
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal preset")
	}
	return &p, nil
}

func (c *Client) UpdatePreset(index int, name string, height int) (string, error) {
	payload, err := json.Marshal(types.Preset{Name: name, Height: height})
	if err != nil {
		return "", err
	}
	return c.message(c.Put("/presets/"+strconv.Itoa(index), string(payload)))
}

func (c *Client) RemovePreset(index int) (string, error) {
	return c.message(c.Delete("/presets/" + strconv.Itoa(index)))
}

func (c *Client) ReplacePresets(presets []types.Preset) (string, error) {
	payload, err := json.Marshal(presets)
	if err != nil {
		return "", err
	}
	return c.message(c.Put("/presets", string(payload)))
}

// SyncPresets pushes the stored presets to the desk again.
func (c *Client) SyncPresets() (string, error) {
	return c.message(c.Post("/presets/sync", ""))
}

func (c *Client) GetLimits() (*device.Limits, error) {
	ret, err := c.Get("/limits")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get limits")
	}

	var l device.Limits
	if err := json.Unmarshal([]byte(ret), &l); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal limits")
	}
	return &l, nil
}

func (c *Client) SetLimits(min, max int) (string, error) {
	payload, err := json.Marshal(device.Limits{Min: min, Max: max})
	if err != nil {
		return "", err
	}
	return c.message(c.Put("/limits", string(payload)))
}

func (c *Client) GetBaseURL() (string, error) {
	ret, err := c.Get("/base-url")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get base URL")
	}
	return unquote(ret), nil
}

func (c *Client) SetBaseURL(u string) (string, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return c.message(c.Put("/base-url", string(payload)))
}

func (c *Client) TestConnection() (bool, error) {
	ret, err := c.Post("/test-connection", "")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to test connection")
	}
	return parseBoolResponse(ret)
}

func (c *Client) ResetWiFi() (string, error) {
	return c.message(c.Post("/reset-wifi", ""))
}

func (c *Client) GetSchedule() (*types.ScheduleStatus, error) {
	return c.schedule(c.Get("/schedule"))
}

// SetSchedule sets the cron expression and the preset it recalls. An empty
// expression disables the schedule.
func (c *Client) SetSchedule(cronExpr string, preset int) (*types.ScheduleStatus, error) {
	payload, err := json.Marshal(types.ScheduleRequest{Cron: cronExpr, Preset: preset})
	if err != nil {
		return nil, err
	}
	return c.schedule(c.Put("/schedule", string(payload)))
}

func (c *Client) PostponeSchedule(d time.Duration) (*types.ScheduleStatus, error) {
	payload, err := json.Marshal(d.String())
	if err != nil {
		return nil, err
	}
	return c.schedule(c.Post("/schedule/postpone", string(payload)))
}

func (c *Client) SkipSchedule() (*types.ScheduleStatus, error) {
	return c.schedule(c.Post("/schedule/skip", ""))
}

func (c *Client) schedule(ret string, err error) (*types.ScheduleStatus, error) {
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "schedule request failed")
	}

	var st types.ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &st, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// message strips the JSON quoting of a plain string response.
func (c *Client) message(ret string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func unquote(s string) string {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

func parseBoolResponse(resp string) (bool, error) {
	switch resp {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, pkgerrors.Errorf("unexpected response: %s", resp)
	}
}
