package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/device"
	"github.com/charlie0129/deskctl/pkg/events"
	"github.com/charlie0129/deskctl/pkg/types"
	"github.com/charlie0129/deskctl/pkg/version"
)

// nextRunsShown is how many upcoming runs GET /schedule lists.
const nextRunsShown = 3

func isValidationError(err error) bool {
	return errors.Is(err, desk.ErrTooManyPresets) ||
		errors.Is(err, desk.ErrPresetIndexOutOfRange) ||
		errors.Is(err, desk.ErrHeightOutOfLimits) ||
		errors.Is(err, desk.ErrInvalidLimits) ||
		errors.Is(err, device.ErrBadURL)
}

// abort writes err with a status code matching its kind.
func abort(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case isValidationError(err):
		code = http.StatusBadRequest
	case errors.Is(err, desk.ErrControllerStopped):
		code = http.StatusServiceUnavailable
	}
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid preset index %q", c.Param("index")))
		return 0, false
	}
	return i, true
}

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) getState(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Snapshot())
}

// streamEvents sends the current state, then every event until the client
// goes away.
func (s *Server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent(events.StateChanged, s.ctrl.Snapshot())
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func (s *Server) moveUp(c *gin.Context) {
	if err := s.ctrl.MoveUp(); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "moving up")
}

func (s *Server) moveDown(c *gin.Context) {
	if err := s.ctrl.MoveDown(); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "moving down")
}

func (s *Server) stop(c *gin.Context) {
	if err := s.ctrl.Stop(); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "stopping")
}

func (s *Server) gotoPreset(c *gin.Context) {
	i, ok := indexParam(c)
	if !ok {
		return
	}
	if err := s.ctrl.GotoPreset(i); err != nil {
		abort(c, err)
		return
	}
	msg := fmt.Sprintf("moving to preset %d", i)
	if presets := s.ctrl.Presets(); i < len(presets) {
		msg = fmt.Sprintf("moving to %s (%d mm)", presets[i].Name, presets[i].Height)
	}
	c.IndentedJSON(http.StatusCreated, msg)
}

func (s *Server) moveToHeight(c *gin.Context) {
	var h int
	if err := c.BindJSON(&h); err != nil {
		badRequest(c, err)
		return
	}

	// The controller sends any height; the limits are enforced here.
	if err := s.ctrl.CheckHeight(h); err != nil {
		abort(c, err)
		return
	}
	if err := s.ctrl.MoveToHeight(h); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("moving to %d mm", h))
}

func (s *Server) getPresets(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Presets())
}

func (s *Server) replacePresets(c *gin.Context) {
	var presets []types.Preset
	if err := c.BindJSON(&presets); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.ctrl.ReplacePresets(presets); err != nil {
		abort(c, err)
		return
	}
	logrus.Infof("replaced presets, %d stored", len(presets))
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("saved %d presets", len(presets)))
}

func (s *Server) addPreset(c *gin.Context) {
	var p types.Preset
	if err := c.BindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	created, err := s.ctrl.AddPreset(p.Name, p.Height)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, created)
}

func (s *Server) updatePreset(c *gin.Context) {
	i, ok := indexParam(c)
	if !ok {
		return
	}
	var p types.Preset
	if err := c.BindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.ctrl.UpdatePreset(i, p.Name, p.Height); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("updated preset %d", i))
}

func (s *Server) removePreset(c *gin.Context) {
	i, ok := indexParam(c)
	if !ok {
		return
	}
	if err := s.ctrl.RemovePreset(i); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fmt.Sprintf("removed preset %d", i))
}

func (s *Server) syncPresets(c *gin.Context) {
	if err := s.ctrl.SyncPresets(); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "presets sent to desk")
}

func (s *Server) getLimits(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Limits())
}

func (s *Server) setLimits(c *gin.Context) {
	var l device.Limits
	if err := c.BindJSON(&l); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.ctrl.SetLimits(l); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set limits to %d-%d mm", l.Min, l.Max))
}

func (s *Server) getBaseURL(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.BaseURL())
}

func (s *Server) setBaseURL(c *gin.Context) {
	var u string
	if err := c.BindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.ctrl.SetBaseURL(u); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("base URL set to %s", s.ctrl.BaseURL()))
}

func (s *Server) testConnection(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.conf.RequestTimeout())
	defer cancel()
	c.IndentedJSON(http.StatusOK, s.ctrl.TestConnection(ctx))
}

func (s *Server) resetWiFi(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.conf.RequestTimeout())
	defer cancel()
	if err := s.ctrl.ResetWiFi(ctx); err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("Wi-Fi reset, base URL set to %s", s.ctrl.BaseURL()))
}

func (s *Server) getSchedule(c *gin.Context) {
	expr, _, _ := s.sched.Status()
	c.IndentedJSON(http.StatusOK, types.ScheduleStatus{
		Cron:     expr,
		Preset:   s.conf.SchedulePreset(),
		NextRuns: s.sched.NextRuns(nextRunsShown),
	})
}

func (s *Server) setSchedule(c *gin.Context) {
	var req types.ScheduleRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.Cron == "" {
		req.Preset = s.conf.SchedulePreset()
	} else {
		if _, err := ParseSchedule(req.Cron); err != nil {
			badRequest(c, fmt.Errorf("invalid cron expression %q: %v", req.Cron, err))
			return
		}
		if n := len(s.ctrl.Presets()); req.Preset < 0 || req.Preset >= n {
			badRequest(c, fmt.Errorf("%w: index %d, have %d presets", desk.ErrPresetIndexOutOfRange, req.Preset, n))
			return
		}
	}

	if err := s.sched.Schedule(req.Cron); err != nil {
		abort(c, err)
		return
	}
	s.conf.SetSchedule(req.Cron, req.Preset)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, err)
		return
	}

	if req.Cron == "" {
		logrus.Info("preset schedule disabled")
	} else {
		logrus.WithFields(logrus.Fields{
			"cron":   req.Cron,
			"preset": req.Preset,
		}).Info("preset schedule set")
	}

	s.getSchedule(c)
}

func (s *Server) postponeSchedule(c *gin.Context) {
	var d string
	if err := c.BindJSON(&d); err != nil {
		badRequest(c, err)
		return
	}
	dur, err := time.ParseDuration(d)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid duration %q: %v", d, err))
		return
	}
	if err := s.sched.Postpone(dur); err != nil {
		badRequest(c, err)
		return
	}
	s.getSchedule(c)
}

func (s *Server) skipSchedule(c *gin.Context) {
	if err := s.sched.Skip(); err != nil {
		badRequest(c, err)
		return
	}
	s.getSchedule(c)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
