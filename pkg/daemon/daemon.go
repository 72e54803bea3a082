package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/events"
)

// Server exposes one desk controller over HTTP.
type Server struct {
	conf   config.Config
	hub    *events.EventHub
	ctrl   *desk.Controller
	sched  *Scheduler
	router *gin.Engine
}

func NewServer(conf config.Config) *Server {
	hub := events.NewEventHub()
	s := &Server{
		conf: conf,
		hub:  hub,
		ctrl: desk.New(conf, hub),
	}
	s.sched = NewScheduler(s.recallScheduledPreset, s.checkDeskReady, s.announceRecall, s.reportScheduleError)
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", s.getConfig)
	router.GET("/state", s.getState)
	router.GET("/events", s.streamEvents)
	router.PUT("/move/up", s.moveUp)
	router.PUT("/move/down", s.moveDown)
	router.PUT("/stop", s.stop)
	router.PUT("/goto/:index", s.gotoPreset)
	router.PUT("/height", s.moveToHeight)
	router.GET("/presets", s.getPresets)
	router.PUT("/presets", s.replacePresets)
	router.POST("/presets", s.addPreset)
	router.POST("/presets/sync", s.syncPresets)
	router.PUT("/presets/:index", s.updatePreset)
	router.DELETE("/presets/:index", s.removePreset)
	router.GET("/limits", s.getLimits)
	router.PUT("/limits", s.setLimits)
	router.GET("/base-url", s.getBaseURL)
	router.PUT("/base-url", s.setBaseURL)
	router.POST("/test-connection", s.testConnection)
	router.POST("/reset-wifi", s.resetWiFi)
	router.GET("/schedule", s.getSchedule)
	router.PUT("/schedule", s.setSchedule)
	router.POST("/schedule/postpone", s.postponeSchedule)
	router.POST("/schedule/skip", s.skipSchedule)
	router.GET("/version", getVersion)

	return router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins polling the desk and arms the preset schedule.
func (s *Server) Start() {
	s.ctrl.Start()

	if expr := s.conf.Schedule(); expr != "" {
		if err := s.sched.Schedule(expr); err != nil {
			logrus.WithError(err).WithField("schedule", expr).Error("invalid schedule in config, ignoring")
		}
	}
	s.sched.Start()
}

func (s *Server) Shutdown() {
	s.sched.Stop()
	s.ctrl.Shutdown()
	s.hub.Close()
}

// Reload re-reads the config file and applies it.
func (s *Server) Reload() error {
	if err := s.ctrl.Reload(); err != nil {
		return err
	}
	return s.sched.Schedule(s.conf.Schedule())
}

func (s *Server) checkDeskReady() error {
	snap := s.ctrl.Snapshot()
	if !snap.IsConnected {
		return fmt.Errorf("desk is not connected (%s)", snap.StatusMessage)
	}
	if snap.IsMoving {
		return fmt.Errorf("desk is moving")
	}
	return nil
}

func (s *Server) scheduledPreset() (int, string) {
	i := s.conf.SchedulePreset()
	presets := s.ctrl.Presets()
	if i < len(presets) {
		return i, presets[i].Name
	}
	return i, fmt.Sprintf("#%d", i)
}

func (s *Server) recallScheduledPreset() error {
	i, name := s.scheduledPreset()
	if err := s.ctrl.GotoPreset(i); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"preset": i,
		"name":   name,
	}).Info("scheduled preset recalled")
	_ = s.hub.PublishSchedule(events.ScheduleRecall, events.ScheduleEvent{
		Preset:  i,
		Name:    name,
		RunAt:   time.Now().Unix(),
		Message: fmt.Sprintf("Moving to %s", name),
	})
	return nil
}

func (s *Server) announceRecall(runAt time.Time) {
	i, name := s.scheduledPreset()
	_ = s.hub.PublishSchedule(events.ScheduleUpcoming, events.ScheduleEvent{
		Preset:  i,
		Name:    name,
		RunAt:   runAt.Unix(),
		Message: fmt.Sprintf("Desk moves to %s at %s", name, runAt.Format(time.Kitchen)),
	})
}

func (s *Server) reportScheduleError(err error) {
	logrus.WithError(err).Warn("scheduled recall failed")
	s.hub.PublishWarning("Scheduled recall: "+err.Error(), time.Now())
}

func Run(configPath string, unixSocketPath string) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	s := NewServer(conf)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := s.Reload(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: s,
	}

	// A socket left behind by a crashed daemon blocks Listen.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatalf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if err := os.Chmod(unixSocketPath, 0600); err != nil {
		logrus.Fatal(err)
	}

	s.Start()

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping desk controller")
	// Ends open event streams, so the server can shut down.
	s.Shutdown()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
