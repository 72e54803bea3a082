package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charlie0129/deskctl/pkg/client"
	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/desk"
	"github.com/charlie0129/deskctl/pkg/events"
	"github.com/charlie0129/deskctl/pkg/types"
	"github.com/charlie0129/deskctl/pkg/utils/ptr"
)

// fakeDesk answers like the controller firmware and records commands.
type fakeDesk struct {
	mu       sync.Mutex
	height   int
	commands []string
}

func (d *fakeDesk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r.URL.Path {
	case "/status":
		_, _ = fmt.Fprintf(w, "ESP32 Desk Controller\nCurrent Height: %d mm\n", d.height)
	case "/limits":
		_, _ = fmt.Fprint(w, "Minimum: 575\nMaximum: 1185\n")
	default:
		d.commands = append(d.commands, strings.TrimPrefix(r.URL.Path, "/"))
		_, _ = fmt.Fprint(w, "OK")
	}
}

func (d *fakeDesk) received(cmd string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

type serverFixture struct {
	desk     *fakeDesk
	deskURL  string
	confPath string
	server   *Server
	api      *client.Client
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	fd := &fakeDesk{height: 742}
	deskSrv := httptest.NewServer(fd)
	t.Cleanup(deskSrv.Close)

	confPath := filepath.Join(t.TempDir(), "config.json")
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		BaseURL:              ptr.To(deskSrv.URL),
		MovingIntervalMillis: ptr.To(25),
		IdleIntervalMillis:   ptr.To(25),
		RequestTimeoutMillis: ptr.To(1000),
	}, confPath)

	// Unix socket paths are length limited, so avoid t.TempDir.
	dir, err := os.MkdirTemp("", "deskd")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "d.sock")

	l, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := NewServer(conf)
	httpSrv := &http.Server{Handler: s}
	go func() { _ = httpSrv.Serve(l) }()
	s.Start()
	t.Cleanup(func() {
		s.Shutdown()
		_ = httpSrv.Close()
	})

	f := &serverFixture{
		desk:     fd,
		deskURL:  deskSrv.URL,
		confPath: confPath,
		server:   s,
		api:      client.NewClient(socket),
	}
	f.waitConnected(t)
	return f
}

func (f *serverFixture) waitConnected(t *testing.T) {
	t.Helper()
	waitUntil(t, 3*time.Second, func() bool {
		snap, err := f.api.GetState()
		return err == nil && snap.IsConnected && snap.CurrentHeight != nil
	})
}

func TestServerState(t *testing.T) {
	f := newServerFixture(t)

	snap, err := f.api.GetState()
	if err != nil {
		t.Fatalf("GetState() error: %v", err)
	}
	if *snap.CurrentHeight != 742 || snap.Status != desk.StatusConnected || snap.IsMoving {
		t.Errorf("GetState() = %+v", snap)
	}
	if snap.HeightString() != "742 mm" {
		t.Errorf("HeightString() = %q", snap.HeightString())
	}
}

func TestServerMove(t *testing.T) {
	f := newServerFixture(t)

	msg, err := f.api.MoveUp()
	if err != nil {
		t.Fatalf("MoveUp() error: %v", err)
	}
	if msg != "moving up" {
		t.Errorf("MoveUp() = %q", msg)
	}
	if _, err := f.api.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return f.desk.received("up") && f.desk.received("stop")
	})
}

func TestServerRejectsBadInput(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"height above limits", func() error { _, err := f.api.MoveToHeight(2000); return err }},
		{"height below limits", func() error { _, err := f.api.MoveToHeight(100); return err }},
		{"goto missing preset", func() error { _, err := f.api.GotoPreset(7); return err }},
		{"remove missing preset", func() error { _, err := f.api.RemovePreset(3); return err }},
		{"inverted limits", func() error { _, err := f.api.SetLimits(900, 800); return err }},
		{"blank base url", func() error { _, err := f.api.SetBaseURL("  "); return err }},
		{"bad index", func() error { _, err := f.api.Put("/goto/abc", ""); return err }},
		{"bad duration", func() error { _, err := f.api.Post("/schedule/postpone", `"soon"`); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, client.ErrBadRequest) {
				t.Errorf("got %v, want ErrBadRequest", err)
			}
		})
	}

	if f.desk.received("height2000") {
		t.Errorf("out of range height reached the desk")
	}
}

func TestServerPresets(t *testing.T) {
	f := newServerFixture(t)

	var presets []types.Preset
	for i := 0; i < types.MaxPresets; i++ {
		presets = append(presets, types.Preset{Name: fmt.Sprintf("P%d", i), Height: 700 + i*10})
	}
	if _, err := f.api.ReplacePresets(presets); err != nil {
		t.Fatalf("ReplacePresets() error: %v", err)
	}

	if _, err := f.api.AddPreset("Tenth", 900); !errors.Is(err, client.ErrBadRequest) {
		t.Fatalf("AddPreset() past the cap: got %v, want ErrBadRequest", err)
	}

	if _, err := f.api.RemovePreset(8); err != nil {
		t.Fatalf("RemovePreset() error: %v", err)
	}
	p, err := f.api.AddPreset("Standing", 1100)
	if err != nil {
		t.Fatalf("AddPreset() error: %v", err)
	}
	if p.ID == "" || p.Name != "Standing" || p.Height != 1100 {
		t.Errorf("AddPreset() = %+v", p)
	}

	if _, err := f.api.UpdatePreset(0, "Sitting", 720); err != nil {
		t.Fatalf("UpdatePreset() error: %v", err)
	}
	got, err := f.api.GetPresets()
	if err != nil {
		t.Fatalf("GetPresets() error: %v", err)
	}
	if len(got) != types.MaxPresets || got[0].Name != "Sitting" || got[0].Height != 720 || got[8].Name != "Standing" {
		t.Errorf("GetPresets() = %+v", got)
	}

	if _, err := f.api.GotoPreset(0); err != nil {
		t.Fatalf("GotoPreset(0) error: %v", err)
	}
	if _, err := f.api.GotoPreset(8); err != nil {
		t.Fatalf("GotoPreset(8) error: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return f.desk.received("goto0") && f.desk.received("height1100")
	})

	saved, err := config.NewFile(f.confPath)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if n := len(saved.Presets()); n != types.MaxPresets {
		t.Errorf("saved %d presets, want %d", n, types.MaxPresets)
	}
}

func TestServerLimitsAndBaseURL(t *testing.T) {
	f := newServerFixture(t)

	if _, err := f.api.SetLimits(600, 1100); err != nil {
		t.Fatalf("SetLimits() error: %v", err)
	}
	l, err := f.api.GetLimits()
	if err != nil {
		t.Fatalf("GetLimits() error: %v", err)
	}
	if l.Min != 600 || l.Max != 1100 {
		t.Errorf("GetLimits() = %+v", l)
	}

	u, err := f.api.GetBaseURL()
	if err != nil {
		t.Fatalf("GetBaseURL() error: %v", err)
	}
	if u != f.deskURL {
		t.Errorf("GetBaseURL() = %q, want %q", u, f.deskURL)
	}

	ok, err := f.api.TestConnection()
	if err != nil || !ok {
		t.Errorf("TestConnection() = %v, %v", ok, err)
	}
}

func TestServerResetWiFi(t *testing.T) {
	f := newServerFixture(t)

	if _, err := f.api.ResetWiFi(); err != nil {
		t.Fatalf("ResetWiFi() error: %v", err)
	}
	if !f.desk.received("resetwifi") {
		t.Errorf("desk did not receive resetwifi")
	}

	u, err := f.api.GetBaseURL()
	if err != nil {
		t.Fatalf("GetBaseURL() error: %v", err)
	}
	if u != "http://192.168.4.1" {
		t.Errorf("GetBaseURL() = %q after reset", u)
	}
}

func TestServerSchedule(t *testing.T) {
	f := newServerFixture(t)

	st, err := f.api.GetSchedule()
	if err != nil {
		t.Fatalf("GetSchedule() error: %v", err)
	}
	if st.Enabled() || len(st.NextRuns) != 0 {
		t.Fatalf("GetSchedule() = %+v, want disabled", st)
	}

	// The default config has three presets.
	if _, err := f.api.SetSchedule("0 9 * * *", 5); !errors.Is(err, client.ErrBadRequest) {
		t.Fatalf("schedule for a missing preset: got %v, want ErrBadRequest", err)
	}
	if _, err := f.api.SetSchedule("not a cron", 0); !errors.Is(err, client.ErrBadRequest) {
		t.Fatalf("invalid cron: got %v, want ErrBadRequest", err)
	}

	st, err = f.api.SetSchedule("0 9 * * *", 0)
	if err != nil {
		t.Fatalf("SetSchedule() error: %v", err)
	}
	if st.Cron != "0 9 * * *" || st.Preset != 0 || len(st.NextRuns) != nextRunsShown {
		t.Fatalf("SetSchedule() = %+v", st)
	}
	if h := st.NextRuns[0].Hour(); h != 9 {
		t.Errorf("next run at hour %d, want 9", h)
	}

	skipped, err := f.api.SkipSchedule()
	if err != nil {
		t.Fatalf("SkipSchedule() error: %v", err)
	}
	if !skipped.NextRuns[0].Equal(st.NextRuns[1]) {
		t.Errorf("after skip next run is %v, want %v", skipped.NextRuns[0], st.NextRuns[1])
	}

	postponed, err := f.api.PostponeSchedule(30 * time.Minute)
	if err != nil {
		t.Fatalf("PostponeSchedule() error: %v", err)
	}
	if want := skipped.NextRuns[0].Add(30 * time.Minute); !postponed.NextRuns[0].Equal(want) {
		t.Errorf("after postpone next run is %v, want %v", postponed.NextRuns[0], want)
	}

	saved, err := config.NewFile(f.confPath)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if saved.Schedule() != "0 9 * * *" || saved.SchedulePreset() != 0 {
		t.Errorf("saved schedule = %q/%d", saved.Schedule(), saved.SchedulePreset())
	}

	st, err = f.api.SetSchedule("", 0)
	if err != nil {
		t.Fatalf("disabling schedule: %v", err)
	}
	if st.Enabled() {
		t.Errorf("schedule still enabled: %+v", st)
	}
}

func TestServerEvents(t *testing.T) {
	f := newServerFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch := f.api.SubscribeEvents(ctx)
	ev, ok := <-ch
	if !ok {
		t.Fatalf("event stream closed before the first event")
	}
	if ev.Name != events.StateChanged {
		t.Fatalf("first event is %q, want %q", ev.Name, events.StateChanged)
	}
	snap, err := events.DecodeAs[desk.Snapshot](ev)
	if err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if !snap.IsConnected || snap.CurrentHeight == nil || *snap.CurrentHeight != 742 {
		t.Errorf("initial state = %+v", snap)
	}

	// A rejected edit is broadcast as a warning.
	if _, err := f.api.MoveToHeight(5000); err == nil {
		t.Fatalf("MoveToHeight(5000) succeeded")
	}
	if _, err := f.api.AddPreset("Too high", 5000); err == nil {
		t.Fatalf("AddPreset(5000) succeeded")
	}
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed before the warning")
			}
			if ev.Name != events.Warning {
				continue
			}
			w, err := events.DecodeAs[events.WarningEvent](ev)
			if err != nil {
				t.Fatalf("decoding warning: %v", err)
			}
			if !strings.Contains(w.Message, "5000") {
				t.Errorf("warning = %q", w.Message)
			}
			return
		case <-ctx.Done():
			t.Fatalf("no warning received")
		}
	}
}

func TestServerVersion(t *testing.T) {
	f := newServerFixture(t)

	v, err := f.api.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion() error: %v", err)
	}
	if v == "" {
		t.Errorf("GetVersion() returned an empty string")
	}
}
