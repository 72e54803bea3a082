package desk

import (
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/events"
)

// Status is the connectivity shown to the user.
type Status string

const (
	StatusConnecting        Status = "Connecting"
	StatusConnected         Status = "Connected"
	StatusConnectedNoHeight Status = "ConnectedNoHeight"
	StatusDisconnected      Status = "Disconnected"
)

// Message is the human readable status line.
func (s Status) Message() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusConnectedNoHeight:
		return "Connected (height unknown)"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Connecting..."
	}
}

// Color is the status color used by the UI.
func (s Status) Color() string {
	switch s {
	case StatusConnected:
		return "#4ade80"
	case StatusConnectedNoHeight:
		return "#facc15"
	case StatusDisconnected:
		return "#f87171"
	default:
		return "#888888"
	}
}

// Snapshot is an immutable view of the connection state.
type Snapshot struct {
	// CurrentHeight is nil when the height is unknown.
	CurrentHeight *int   `json:"currentHeight"`
	IsConnected   bool   `json:"isConnected"`
	Status        Status `json:"status"`
	StatusMessage string `json:"statusMessage"`
	StatusColor   string `json:"statusColor"`
	IsMoving      bool   `json:"isMoving"`
}

// HeightString renders the height the way the UI shows it.
func (s Snapshot) HeightString() string {
	if s.CurrentHeight == nil {
		return "---"
	}
	return strconv.Itoa(*s.CurrentHeight) + " mm"
}

func (s Snapshot) equal(o Snapshot) bool {
	if (s.CurrentHeight == nil) != (o.CurrentHeight == nil) {
		return false
	}
	if s.CurrentHeight != nil && *s.CurrentHeight != *o.CurrentHeight {
		return false
	}
	return s.IsConnected == o.IsConnected && s.Status == o.Status && s.IsMoving == o.IsMoving
}

// State is the observable connection state. It is written only from the
// controller loop; Snapshot may be called from anywhere.
type State struct {
	height    *int
	status    Status
	moving    bool
	published atomic.Pointer[Snapshot]

	hub       *events.EventHub
	observers map[int]func(Snapshot)
	nextObsID int
}

// NewState returns a state in the Connecting status. hub may be nil.
func NewState(hub *events.EventHub) *State {
	s := &State{
		status:    StatusConnecting,
		hub:       hub,
		observers: map[int]func(Snapshot){},
	}
	snap := s.build()
	s.published.Store(&snap)
	return s
}

// Snapshot returns the last committed state.
func (s *State) Snapshot() Snapshot {
	return *s.published.Load()
}

func (s *State) setHeight(h int) {
	s.height = &h
}

func (s *State) clearHeight() {
	s.height = nil
}

func (s *State) heightKnown() bool {
	return s.height != nil
}

func (s *State) setStatus(st Status) {
	s.status = st
}

func (s *State) setMoving(m bool) {
	s.moving = m
}

func (s *State) build() Snapshot {
	snap := Snapshot{
		IsConnected:   s.status == StatusConnected || s.status == StatusConnectedNoHeight,
		Status:        s.status,
		StatusMessage: s.status.Message(),
		StatusColor:   s.status.Color(),
		IsMoving:      s.moving,
	}
	if s.height != nil {
		h := *s.height
		snap.CurrentHeight = &h
	}
	return snap
}

// commit publishes pending changes as one snapshot, so readers never see a
// partial update.
func (s *State) commit() {
	snap := s.build()
	if old := s.published.Load(); old != nil && old.equal(snap) {
		return
	}
	s.published.Store(&snap)

	logrus.WithFields(logrus.Fields{
		"height": snap.HeightString(),
		"status": snap.Status,
		"moving": snap.IsMoving,
	}).Debug("state changed")

	s.hub.PublishState(snap)
	for _, o := range s.observers {
		o(snap)
	}
}

func (s *State) observe(fn func(Snapshot)) int {
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	return id
}

func (s *State) unobserve(id int) {
	delete(s.observers, id)
}
