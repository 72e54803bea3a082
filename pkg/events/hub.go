package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventHub fans events out to every subscriber.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish never blocks. A subscriber that does not keep up misses events,
// which is fine for state snapshots since the next one supersedes it.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to marshal event payload")
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()
}

// PublishState sends a desk state snapshot.
func (h *EventHub) PublishState(snapshot any) {
	h.Publish(StateChanged, snapshot)
}

// PublishWarning sends a user-visible warning stamped with at.
func (h *EventHub) PublishWarning(msg string, at time.Time) {
	h.Publish(Warning, WarningEvent{Message: msg, Ts: at.Unix()})
}

// PublishSchedule sends a schedule.upcoming or schedule.recall event.
func (h *EventHub) PublishSchedule(name string, ev ScheduleEvent) error {
	if name != ScheduleUpcoming && name != ScheduleRecall {
		return fmt.Errorf("%q is not a schedule event", name)
	}
	h.Publish(name, ev)
	return nil
}

// Close unsubscribes everyone.
func (h *EventHub) Close() {
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}
