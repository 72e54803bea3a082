package events

import (
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	h.Publish(Warning, WarningEvent{Message: "too many presets", Ts: 1})

	ev := <-ch
	if ev.Name != Warning {
		t.Fatalf("event name = %q, want %q", ev.Name, Warning)
	}
	w, err := DecodeAs[WarningEvent](ev)
	if err != nil {
		t.Fatalf("DecodeAs() error: %v", err)
	}
	if w.Message != "too many presets" {
		t.Errorf("message = %q", w.Message)
	}

	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after Unsubscribe")
	}
	// Publishing with no subscribers must not block or panic.
	h.Publish(Warning, WarningEvent{})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		h.Publish(StateChanged, i)
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected buffered channel to be full, got %d/%d", len(ch), cap(ch))
	}
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	h.Publish(Warning, WarningEvent{})
}

func TestHubTypedPublish(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	at := time.Unix(1700000000, 0)
	h.PublishWarning("height 5000 mm is outside the limits", at)
	ev := <-ch
	w, err := DecodeAs[WarningEvent](ev)
	if err != nil || ev.Name != Warning {
		t.Fatalf("got %q, %v", ev.Name, err)
	}
	if w.Ts != at.Unix() || w.Message != "height 5000 mm is outside the limits" {
		t.Errorf("warning = %+v", w)
	}

	h.PublishState(map[string]int{"currentHeight": 742})
	if ev := <-ch; ev.Name != StateChanged || string(ev.Data) != `{"currentHeight":742}` {
		t.Errorf("state event = %q %s", ev.Name, ev.Data)
	}

	tests := []struct {
		name    string
		wantErr bool
	}{
		{ScheduleUpcoming, false},
		{ScheduleRecall, false},
		{Warning, true},
		{"schedule", true},
	}
	for _, tt := range tests {
		err := h.PublishSchedule(tt.name, ScheduleEvent{Preset: 1, Name: "Stand"})
		if (err != nil) != tt.wantErr {
			t.Errorf("PublishSchedule(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		ev := <-ch
		s, err := DecodeAs[ScheduleEvent](ev)
		if err != nil || ev.Name != tt.name || s.Name != "Stand" {
			t.Errorf("schedule event = %q %+v %v", ev.Name, s, err)
		}
	}
	if len(ch) != 0 {
		t.Errorf("rejected schedule events were published")
	}
}
