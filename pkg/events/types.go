package events

import "encoding/json"

// Event name constants
const (
	// StateChanged carries a full connection state snapshot.
	StateChanged = "state"
	// Warning carries a user-visible warning, e.g. a rejected edit or a
	// failed command.
	Warning = "warning"
	// ScheduleUpcoming is sent shortly before a scheduled preset recall.
	ScheduleUpcoming = "schedule.upcoming"
	// ScheduleRecall is sent when a scheduled recall moves the desk.
	ScheduleRecall = "schedule.recall"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// WarningEvent is the typed payload for warning.
type WarningEvent struct {
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// ScheduleEvent is the typed payload for schedule.upcoming and
// schedule.recall.
type ScheduleEvent struct {
	Preset  int    `json:"preset"`
	Name    string `json:"name"`
	RunAt   int64  `json:"runAt"`
	Message string `json:"message"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.WarningEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Message)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
