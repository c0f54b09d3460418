package events

import "encoding/json"

// Event name constants
const (
	StatusChanged              = "status.changed"
	AxisPositionChanged        = "axis.position"
	AbsoluteEligibilityChanged = "absolute.eligibility"
	PositionCheckFailed        = "position.check"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StatusChangedEvent is the typed payload for status.changed.
type StatusChangedEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
	Color string `json:"color"`
	Ts    int64  `json:"ts"`
}

// AxisPositionEvent is the typed payload for axis.position.
type AxisPositionEvent struct {
	Axis string `json:"axis"`
	Step int    `json:"step"`
	Ts   int64  `json:"ts"`
}

// AbsoluteEligibilityEvent is the typed payload for absolute.eligibility.
type AbsoluteEligibilityEvent struct {
	Enabled bool  `json:"enabled"`
	Ts      int64 `json:"ts"`
}

// PositionCheckEvent is the typed payload for position.check.
type PositionCheckEvent struct {
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StatusChangedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
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
