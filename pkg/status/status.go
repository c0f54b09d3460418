package status

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Status is the readiness state of the controller.
type Status string

const (
	NotInitialized  Status = "NotInitialized"
	Initializing    Status = "Initializing"
	Ready           Status = "Ready"
	Moving          Status = "Moving"
	PositionUnknown Status = "PositionUnknown"
	Error           Status = "Error"
)

// ErrIllegalTransition is returned when a transition is not part of the state graph.
var ErrIllegalTransition = pkgerrors.New("illegal status transition")

type indicator struct {
	label string
	color string
}

var indicators = map[Status]indicator{
	NotInitialized:  {"Not initialized", "red"},
	Initializing:    {"Initializing", "yellow"},
	Ready:           {"Ready", "green"},
	Moving:          {"Moving", "yellow"},
	PositionUnknown: {"Position unknown", "lightgreen"},
	Error:           {"ERROR", "red"},
}

// Label is the operator-facing text for the status.
func (s Status) Label() string {
	if i, ok := indicators[s]; ok {
		return i.label
	}
	return string(s)
}

// Color is the indicator colour for the status.
func (s Status) Color() string {
	if i, ok := indicators[s]; ok {
		return i.color
	}
	return "red"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := indicators[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

var transitions = map[Status][]Status{
	NotInitialized:  {Initializing, Error},
	Initializing:    {NotInitialized, Ready, PositionUnknown, Error},
	Ready:           {NotInitialized, Initializing, Moving, PositionUnknown, Error},
	Moving:          {NotInitialized, Ready, PositionUnknown, Error},
	PositionUnknown: {NotInitialized, Initializing, Moving, Error},
	Error:           {NotInitialized, Initializing},
}

// Allowed reports whether from -> to is an edge of the state graph.
func Allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine holds the current status and enforces legal transitions.
// It is not safe for concurrent use; the owner serializes access.
type Machine struct {
	current Status

	// OnTransition is called after every successful transition.
	OnTransition func(from, to Status)
}

// NewMachine returns a machine in NotInitialized.
func NewMachine() *Machine {
	return &Machine{current: NotInitialized}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	return m.current
}

// Transition moves the machine to the given status.
func (m *Machine) Transition(to Status) error {
	from := m.current
	if !Allowed(from, to) {
		return pkgerrors.Wrap(ErrIllegalTransition, fmt.Sprintf("%s -> %s", from, to))
	}
	m.current = to
	if m.OnTransition != nil {
		m.OnTransition(from, to)
	}
	return nil
}

// Reset moves the machine back to NotInitialized from any status.
// It is a no-op when the machine is already NotInitialized.
func (m *Machine) Reset() {
	if m.current == NotInitialized {
		return
	}
	// Every other status has an edge to NotInitialized.
	_ = m.Transition(NotInitialized)
}
