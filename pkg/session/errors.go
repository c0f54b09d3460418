package session

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
)

var (
	// ErrConnectionFailed means the hardware link could not be opened.
	// The session moves to Error.
	ErrConnectionFailed = pkgerrors.New("connection failed")

	// ErrConfigurationNotFound means the lens family is not in the catalog.
	// No state changes.
	ErrConfigurationNotFound = lens.ErrConfigurationNotFound

	// ErrAxisInitFault is matched by *AxisFaultError. The session is still usable.
	ErrAxisInitFault = pkgerrors.New("axis init fault")

	// ErrInvalidState means the operation is forbidden in the current status.
	// No hardware call was made.
	ErrInvalidState = pkgerrors.New("invalid state")

	// ErrAbsoluteMovesDisabled means the last initialization did not establish
	// a trusted home position. No hardware call was made.
	ErrAbsoluteMovesDisabled = pkgerrors.New("absolute moves disabled")

	// ErrOutOfRangeSpeed is logged and swallowed during best-effort speed updates.
	ErrOutOfRangeSpeed = mcr.ErrSpeedOutOfRange

	// ErrPositionDrift is reported with the new step when an axis leaves its bounds.
	ErrPositionDrift = pkgerrors.New("position drift")

	// ErrInvalidRequest is returned for malformed commands.
	ErrInvalidRequest = pkgerrors.New("invalid request")

	// ErrBusy means another hardware operation is in flight.
	ErrBusy = pkgerrors.Wrap(ErrInvalidState, "operation in progress")

	// ErrSessionInvalidated means a port or family change discarded the
	// result of an operation that was in flight.
	ErrSessionInvalidated = pkgerrors.Wrap(ErrInvalidState, "session invalidated")

	// ErrClosed is returned after Teardown.
	ErrClosed = pkgerrors.Wrap(ErrInvalidState, "session closed")
)

// AxisFault records one axis that failed to initialize.
type AxisFault struct {
	Axis  lens.Axis `json:"axis"`
	Error string    `json:"error"`
}

// AxisFaultError aggregates the axis faults of one initialization.
type AxisFaultError struct {
	Faults []AxisFault
}

func (e *AxisFaultError) Error() string {
	parts := make([]string, 0, len(e.Faults))
	for _, f := range e.Faults {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Axis, f.Error))
	}
	return fmt.Sprintf("%s (%s)", ErrAxisInitFault, strings.Join(parts, "; "))
}

func (e *AxisFaultError) Is(target error) bool {
	return target == ErrAxisInitFault
}

// Axes returns the faulted axes in initialization order.
func (e *AxisFaultError) Axes() []lens.Axis {
	axes := make([]lens.Axis, 0, len(e.Faults))
	for _, f := range e.Faults {
		axes = append(axes, f.Axis)
	}
	return axes
}
