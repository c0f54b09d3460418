package session

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"github.com/mcrlens/lensctl/pkg/mcr"
)

// Command is one operator request. The concrete types below are the only
// implementations.
type Command interface {
	command()
}

type (
	// InitializeRequested runs the initialization sequence. Dispatch returns
	// a *SessionHandle.
	InitializeRequested struct{ InitRequest }
	// MoveRequested moves one axis. Dispatch returns the resulting step.
	MoveRequested struct{ MoveRequest }
	// FamilyChanged selects a lens family.
	FamilyChanged struct{ Family string }
	// PortChanged selects a comm port.
	PortChanged struct{ Port string }
	// FilterRequested switches the filter.
	FilterRequested struct{ Position int }
	// SpeedsRequested updates speeds. Dispatch returns the effective Speeds.
	SpeedsRequested struct{ Speeds Speeds }
	// LimitsToggled turns soft limits on or off.
	LimitsToggled struct{ Respect bool }
	// BacklashToggled turns backlash correction on or off.
	BacklashToggled struct{ Correct bool }
	// CommPathRequested switches the board's communication path.
	CommPathRequested struct{ Path mcr.CommPath }
	// RelativeWhenUnknownToggled allows or forbids relative moves while the
	// position is unknown.
	RelativeWhenUnknownToggled struct{ Allow bool }
)

func (InitializeRequested) command()        {}
func (MoveRequested) command()              {}
func (FamilyChanged) command()              {}
func (PortChanged) command()                {}
func (FilterRequested) command()            {}
func (SpeedsRequested) command()            {}
func (LimitsToggled) command()              {}
func (BacklashToggled) command()            {}
func (CommPathRequested) command()          {}
func (RelativeWhenUnknownToggled) command() {}

// Dispatch runs a command. The result is nil unless the command documents one.
// Errors from a command that also produced a result (an axis fault during
// initialization, drift after a move) are returned alongside it.
func (c *Coordinator) Dispatch(ctx context.Context, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case InitializeRequested:
		h, err := c.Initialize(ctx, cmd.InitRequest)
		if h == nil {
			return nil, err
		}
		return h, err
	case MoveRequested:
		step, err := c.Move(ctx, cmd.MoveRequest)
		return step, err
	case FamilyChanged:
		return nil, c.ChangeFamily(cmd.Family)
	case PortChanged:
		return nil, c.ChangePort(cmd.Port)
	case FilterRequested:
		return nil, c.SetFilter(cmd.Position)
	case SpeedsRequested:
		s, err := c.SetSpeeds(cmd.Speeds)
		if s == nil {
			return nil, err
		}
		return s, err
	case LimitsToggled:
		return nil, c.SetRespectLimits(cmd.Respect)
	case BacklashToggled:
		return nil, c.SetBacklash(cmd.Correct)
	case CommPathRequested:
		return nil, c.SetCommunicationPath(ctx, cmd.Path)
	case RelativeWhenUnknownToggled:
		return nil, c.SetRelativeWhenUnknown(cmd.Allow)
	case nil:
		return nil, pkgerrors.Wrap(ErrInvalidRequest, "nil command")
	}
	return nil, pkgerrors.Wrapf(ErrInvalidRequest, "unknown command %T", cmd)
}
