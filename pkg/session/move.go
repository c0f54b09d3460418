package session

import (
	"context"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/status"
)

// Kind selects how the move amount is interpreted.
type Kind string

const (
	Relative Kind = "relative"
	Absolute Kind = "absolute"
)

// Direction is an operator-facing move direction.
type Direction string

const (
	Tele  Direction = "tele"
	Wide  Direction = "wide"
	Near  Direction = "near"
	Far   Direction = "far"
	Open  Direction = "open"
	Close Direction = "close"
)

type directionSign struct {
	axis lens.Axis
	sign int
}

// The driver depends on these signs.
var directions = map[Direction]directionSign{
	Tele:  {lens.Zoom, -1},
	Wide:  {lens.Zoom, +1},
	Near:  {lens.Focus, -1},
	Far:   {lens.Focus, +1},
	Open:  {lens.Iris, -1},
	Close: {lens.Iris, +1},
}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(s))
	if _, ok := directions[d]; !ok {
		return "", pkgerrors.Wrapf(ErrInvalidRequest, "unknown direction %q", s)
	}
	return d, nil
}

// Axis returns the axis the direction applies to.
func (d Direction) Axis() lens.Axis {
	return directions[d].axis
}

// Sign returns -1 or +1 for the raw step count.
func (d Direction) Sign() int {
	return directions[d].sign
}

// MoveRequest asks to move one axis.
//
// For Relative moves with a Direction, Amount is a non-negative magnitude.
// Without a Direction, Amount is a signed step delta. For Absolute moves,
// Amount is the target step.
type MoveRequest struct {
	Axis      lens.Axis `json:"axis"`
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction,omitempty"`
	Amount    int       `json:"amount"`
}

// Delta returns the signed step delta of a relative move.
func (r MoveRequest) Delta() int {
	if r.Direction == "" {
		return r.Amount
	}
	return r.Direction.Sign() * r.Amount
}

func (r MoveRequest) validate() error {
	if _, err := lens.ParseAxis(string(r.Axis)); err != nil {
		return pkgerrors.Wrap(ErrInvalidRequest, err.Error())
	}
	switch r.Kind {
	case Relative:
		if r.Direction == "" {
			return nil
		}
		ds, ok := directions[r.Direction]
		if !ok {
			return pkgerrors.Wrapf(ErrInvalidRequest, "unknown direction %q", r.Direction)
		}
		if ds.axis != r.Axis {
			return pkgerrors.Wrapf(ErrInvalidRequest, "direction %s does not apply to %s", r.Direction, r.Axis)
		}
		if r.Amount < 0 {
			return pkgerrors.Wrapf(ErrInvalidRequest, "negative amount %d with direction %s", r.Amount, r.Direction)
		}
	case Absolute:
		if r.Direction != "" {
			return pkgerrors.Wrap(ErrInvalidRequest, "absolute moves take no direction")
		}
	default:
		return pkgerrors.Wrapf(ErrInvalidRequest, "unknown move kind %q", r.Kind)
	}
	return nil
}

// Move issues one move and returns the step reported by the driver.
//
// The status check comes first, then absolute eligibility; a rejected request
// never reaches the driver. A resulting step outside [0, steps] degrades the
// session to PositionUnknown and is reported as ErrPositionDrift along with
// the step.
func (c *Coordinator) Move(ctx context.Context, req MoveRequest) (int, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	origin := c.machine.Current()
	if !c.canMove(origin, req.Kind) {
		c.mu.Unlock()
		return 0, pkgerrors.Wrapf(ErrInvalidState, "cannot move %s while %s", req.Axis, origin)
	}
	if c.busy {
		c.mu.Unlock()
		return 0, ErrBusy
	}
	if req.Kind == Absolute && !c.policy.AbsoluteMovesEnabled {
		c.mu.Unlock()
		return 0, pkgerrors.Wrapf(ErrAbsoluteMovesDisabled, "home the motors before moving %s to a step", req.Axis)
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return 0, err
	}

	c.busy = true
	c.transition(status.Moving)
	gen := c.generation
	axis := c.board.Axis(req.Axis)
	cfg := *c.config
	homed := c.axes[req.Axis].Homed
	// Iris has no meaningful backlash correction.
	backlash := c.policy.CorrectBacklash && req.Axis != lens.Iris
	c.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"axis": req.Axis,
		"kind": req.Kind,
	})

	var err error
	switch req.Kind {
	case Relative:
		delta := req.Delta()
		log.WithFields(logrus.Fields{"delta": delta, "backlash": backlash}).Debug("moving axis")
		err = axis.MoveRel(delta, backlash)
	case Absolute:
		log.WithField("target", req.Amount).Debug("moving axis")
		err = axis.MoveAbs(req.Amount)
	}
	step := 0
	if err == nil {
		step = axis.CurrentStep()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if gen != c.generation || c.closed {
		log.Warn("move result discarded")
		return 0, ErrSessionInvalidated
	}
	if err != nil {
		err = pkgerrors.Wrapf(err, "failed to move %s", req.Axis)
		c.fail(err)
		return 0, err
	}

	c.setAxis(req.Axis, AxisState{Step: step, Homed: homed})
	if !cfg.InBounds(req.Axis, step) {
		log.WithField("step", step).Warn("axis outside configured bounds")
		c.distrustHome()
		c.transition(status.PositionUnknown)
		return step, pkgerrors.Wrapf(ErrPositionDrift, "%s at step %d, outside [0, %d]", req.Axis, step, cfg.Steps(req.Axis))
	}
	if origin == status.PositionUnknown {
		c.transition(status.PositionUnknown)
	} else {
		c.transition(status.Ready)
	}
	log.WithField("step", step).Debug("move finished")
	return step, nil
}

func (c *Coordinator) canMove(st status.Status, kind Kind) bool {
	switch st {
	case status.Ready:
		return true
	case status.PositionUnknown:
		return kind == Relative && c.policy.RelativeWhenUnknown
	}
	return false
}
