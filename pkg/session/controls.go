package session

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/status"
)

// AxisSpeed holds motor and homing speeds in pulses per second. Zero leaves
// the driver's value untouched.
type AxisSpeed struct {
	Speed       int `json:"speed,omitempty"`
	HomingSpeed int `json:"homingSpeed,omitempty"`
}

// Speeds maps axes to speeds.
type Speeds map[lens.Axis]AxisSpeed

// applySpeed sets speeds best-effort. Rejected values are logged and the
// driver keeps its previous value. It returns what the axis reports afterwards.
func applySpeed(log *logrus.Entry, a lens.Axis, axis mcr.Axis, s AxisSpeed) AxisSpeed {
	log = log.WithField("axis", a)
	if s.Speed > 0 {
		if err := axis.SetMotorSpeed(s.Speed); err != nil {
			log.WithError(err).WithField("speed", s.Speed).Warn("motor speed not applied")
		}
	}
	if s.HomingSpeed > 0 {
		if err := axis.SetHomingSpeed(s.HomingSpeed); err != nil {
			log.WithError(err).WithField("speed", s.HomingSpeed).Warn("homing speed not applied")
		}
	}
	return AxisSpeed{Speed: axis.Speed(), HomingSpeed: axis.HomingSpeed()}
}

// ChangeFamily selects another lens family. A different family invalidates
// the session; the connection stays open. Selecting the current family is a
// no-op.
func (c *Coordinator) ChangeFamily(family string) error {
	if _, err := c.catalog.Resolve(family); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if family == c.family {
		return nil
	}
	c.invalidate(false, "family changed")
	c.family = family
	c.persist(func(s Store) { s.SetLensFamily(family) })
	return nil
}

// ChangePort selects another comm port. A different port closes the
// connection and invalidates the session. Selecting the current port is a
// no-op.
func (c *Coordinator) ChangePort(port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if port == c.port {
		return nil
	}
	c.invalidate(true, "port changed")
	c.port = port
	c.persist(func(s Store) { s.SetComPort(port) })
	return nil
}

// SetRespectLimits toggles soft limits on focus and zoom. Absolute moves are
// only available with limits on and a trusted home position.
func (c *Coordinator) SetRespectLimits(respect bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	c.policy.RespectLimits = respect
	if c.board != nil {
		c.board.Axis(lens.Focus).SetRespectLimits(respect)
		c.board.Axis(lens.Zoom).SetRespectLimits(respect)
	}
	c.refreshAbsoluteMoves()
	logrus.WithField("respectLimits", respect).Info("soft limits updated")
	c.persist(func(s Store) { s.SetRespectLimits(respect) })
	return nil
}

// SetBacklash toggles backlash correction for focus and zoom relative moves.
func (c *Coordinator) SetBacklash(correct bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.policy.CorrectBacklash = correct
	logrus.WithField("correctBacklash", correct).Info("backlash correction updated")
	c.persist(func(s Store) { s.SetCorrectBacklash(correct) })
	return nil
}

// SetRelativeWhenUnknown controls whether relative moves are allowed while the
// position is unknown. Absolute moves stay rejected in that state.
func (c *Coordinator) SetRelativeWhenUnknown(allow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.policy.RelativeWhenUnknown = allow
	logrus.WithField("relativeWhenUnknown", allow).Info("relative moves while position unknown updated")
	c.persist(func(s Store) { s.SetRelativeWhenUnknown(allow) })
	return nil
}

// SetFilter switches the infrared-cut filter to position 1 or 2.
func (c *Coordinator) SetFilter(position int) error {
	if position != 1 && position != 2 {
		return pkgerrors.Wrapf(ErrInvalidRequest, "filter position %d (want 1 or 2)", position)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.machine.Current(); st != status.Ready && st != status.PositionUnknown {
		return pkgerrors.Wrapf(ErrInvalidState, "cannot switch filter while %s", st)
	}
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.board.Filter().SetState(position); err != nil {
		err = pkgerrors.Wrap(err, "failed to switch filter")
		c.fail(err)
		return err
	}
	c.filter = position
	logrus.WithField("position", position).Info("filter switched")
	return nil
}

// SetSpeeds applies speeds best-effort and persists the values the board
// accepted. Only a connected board can validate a speed, so the session must
// hold a connection. It returns the effective speeds.
func (c *Coordinator) SetSpeeds(speeds Speeds) (Speeds, error) {
	for a := range speeds {
		if _, err := lens.ParseAxis(string(a)); err != nil {
			return nil, pkgerrors.Wrap(ErrInvalidRequest, err.Error())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.board == nil {
		return nil, pkgerrors.Wrap(ErrInvalidState, "speeds need a connected controller")
	}

	effective := make(Speeds, len(speeds))
	log := logrus.WithField("port", c.port)
	for _, a := range lens.Axes() {
		s, ok := speeds[a]
		if !ok {
			continue
		}
		got := applySpeed(log, a, c.board.Axis(a), s)
		// Report only what was asked for.
		if s.Speed == 0 {
			got.Speed = 0
		}
		if s.HomingSpeed == 0 {
			got.HomingSpeed = 0
		}
		effective[a] = got
	}

	c.persist(func(st Store) {
		for a, s := range effective {
			if s.Speed > 0 {
				st.SetSpeed(a, s.Speed)
			}
			if s.HomingSpeed > 0 {
				st.SetHomingSpeed(a, s.HomingSpeed)
			}
		}
	})
	return effective, nil
}

// SetCommunicationPath switches the board to another interface. The board
// restarts on the new path, so the session is invalidated afterwards.
func (c *Coordinator) SetCommunicationPath(ctx context.Context, path mcr.CommPath) error {
	if _, err := mcr.ParseCommPath(string(path)); err != nil {
		return pkgerrors.Wrap(ErrInvalidRequest, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.board == nil {
		if c.port == "" {
			return pkgerrors.Wrap(ErrConnectionFailed, "com port is blank")
		}
		if c.connector == nil {
			return pkgerrors.Wrap(ErrConnectionFailed, "no board driver configured")
		}
		b, err := c.connector.Connect(c.port)
		if err != nil {
			err = pkgerrors.Wrapf(ErrConnectionFailed, "%s: %v", c.port, err)
			c.fail(err)
			return err
		}
		c.board = b
	}

	if err := c.board.SetCommunicationPath(path); err != nil {
		err = pkgerrors.Wrap(err, "failed to set communication path")
		c.fail(err)
		return err
	}
	logrus.WithFields(logrus.Fields{"port": c.port, "path": path}).Info("communication path changed")
	c.invalidate(true, "communication path changed")
	return nil
}

// CheckPosition reads every axis from the driver while the session is Ready
// and degrades to PositionUnknown when one is out of bounds. In any other
// status it does nothing.
func (c *Coordinator) CheckPosition(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}
	if c.machine.Current() != status.Ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var drifted []lens.Axis
	for _, a := range lens.Axes() {
		step := c.board.Axis(a).CurrentStep()
		c.setAxis(a, AxisState{Step: step, Homed: c.axes[a].Homed})
		if !c.config.InBounds(a, step) {
			drifted = append(drifted, a)
		}
	}
	if len(drifted) == 0 {
		return nil
	}
	logrus.WithField("axes", drifted).Warn("axis position drifted outside configured bounds")
	c.distrustHome()
	c.transition(status.PositionUnknown)
	return pkgerrors.Wrapf(ErrPositionDrift, "%v", drifted)
}
