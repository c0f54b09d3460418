package session

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/status"
)

// DefaultFilterPosition is the filter position set by initialization.
const DefaultFilterPosition = 1

// InitRequest asks for an initialization. An empty Port or Family falls back
// to the session's current selection.
type InitRequest struct {
	Port          string `json:"port,omitempty"`
	Family        string `json:"family,omitempty"`
	HomeMotors    bool   `json:"home"`
	RespectLimits *bool  `json:"respectLimits,omitempty"`
}

// SessionHandle describes a session that reached Ready or PositionUnknown.
type SessionHandle struct {
	Port       string                  `json:"port"`
	Family     string                  `json:"family"`
	Generation uint64                  `json:"generation"`
	Config     lens.Configuration      `json:"config"`
	Policy     Policy                  `json:"policy"`
	Axes       map[lens.Axis]AxisState `json:"axes"`
	Board      BoardInfo               `json:"board"`
	Status     status.Status           `json:"status"`
	Faults     []AxisFault             `json:"faults,omitempty"`
}

// Initialize connects to the board if needed and brings the session to Ready.
//
// Axis faults do not abort the sequence: the remaining axes are still
// initialized, the session reaches Ready with absolute moves disabled and the
// faults are returned as *AxisFaultError together with a valid handle.
func (c *Coordinator) Initialize(ctx context.Context, req InitRequest) (*SessionHandle, error) {
	c.mu.Lock()

	if err := c.ready(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	port := req.Port
	if port == "" {
		port = c.port
	}
	family := req.Family
	if family == "" {
		family = c.family
	}
	respectLimits := c.policy.RespectLimits
	if req.RespectLimits != nil {
		respectLimits = *req.RespectLimits
	}

	if port == "" {
		c.transition(status.Error)
		c.mu.Unlock()
		return nil, pkgerrors.Wrap(ErrConnectionFailed, "com port is blank")
	}

	cfg, err := c.catalog.Resolve(family)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	if port != c.port {
		c.invalidate(true, "port changed")
		c.port = port
	}
	if family != c.family {
		c.invalidate(false, "family changed")
		c.family = family
	}

	c.busy = true
	c.transition(status.Initializing)
	gen := c.generation
	board := c.board
	connector := c.connector
	c.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"port":   port,
		"family": family,
		"home":   req.HomeMotors,
	})
	log.Info("initializing controller")

	r := &initRun{
		log:           log,
		board:         board,
		cfg:           cfg,
		home:          req.HomeMotors,
		respectLimits: respectLimits,
		speeds:        c.persistedSpeeds(),
	}
	if board == nil {
		r.err = r.connect(connector, port)
	}
	if r.err == nil {
		r.run(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if gen != c.generation || c.closed {
		log.Warn("initialization result discarded")
		if r.opened && r.board != nil {
			if err := r.board.Close(); err != nil {
				log.WithError(err).Warn("failed to close board")
			}
		}
		return nil, ErrSessionInvalidated
	}

	if r.err != nil {
		if r.opened && r.board != nil {
			c.board = r.board
		}
		c.fail(r.err)
		return nil, r.err
	}

	c.board = r.board
	if r.opened {
		c.info = r.info
	}
	c.config = &cfg
	c.filter = DefaultFilterPosition
	c.faults = r.faults
	c.policy.RespectLimits = respectLimits
	c.homeTrusted = req.HomeMotors && len(r.faults) == 0

	drift := false
	for _, a := range lens.Axes() {
		step := r.steps[a]
		c.setAxis(a, AxisState{Step: step, Homed: req.HomeMotors && !r.faulted(a)})
		if !cfg.InBounds(a, step) {
			log.WithFields(logrus.Fields{"axis": a, "step": step}).Warn("axis outside configured bounds after init")
			drift = true
		}
	}
	if drift {
		c.homeTrusted = false
	}
	c.refreshAbsoluteMoves()
	if drift {
		c.transition(status.PositionUnknown)
	} else {
		c.transition(status.Ready)
	}

	c.persist(func(s Store) {
		s.SetComPort(port)
		s.SetLensFamily(family)
	})

	h := &SessionHandle{
		Port:       port,
		Family:     family,
		Generation: c.generation,
		Config:     cfg,
		Policy:     c.policy,
		Axes:       c.snapshot().Axes,
		Board:      c.info,
		Status:     c.machine.Current(),
		Faults:     append([]AxisFault(nil), r.faults...),
	}
	if len(r.faults) > 0 {
		return h, &AxisFaultError{Faults: h.Faults}
	}
	log.WithField("status", h.Status).Info("controller initialized")
	return h, nil
}

func (c *Coordinator) persistedSpeeds() Speeds {
	if c.store == nil {
		return nil
	}
	s := make(Speeds, 3)
	for _, a := range lens.Axes() {
		s[a] = AxisSpeed{Speed: c.store.Speed(a), HomingSpeed: c.store.HomingSpeed(a)}
	}
	return s
}

// initRun carries one initialization outside the session lock.
type initRun struct {
	log           *logrus.Entry
	board         mcr.Board
	opened        bool
	cfg           lens.Configuration
	home          bool
	respectLimits bool
	speeds        Speeds

	info   BoardInfo
	faults []AxisFault
	steps  map[lens.Axis]int
	err    error
}

func (r *initRun) connect(connector mcr.Connector, port string) error {
	if connector == nil {
		return pkgerrors.Wrap(ErrConnectionFailed, "no board driver configured")
	}
	b, err := connector.Connect(port)
	if err != nil {
		return pkgerrors.Wrapf(ErrConnectionFailed, "%s: %v", port, err)
	}
	r.board = b
	r.opened = true

	if fw, err := b.FirmwareRevision(); err != nil {
		r.log.WithError(err).Warn("failed to read firmware revision")
	} else {
		r.info.FirmwareRevision = fw
	}
	if sn, err := b.SerialNumber(); err != nil {
		r.log.WithError(err).Warn("failed to read board serial number")
	} else {
		r.info.SerialNumber = sn
	}
	r.log.WithFields(logrus.Fields{
		"firmware": r.info.FirmwareRevision,
		"serial":   r.info.SerialNumber,
	}).Info("connected to controller")
	return nil
}

func (r *initRun) run(ctx context.Context) {
	for _, a := range lens.Axes() {
		if err := ctx.Err(); err != nil {
			r.err = pkgerrors.Wrap(err, "initialization cancelled")
			return
		}
		axis := r.board.Axis(a)
		if a != lens.Iris {
			axis.SetRespectLimits(r.respectLimits)
		}
		if err := axis.Init(r.cfg.Steps(a), r.cfg.HomeRef(a), r.home); err != nil {
			r.log.WithField("axis", a).WithError(err).Warn("axis failed to initialize")
			r.faults = append(r.faults, AxisFault{Axis: a, Error: err.Error()})
		}
	}

	if err := r.board.Filter().SetState(DefaultFilterPosition); err != nil {
		r.err = pkgerrors.Wrap(err, "failed to initialize filter")
		return
	}

	for _, a := range lens.Axes() {
		applySpeed(r.log, a, r.board.Axis(a), r.speeds[a])
	}

	r.steps = make(map[lens.Axis]int, 3)
	for _, a := range lens.Axes() {
		r.steps[a] = r.board.Axis(a).CurrentStep()
	}
}

func (r *initRun) faulted(a lens.Axis) bool {
	for _, f := range r.faults {
		if f.Axis == a {
			return true
		}
	}
	return false
}
