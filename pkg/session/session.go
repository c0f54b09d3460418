// Package session coordinates one controller session: it sequences
// initialization, owns the readiness state machine and applies move policy.
//
// All hardware access goes through a Coordinator. Operations that talk to the
// board run one at a time; a port or family change invalidates the session
// immediately, even while a move or initialization is in flight, and the late
// result of that operation is discarded.
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/status"
)

// Store persists operator settings. config.Config satisfies it.
type Store interface {
	Speed(a lens.Axis) int
	HomingSpeed(a lens.Axis) int
	SetSpeed(a lens.Axis, pps int)
	SetHomingSpeed(a lens.Axis, pps int)
	SetComPort(port string)
	SetLensFamily(family string)
	SetRespectLimits(respect bool)
	SetCorrectBacklash(correct bool)
	SetRelativeWhenUnknown(allow bool)
	Save() error
}

// Observer receives session notifications. Observers are called synchronously
// with the session lock held and must not call back into the Coordinator.
type Observer interface {
	OnStatusChanged(from, to status.Status)
	OnAxisPositionChanged(axis lens.Axis, step int)
	OnAbsoluteMovesEligibilityChanged(enabled bool)
}

// Policy is the move policy attached to the session.
type Policy struct {
	RespectLimits        bool `json:"respectLimits"`
	CorrectBacklash      bool `json:"correctBacklash"`
	AbsoluteMovesEnabled bool `json:"absoluteMovesEnabled"`
	RelativeWhenUnknown  bool `json:"relativeWhenUnknown"`
}

// AxisState is the runtime position of one axis. Step is only trusted when Homed.
type AxisState struct {
	Step  int  `json:"step"`
	Homed bool `json:"homed"`
}

// BoardInfo is read from the board once after connecting.
type BoardInfo struct {
	FirmwareRevision string `json:"firmwareRevision,omitempty"`
	SerialNumber     string `json:"serialNumber,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Connector mcr.Connector
	Catalog   *lens.Catalog

	// Store may be nil, in which case nothing is persisted.
	Store Store

	Port   string
	Family string

	RespectLimits       bool
	CorrectBacklash     bool
	RelativeWhenUnknown bool
}

// Coordinator owns the hardware connection and all session state.
type Coordinator struct {
	connector mcr.Connector
	catalog   *lens.Catalog
	store     Store

	mu      sync.Mutex
	closed  bool
	busy    bool
	machine *status.Machine

	board    mcr.Board
	detached mcr.Board

	port   string
	family string
	config *lens.Configuration

	axes   map[lens.Axis]AxisState
	policy Policy
	info   BoardInfo
	filter int
	faults []AxisFault

	// homeTrusted is set when the last initialization homed every axis
	// without a fault and nothing has drifted since.
	homeTrusted bool

	// generation is bumped on every invalidation.
	generation uint64

	observers  map[int]Observer
	observerID int
}

// New creates a Coordinator in NotInitialized. No hardware is touched.
func New(opts Options) *Coordinator {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = lens.Default()
	}
	family := opts.Family
	if family == "" {
		family = lens.DefaultFamily
	}
	c := &Coordinator{
		connector: opts.Connector,
		catalog:   catalog,
		store:     opts.Store,
		machine:   status.NewMachine(),
		port:      opts.Port,
		family:    family,
		axes:      newAxes(),
		policy: Policy{
			RespectLimits:       opts.RespectLimits,
			CorrectBacklash:     opts.CorrectBacklash,
			RelativeWhenUnknown: opts.RelativeWhenUnknown,
		},
		observers: make(map[int]Observer),
	}
	c.machine.OnTransition = c.statusChanged
	return c
}

func newAxes() map[lens.Axis]AxisState {
	m := make(map[lens.Axis]AxisState, 3)
	for _, a := range lens.Axes() {
		m[a] = AxisState{}
	}
	return m
}

// Teardown closes the hardware connection and drops all observers.
// The Coordinator cannot be used afterwards.
func (c *Coordinator) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.generation++
	c.observers = make(map[int]Observer)

	var err error
	if c.board != nil && !c.busy {
		err = c.board.Close()
		c.board = nil
	}
	// An in-flight operation closes the board when it ends.
	c.dropBoard()
	logrus.Debug("session torn down")
	return err
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Coordinator) Subscribe(o Observer) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observerID++
	id := c.observerID
	c.observers[id] = o
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Status     status.Status           `json:"status"`
	Label      string                  `json:"label"`
	Color      string                  `json:"color"`
	Port       string                  `json:"port"`
	Family     string                  `json:"family"`
	Connected  bool                    `json:"connected"`
	Busy       bool                    `json:"busy"`
	Policy     Policy                  `json:"policy"`
	Axes       map[lens.Axis]AxisState `json:"axes"`
	Config     *lens.Configuration     `json:"config,omitempty"`
	Board      BoardInfo               `json:"board"`
	Filter     int                     `json:"filter,omitempty"`
	Faults     []AxisFault             `json:"faults,omitempty"`
	Generation uint64                  `json:"generation"`
}

// Snapshot returns the current session state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() Snapshot {
	st := c.machine.Current()
	axes := make(map[lens.Axis]AxisState, len(c.axes))
	for k, v := range c.axes {
		axes[k] = v
	}
	var cfg *lens.Configuration
	if c.config != nil {
		cp := *c.config
		cfg = &cp
	}
	return Snapshot{
		Status:     st,
		Label:      st.Label(),
		Color:      st.Color(),
		Port:       c.port,
		Family:     c.family,
		Connected:  c.board != nil,
		Busy:       c.busy,
		Policy:     c.policy,
		Axes:       axes,
		Config:     cfg,
		Board:      c.info,
		Filter:     c.filter,
		Faults:     append([]AxisFault(nil), c.faults...),
		Generation: c.generation,
	}
}

// Status returns the current status.
func (c *Coordinator) Status() status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

func (c *Coordinator) statusChanged(from, to status.Status) {
	logrus.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"port":   c.port,
		"family": c.family,
	}).Info("status changed")
	for _, o := range c.observers {
		o.OnStatusChanged(from, to)
	}
}

func (c *Coordinator) setAxis(a lens.Axis, st AxisState) {
	prev := c.axes[a]
	c.axes[a] = st
	if prev.Step == st.Step {
		return
	}
	logrus.WithFields(logrus.Fields{"axis": a, "step": st.Step}).Debug("axis position changed")
	for _, o := range c.observers {
		o.OnAxisPositionChanged(a, st.Step)
	}
}

// refreshAbsoluteMoves derives absolute move eligibility from the last
// initialization and the soft limit policy.
func (c *Coordinator) refreshAbsoluteMoves() {
	c.setAbsoluteMoves(c.homeTrusted && c.policy.RespectLimits)
}

// distrustHome drops the homed reference after a position drift.
func (c *Coordinator) distrustHome() {
	c.homeTrusted = false
	c.refreshAbsoluteMoves()
}

func (c *Coordinator) setAbsoluteMoves(enabled bool) {
	if c.policy.AbsoluteMovesEnabled == enabled {
		return
	}
	c.policy.AbsoluteMovesEnabled = enabled
	logrus.WithField("enabled", enabled).Debug("absolute move eligibility changed")
	for _, o := range c.observers {
		o.OnAbsoluteMovesEligibilityChanged(enabled)
	}
}

// transition moves the machine, treating a same-status request as done.
func (c *Coordinator) transition(to status.Status) {
	if c.machine.Current() == to {
		return
	}
	if err := c.machine.Transition(to); err != nil {
		// Only reachable through a programming error in this package.
		logrus.WithError(err).Error("rejected status transition")
	}
}

// invalidate discards the session. Must be called with mu held.
func (c *Coordinator) invalidate(disconnect bool, reason string) {
	c.generation++
	logrus.WithFields(logrus.Fields{
		"reason":     reason,
		"generation": c.generation,
	}).Info("session invalidated")

	c.machine.Reset()
	c.homeTrusted = false
	c.setAbsoluteMoves(false)
	for _, a := range lens.Axes() {
		c.setAxis(a, AxisState{})
	}
	c.config = nil
	c.faults = nil
	c.filter = 0
	if disconnect {
		c.dropBoard()
	}
}

// fail moves the session to Error and drops the connection. Must be called
// with mu held.
func (c *Coordinator) fail(err error) {
	logrus.WithError(err).Error("session failed")
	c.transition(status.Error)
	c.homeTrusted = false
	c.setAbsoluteMoves(false)
	c.dropBoard()
}

// dropBoard closes the connection, or defers the close to the in-flight
// operation when the board is in use.
func (c *Coordinator) dropBoard() {
	if c.board == nil {
		return
	}
	b := c.board
	c.board = nil
	c.info = BoardInfo{}
	if c.busy {
		c.detached = b
		return
	}
	if err := b.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close board")
	}
}

// ready reports whether a hardware operation may start. Must be called with
// mu held.
func (c *Coordinator) ready() error {
	if c.closed {
		return ErrClosed
	}
	if c.busy {
		return ErrBusy
	}
	return nil
}

// begin marks a hardware operation in flight. Must be called with mu held.
func (c *Coordinator) begin() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.busy = true
	return nil
}

// end clears the in-flight mark and closes a board detached meanwhile.
// Must be called with mu held.
func (c *Coordinator) end() {
	c.busy = false
	if c.detached != nil {
		if err := c.detached.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close detached board")
		}
		c.detached = nil
	}
}

func (c *Coordinator) persist(update func(Store)) {
	if c.store == nil {
		return
	}
	update(c.store)
	if err := c.store.Save(); err != nil {
		logrus.WithError(err).Warn("failed to save settings")
	}
}
