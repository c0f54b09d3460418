package mcr

import (
	"fmt"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
)

const (
	simMinSpeed = 10
	simMaxSpeed = 2000
)

var simDefaultSpeeds = map[lens.Axis]int{
	lens.Focus: 1000,
	lens.Zoom:  1000,
	lens.Iris:  100,
}

// SimOptions tunes a simulated board.
type SimOptions struct {
	// Ports lists the ports the simulated board answers on. Empty accepts any port.
	Ports []string
	// HomeFaults makes homing fail on the given axes.
	HomeFaults map[lens.Axis]error
	// Firmware and Serial are reported by the board.
	Firmware string
	Serial   string
}

// NewSimConnector returns a Connector backed by simulated boards.
func NewSimConnector(opts SimOptions) Connector {
	return ConnectorFunc(func(port string) (Board, error) {
		if len(opts.Ports) > 0 {
			found := false
			for _, p := range opts.Ports {
				if p == port {
					found = true
					break
				}
			}
			if !found {
				return nil, pkgerrors.Errorf("no controller answering on %s", port)
			}
		}
		logrus.WithField("port", port).Debug("simulated board connected")
		return NewSimBoard(opts), nil
	})
}

// SimBoard is an in-memory stand-in for a motor control board.
type SimBoard struct {
	mu       sync.Mutex
	closed   bool
	path     CommPath
	filter   int
	firmware string
	serial   string
	axes     map[lens.Axis]*SimAxis
}

// NewSimBoard creates a simulated board.
func NewSimBoard(opts SimOptions) *SimBoard {
	b := &SimBoard{
		path:     USB,
		firmware: opts.Firmware,
		serial:   opts.Serial,
		axes:     make(map[lens.Axis]*SimAxis),
	}
	if b.firmware == "" {
		b.firmware = "5.3.1.0.0"
	}
	if b.serial == "" {
		b.serial = "SIM0001"
	}
	for _, a := range lens.Axes() {
		b.axes[a] = &SimAxis{
			board:       b,
			name:        a,
			speed:       simDefaultSpeeds[a],
			homingSpeed: simDefaultSpeeds[a],
			homeFault:   opts.HomeFaults[a],
		}
	}
	return b
}

func (b *SimBoard) Axis(a lens.Axis) Axis {
	return b.axes[a]
}

// SimAxis returns the concrete simulated axis, for inspection.
func (b *SimBoard) SimAxis(a lens.Axis) *SimAxis {
	return b.axes[a]
}

func (b *SimBoard) Filter() Filter {
	return simFilter{b}
}

// FilterPosition returns the last filter position set.
func (b *SimBoard) FilterPosition() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// CommPath returns the communication path the board was switched to.
func (b *SimBoard) CommPath() CommPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

func (b *SimBoard) FirmwareRevision() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.firmware, nil
}

func (b *SimBoard) SerialNumber() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	return b.serial, nil
}

func (b *SimBoard) SetCommunicationPath(p CommPath) error {
	if err := b.check(); err != nil {
		return err
	}
	logrus.WithField("path", p).Trace("simulated board switching communication path")
	b.mu.Lock()
	b.path = p
	b.mu.Unlock()
	return nil
}

func (b *SimBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *SimBoard) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *SimBoard) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNotConnected
	}
	return nil
}

type simFilter struct {
	b *SimBoard
}

func (f simFilter) SetState(position int) error {
	if err := f.b.check(); err != nil {
		return err
	}
	if position != 1 && position != 2 {
		return pkgerrors.Errorf("filter position %d out of range", position)
	}
	f.b.mu.Lock()
	f.b.filter = position
	f.b.mu.Unlock()
	return nil
}

// SimAxis models one motor. With limits respected, moves are clamped to
// [0, steps]; otherwise the step counter runs freely.
type SimAxis struct {
	board *SimBoard
	name  lens.Axis

	mu            sync.Mutex
	steps         int
	homeRef       int
	position      int
	homed         bool
	respectLimits bool
	speed         int
	homingSpeed   int
	homeFault     error
	lastBacklash  bool
}

func (a *SimAxis) log() *logrus.Entry {
	return logrus.WithField("axis", a.name)
}

func (a *SimAxis) Init(steps, homeRef int, move bool) error {
	if err := a.board.check(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.steps = steps
	a.homeRef = homeRef
	a.homed = false
	a.log().WithFields(logrus.Fields{
		"steps":   steps,
		"homeRef": homeRef,
		"home":    move,
	}).Trace("simulated axis init")

	if !move {
		return nil
	}
	if a.homeFault != nil {
		return pkgerrors.Wrapf(a.homeFault, "%s homing failed", a.name)
	}
	a.position = homeRef
	a.homed = true
	return nil
}

func (a *SimAxis) MoveRel(delta int, correctForBacklash bool) error {
	if err := a.board.check(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastBacklash = correctForBacklash
	a.position = a.clamp(a.position + delta)
	a.log().WithFields(logrus.Fields{
		"delta":    delta,
		"backlash": correctForBacklash,
		"step":     a.position,
	}).Trace("simulated relative move")
	return nil
}

func (a *SimAxis) MoveAbs(pos int) error {
	if err := a.board.check(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.position = a.clamp(pos)
	a.log().WithField("step", a.position).Trace("simulated absolute move")
	return nil
}

func (a *SimAxis) clamp(pos int) int {
	if !a.respectLimits {
		return pos
	}
	if pos < 0 {
		return 0
	}
	if pos > a.steps {
		return a.steps
	}
	return pos
}

func (a *SimAxis) CurrentStep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// SetPosition overrides the step counter, to simulate lost steps.
func (a *SimAxis) SetPosition(pos int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = pos
}

// LastBacklash reports the backlash flag of the last relative move.
func (a *SimAxis) LastBacklash() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastBacklash
}

func (a *SimAxis) SetRespectLimits(respect bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.respectLimits = respect
}

func (a *SimAxis) SetMotorSpeed(pps int) error {
	if pps < simMinSpeed || pps > simMaxSpeed {
		return pkgerrors.Wrap(ErrSpeedOutOfRange, fmt.Sprintf("%s speed %d", a.name, pps))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speed = pps
	return nil
}

func (a *SimAxis) SetHomingSpeed(pps int) error {
	if pps < simMinSpeed || pps > simMaxSpeed {
		return pkgerrors.Wrap(ErrSpeedOutOfRange, fmt.Sprintf("%s homing speed %d", a.name, pps))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.homingSpeed = pps
	return nil
}

func (a *SimAxis) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speed
}

func (a *SimAxis) HomingSpeed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.homingSpeed
}
