// Package mcr describes the lens motor control board consumed by the session
// layer. The wire protocol lives in the board driver; this package only
// defines the calls the session makes and provides a simulated board.
package mcr

import (
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/mcrlens/lensctl/pkg/lens"
)

var (
	// ErrSpeedOutOfRange is returned by SetMotorSpeed/SetHomingSpeed when the
	// board rejects the value. The previous speed stays in effect.
	ErrSpeedOutOfRange = pkgerrors.New("speed out of range")

	// ErrNotConnected is returned when a board call is made after Close.
	ErrNotConnected = pkgerrors.New("board not connected")
)

// CommPath is the interface the board listens on.
type CommPath string

const (
	USB  CommPath = "USB"
	UART CommPath = "UART"
	I2C  CommPath = "I2C"
)

// ParseCommPath parses a communication path name, case-insensitively.
func ParseCommPath(s string) (CommPath, error) {
	switch p := CommPath(strings.ToUpper(s)); p {
	case USB, UART, I2C:
		return p, nil
	}
	return "", pkgerrors.Errorf("unknown communication path %q (want USB, UART or I2C)", s)
}

// Connector opens a board on a comm port.
type Connector interface {
	Connect(port string) (Board, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(port string) (Board, error)

func (f ConnectorFunc) Connect(port string) (Board, error) {
	return f(port)
}

// Board is a connected motor control board.
type Board interface {
	Axis(a lens.Axis) Axis
	Filter() Filter
	FirmwareRevision() (string, error)
	SerialNumber() (string, error)
	SetCommunicationPath(p CommPath) error
	Close() error
}

// Axis is one stepper motor of the lens.
type Axis interface {
	// Init configures the axis; with move set it homes against the
	// photo-interrupter reference.
	Init(steps, homeRef int, move bool) error
	MoveRel(delta int, correctForBacklash bool) error
	MoveAbs(pos int) error
	CurrentStep() int
	SetRespectLimits(respect bool)
	SetMotorSpeed(pps int) error
	SetHomingSpeed(pps int) error
	Speed() int
	HomingSpeed() int
}

// Filter is the infrared-cut filter switch.
type Filter interface {
	SetState(position int) error
}
