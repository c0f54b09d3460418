package config

import (
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
)

// Config holds the operator settings that survive daemon restarts.
type Config interface {
	ComPort() string
	LensFamily() string
	Speed(a lens.Axis) int
	HomingSpeed(a lens.Axis) int
	RespectLimits() bool
	CorrectBacklash() bool
	RelativeWhenUnknown() bool
	LensCatalog() string
	PositionWatch() string
	AllowNonRootAccess() bool

	SetComPort(string)
	SetLensFamily(string)
	SetSpeed(a lens.Axis, pps int)
	SetHomingSpeed(a lens.Axis, pps int)
	SetRespectLimits(bool)
	SetCorrectBacklash(bool)
	SetRelativeWhenUnknown(bool)
	SetLensCatalog(string)
	SetPositionWatch(string)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
