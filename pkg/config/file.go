package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ComPort:             ptr.To(""),
		LastLensFamily:      ptr.To(lens.DefaultFamily),
		FocusSpeed:          ptr.To(1000),
		ZoomSpeed:           ptr.To(1000),
		IrisSpeed:           ptr.To(100),
		RespectLimits:       ptr.To(true),
		CorrectBacklash:     ptr.To(true),
		RelativeWhenUnknown: ptr.To(true),
		LensCatalog:         ptr.To(""),
		PositionWatch:       ptr.To("@every 30s"),
		AllowNonRootAccess:  ptr.To(false),
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file. Unset keys fall back to defaults.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// RawFileConfig is the on-disk layout. Homing speeds have no default; zero
// leaves the driver's homing speed untouched.
type RawFileConfig struct {
	ComPort             *string `json:"comPort,omitempty"`
	LastLensFamily      *string `json:"lastLensFamily,omitempty"`
	FocusSpeed          *int    `json:"focusSpeed,omitempty"`
	ZoomSpeed           *int    `json:"zoomSpeed,omitempty"`
	IrisSpeed           *int    `json:"irisSpeed,omitempty"`
	FocusHomingSpeed    *int    `json:"focusHomingSpeed,omitempty"`
	ZoomHomingSpeed     *int    `json:"zoomHomingSpeed,omitempty"`
	IrisHomingSpeed     *int    `json:"irisHomingSpeed,omitempty"`
	RespectLimits       *bool   `json:"respectLimits,omitempty"`
	CorrectBacklash     *bool   `json:"correctBacklash,omitempty"`
	RelativeWhenUnknown *bool   `json:"relativeWhenUnknown,omitempty"`
	LensCatalog         *string `json:"lensCatalog,omitempty"`
	PositionWatch       *string `json:"positionWatch,omitempty"`
	AllowNonRootAccess  *bool   `json:"allowNonRootAccess,omitempty"`
}

func (r *RawFileConfig) speed(a lens.Axis) **int {
	switch a {
	case lens.Focus:
		return &r.FocusSpeed
	case lens.Zoom:
		return &r.ZoomSpeed
	case lens.Iris:
		return &r.IrisSpeed
	}
	return nil
}

func (r *RawFileConfig) homingSpeed(a lens.Axis) **int {
	switch a {
	case lens.Focus:
		return &r.FocusHomingSpeed
	case lens.Zoom:
		return &r.ZoomHomingSpeed
	case lens.Iris:
		return &r.IrisHomingSpeed
	}
	return nil
}

func (f *File) read() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) ComPort() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().ComPort, *defaultFileConfig.ComPort)
}

func (f *File) LensFamily() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	family := ptr.Deref(f.read().LastLensFamily, "")
	if family == "" {
		return *defaultFileConfig.LastLensFamily
	}
	return family
}

func (f *File) Speed(a lens.Axis) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p := f.read().speed(a)
	if p == nil {
		return 0
	}
	return ptr.Deref(*p, *(*defaultFileConfig.speed(a)))
}

func (f *File) HomingSpeed(a lens.Axis) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p := f.read().homingSpeed(a)
	if p == nil {
		return 0
	}
	return ptr.Deref(*p, 0)
}

func (f *File) RespectLimits() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().RespectLimits, *defaultFileConfig.RespectLimits)
}

func (f *File) CorrectBacklash() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().CorrectBacklash, *defaultFileConfig.CorrectBacklash)
}

func (f *File) RelativeWhenUnknown() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().RelativeWhenUnknown, *defaultFileConfig.RelativeWhenUnknown)
}

func (f *File) LensCatalog() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().LensCatalog, *defaultFileConfig.LensCatalog)
}

// PositionWatch is the cron expression of the position check. An explicit
// empty string disables it.
func (f *File) PositionWatch() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().PositionWatch, *defaultFileConfig.PositionWatch)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.read().AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetComPort(port string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().ComPort = &port
}

func (f *File) SetLensFamily(family string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().LastLensFamily = &family
}

func (f *File) SetSpeed(a lens.Axis, pps int) {
	if pps < 0 {
		panic("speed must not be negative")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.read().speed(a); p != nil {
		*p = &pps
	}
}

func (f *File) SetHomingSpeed(a lens.Axis, pps int) {
	if pps < 0 {
		panic("homing speed must not be negative")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.read().homingSpeed(a); p != nil {
		*p = &pps
	}
}

func (f *File) SetRespectLimits(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().RespectLimits = &b
}

func (f *File) SetCorrectBacklash(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().CorrectBacklash = &b
}

func (f *File) SetRelativeWhenUnknown(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().RelativeWhenUnknown = &b
}

func (f *File) SetLensCatalog(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().LensCatalog = &path
}

func (f *File) SetPositionWatch(expr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().PositionWatch = &expr
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read().AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"comPort":             f.ComPort(),
		"lensFamily":          f.LensFamily(),
		"focusSpeed":          f.Speed(lens.Focus),
		"zoomSpeed":           f.Speed(lens.Zoom),
		"irisSpeed":           f.Speed(lens.Iris),
		"respectLimits":       f.RespectLimits(),
		"correctBacklash":     f.CorrectBacklash(),
		"relativeWhenUnknown": f.RelativeWhenUnknown(),
		"lensCatalog":         f.LensCatalog(),
		"positionWatch":       f.PositionWatch(),
		"allowNonRootAccess":  f.AllowNonRootAccess(),
	}
}

// NewRawFileConfigFromConfig returns the effective configuration of c with
// defaults filled in.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	r := &RawFileConfig{
		ComPort:             ptr.To(c.ComPort()),
		LastLensFamily:      ptr.To(c.LensFamily()),
		RespectLimits:       ptr.To(c.RespectLimits()),
		CorrectBacklash:     ptr.To(c.CorrectBacklash()),
		RelativeWhenUnknown: ptr.To(c.RelativeWhenUnknown()),
		LensCatalog:         ptr.To(c.LensCatalog()),
		PositionWatch:       ptr.To(c.PositionWatch()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
	}
	for _, a := range lens.Axes() {
		*r.speed(a) = ptr.To(c.Speed(a))
		if hs := c.HomingSpeed(a); hs > 0 {
			*r.homingSpeed(a) = ptr.To(hs)
		}
	}

	return r, nil
}
