package lens

import (
	"sort"

	pkgerrors "github.com/pkg/errors"
)

// ErrConfigurationNotFound is returned when a lens family is not in the catalog.
var ErrConfigurationNotFound = pkgerrors.New("lens configuration not found")

// Axis identifies one motor of the lens.
type Axis string

const (
	Focus Axis = "focus"
	Zoom  Axis = "zoom"
	Iris  Axis = "iris"
)

// Axes returns all axes in initialization order.
func Axes() []Axis {
	return []Axis{Focus, Zoom, Iris}
}

// ParseAxis converts a name to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch Axis(s) {
	case Focus, Zoom, Iris:
		return Axis(s), nil
	}
	return "", pkgerrors.Errorf("unknown axis %q", s)
}

// Configuration is the fixed mechanical configuration of a lens family.
// Values are never mutated after the catalog is built.
type Configuration struct {
	Family       string `json:"family"`
	SerialPrefix string `json:"serialPrefix,omitempty"`
	ZoomSteps    int    `json:"zoomSteps"`
	ZoomHomeRef  int    `json:"zoomHomeRef"`
	FocusSteps   int    `json:"focusSteps"`
	FocusHomeRef int    `json:"focusHomeRef"`
	IrisSteps    int    `json:"irisSteps"`
}

// Steps returns the configured step count of an axis.
func (c Configuration) Steps(a Axis) int {
	switch a {
	case Focus:
		return c.FocusSteps
	case Zoom:
		return c.ZoomSteps
	case Iris:
		return c.IrisSteps
	}
	return 0
}

// HomeRef returns the photo-interrupter reference step of an axis.
// The iris has no photo interrupter and always reports 0.
func (c Configuration) HomeRef(a Axis) int {
	switch a {
	case Focus:
		return c.FocusHomeRef
	case Zoom:
		return c.ZoomHomeRef
	}
	return 0
}

// InBounds reports whether step lies within [0, Steps(a)].
func (c Configuration) InBounds(a Axis, step int) bool {
	return step >= 0 && step <= c.Steps(a)
}

func (c Configuration) validate() error {
	if c.Family == "" {
		return pkgerrors.New("family name is empty")
	}
	for _, a := range Axes() {
		steps := c.Steps(a)
		if steps <= 0 {
			return pkgerrors.Errorf("%s: %s steps must be positive, got %d", c.Family, a, steps)
		}
		if ref := c.HomeRef(a); ref < 0 || ref > steps {
			return pkgerrors.Errorf("%s: %s home reference %d outside [0, %d]", c.Family, a, ref, steps)
		}
	}
	return nil
}

// Catalog is a read-only set of lens configurations keyed by family.
type Catalog struct {
	entries map[string]Configuration
}

// NewCatalog builds a catalog, validating every entry.
func NewCatalog(configs ...Configuration) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Configuration, len(configs))}
	for _, cfg := range configs {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		if _, ok := c.entries[cfg.Family]; ok {
			return nil, pkgerrors.Errorf("duplicate lens family %q", cfg.Family)
		}
		c.entries[cfg.Family] = cfg
	}
	return c, nil
}

// Resolve looks up the configuration of a lens family.
func (c *Catalog) Resolve(family string) (Configuration, error) {
	cfg, ok := c.entries[family]
	if !ok {
		return Configuration{}, pkgerrors.Wrapf(ErrConfigurationNotFound, "family %q", family)
	}
	return cfg, nil
}

// Families returns the sorted family names.
func (c *Catalog) Families() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of families in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}
