package lens

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultFamily is selected when no family has been used before.
const DefaultFamily = "TL1250P N#"

var builtin = []Configuration{
	{Family: "TL1250P N#", ZoomSteps: 3227, ZoomHomeRef: 3119, FocusSteps: 8390, FocusHomeRef: 7959, IrisSteps: 75},
	{Family: "TL1250P R#", ZoomSteps: 3256, ZoomHomeRef: 3147, FocusSteps: 8466, FocusHomeRef: 8031, IrisSteps: 75},
	{Family: "TL936P R#", ZoomSteps: 2994, ZoomHomeRef: 2958, FocusSteps: 5180, FocusHomeRef: 5128, IrisSteps: 75},
	{Family: "TL410P R#", ZoomSteps: 4073, ZoomHomeRef: 154, FocusSteps: 9353, FocusHomeRef: 8652, IrisSteps: 75},
	{Family: "TL410P N#", ZoomSteps: 4017, ZoomHomeRef: 136, FocusSteps: 9269, FocusHomeRef: 8574, IrisSteps: 75},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

// rawEntry mirrors one entry of a limits file.
type rawEntry struct {
	Fam        string `yaml:"fam"`
	ZoomSteps  int    `yaml:"zoomSteps"`
	ZoomPI     int    `yaml:"zoomPI"`
	FocusSteps int    `yaml:"focusSteps"`
	FocusPI    int    `yaml:"focusPI"`
	IrisSteps  int    `yaml:"irisSteps"`
}

// ParseCatalog parses a YAML (or JSON) limits document of the form
//
//	TL1250P N#: {fam: TW90, zoomSteps: 3227, zoomPI: 3119, focusSteps: 8390, focusPI: 7959, irisSteps: 75}
func ParseCatalog(b []byte) (*Catalog, error) {
	raw := map[string]rawEntry{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal lens catalog")
	}
	if len(raw) == 0 {
		return nil, pkgerrors.New("lens catalog is empty")
	}

	configs := make([]Configuration, 0, len(raw))
	for name, e := range raw {
		configs = append(configs, Configuration{
			Family:       name,
			SerialPrefix: e.Fam,
			ZoomSteps:    e.ZoomSteps,
			ZoomHomeRef:  e.ZoomPI,
			FocusSteps:   e.FocusSteps,
			FocusHomeRef: e.FocusPI,
			IrisSteps:    e.IrisSteps,
		})
	}
	return NewCatalog(configs...)
}

// LoadCatalog reads a catalog file. An empty path returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read lens catalog %s", path)
	}

	c, err := ParseCatalog(b)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid lens catalog %s", path)
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"families": c.Len(),
	}).Info("lens catalog loaded")

	return c, nil
}
