package style

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultPaletteName selects the built-in sequential palette.
const DefaultPaletteName = "ylorrd"

// builtinPalettes are always available. ylorrd is the 8-class ColorBrewer
// YlOrRd ramp used by the original choropleth layers.
var builtinPalettes = map[string][]Color{
	"ylorrd": {
		"#FFEDA0", "#FED976", "#FEB24C", "#FD8D3C",
		"#FC4E2A", "#E31A1C", "#BD0026", "#800026",
	},
	"greys": {
		"#F7F7F7", "#D9D9D9", "#BDBDBD", "#969696",
		"#737373", "#525252", "#252525",
	},
}

// PaletteSet resolves palette names to color ramps.
type PaletteSet struct {
	palettes map[string][]Color
}

// NewPaletteSet returns a set containing only the built-in palettes.
func NewPaletteSet() *PaletteSet {
	m := make(map[string][]Color, len(builtinPalettes))
	for name, colors := range builtinPalettes {
		m[name] = colors
	}
	return &PaletteSet{palettes: m}
}

// LoadPalettes reads additional named palettes from a YAML file mapping
// palette names to color lists. File entries override built-ins of the same
// name.
func (ps *PaletteSet) LoadPalettes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "style: read palette file %s", path)
	}

	var parsed map[string][]Color
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return eris.Wrapf(err, "style: parse palette file %s", path)
	}

	for name, colors := range parsed {
		if len(colors) == 0 {
			return eris.Errorf("style: palette %q is empty", name)
		}
		for _, c := range colors {
			if err := c.Validate(); err != nil {
				return eris.Wrapf(err, "style: palette %q", name)
			}
		}
		ps.palettes[name] = colors
	}
	return nil
}

// Get returns the named palette.
func (ps *PaletteSet) Get(name string) ([]Color, error) {
	colors, ok := ps.palettes[name]
	if !ok {
		return nil, eris.Errorf("style: unknown palette %q", name)
	}
	return colors, nil
}

// Names lists available palettes in sorted order.
func (ps *PaletteSet) Names() []string {
	names := make([]string, 0, len(ps.palettes))
	for name := range ps.palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
