// Package style classifies feature property values into color buckets for
// choropleth rendering.
package style

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// NoDataColor is the default fill for features with no classification value.
const NoDataColor = Color("#808080")

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Color is a hex color string ("#rgb" or "#rrggbb").
type Color string

// Validate reports whether the color is a well-formed hex color.
func (c Color) Validate() error {
	if !hexColorRe.MatchString(string(c)) {
		return eris.Errorf("style: invalid hex color %q", string(c))
	}
	return nil
}

// Style describes how a feature is drawn. Field names follow the Leaflet
// path options so a styled document can be handed to a Leaflet front end
// unchanged.
type Style struct {
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	Color       Color   `json:"color"`
	DashArray   string  `json:"dashArray,omitempty"`
	FillOpacity float64 `json:"fillOpacity"`
	FillColor   Color   `json:"fillColor,omitempty"`
}

// DefaultBase returns the base layer style: thin white borders over a
// mostly opaque fill.
func DefaultBase() Style {
	return Style{
		Weight:      2,
		Opacity:     0.2,
		Color:       "white",
		DashArray:   "3",
		FillOpacity: 0.7,
	}
}
