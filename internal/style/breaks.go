package style

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// breakPadding nudges the top breakpoint above the observed maximum so the
// largest value still lands inside the final half-open interval.
const breakPadding = 1.001

// Linspace returns n evenly spaced values from min to max inclusive.
func Linspace(min, max float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{min}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + step*float64(i)
	}
	out[n-1] = max
	return out
}

// BreaksFor computes classification breakpoints for an SVI variable.
// Count variables (E_*) scale to the observed maximum; percentile variables
// (EPL_*, RPL_*, EP_*) are fixed to [0, 1]. One more breakpoint than colors
// is produced so every color owns one interval.
func BreaksFor(variable string, observedMax float64, colors int) ([]float64, error) {
	if colors < 1 {
		return nil, eris.Errorf("style: need at least one color, got %d", colors)
	}

	max := observedMax
	switch {
	case strings.HasPrefix(variable, "EPL_"),
		strings.HasPrefix(variable, "RPL_"),
		strings.HasPrefix(variable, "EP_"):
		max = 1.0
	}
	if max <= 0 {
		return nil, eris.Errorf("style: non-positive maximum %v for %s", max, variable)
	}

	return Linspace(0, max*breakPadding, colors+1), nil
}

// Legend describes a colorbar for a styled layer.
type Legend struct {
	Variable   string   `json:"variable"`
	Classes    int      `json:"classes"`
	Colorscale []Color  `json:"colorscale"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Ticks      []string `json:"ticks"`
	NoData     Color    `json:"noDataColor"`
}

// NewLegend builds the legend for a classifier. Tick labels carry digit
// grouping so population counts stay readable.
func NewLegend(variable string, c *Classifier) Legend {
	p := message.NewPrinter(language.AmericanEnglish)

	ticks := make([]string, len(c.Classes))
	for i, v := range c.Classes {
		if isPercentile(variable) {
			ticks[i] = p.Sprintf("%.2f", v)
		} else {
			ticks[i] = p.Sprintf("%.0f", v)
		}
	}

	return Legend{
		Variable:   variable,
		Classes:    len(c.Classes) - 1,
		Colorscale: c.Colorscale,
		Min:        c.Classes[0],
		Max:        c.Classes[len(c.Classes)-1],
		Ticks:      ticks,
		NoData:     c.NoData,
	}
}

func isPercentile(variable string) bool {
	return strings.HasPrefix(variable, "EPL_") ||
		strings.HasPrefix(variable, "RPL_") ||
		strings.HasPrefix(variable, "EP_")
}
