package style

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Classifier assigns fill colors to features by bucketing a numeric property
// into half-open intervals [Classes[i], Classes[i+1]). It is validated at
// construction and safe for concurrent use: Classify never mutates the
// classifier or its inputs.
type Classifier struct {
	Classes    []float64
	Colorscale []Color
	Base       Style
	ColorProp  string
	NoData     Color
}

// NewClassifier builds a Classifier from ascending breakpoints and a parallel
// colorscale. The colorscale must cover every interval implied by the
// breakpoints. An empty noData color defaults to NoDataColor.
func NewClassifier(classes []float64, colorscale []Color, base Style, colorProp string, noData Color) (*Classifier, error) {
	if len(classes) == 0 {
		return nil, eris.New("style: classes must not be empty")
	}
	for i := 1; i < len(classes); i++ {
		if classes[i] <= classes[i-1] {
			return nil, eris.Errorf("style: classes must be strictly ascending (classes[%d]=%v <= classes[%d]=%v)",
				i, classes[i], i-1, classes[i-1])
		}
	}
	if len(colorscale) < len(classes)-1 {
		return nil, eris.Errorf("style: colorscale has %d colors for %d intervals",
			len(colorscale), len(classes)-1)
	}
	for _, c := range colorscale {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if colorProp == "" {
		return nil, eris.New("style: colorProp must not be empty")
	}
	if noData == "" {
		noData = NoDataColor
	}
	if err := noData.Validate(); err != nil {
		return nil, err
	}

	return &Classifier{
		Classes:    classes,
		Colorscale: colorscale,
		Base:       base,
		ColorProp:  colorProp,
		NoData:     noData,
	}, nil
}

// Classify returns the style for a feature given its property bag. The
// returned Style is a fresh value; the caller's properties are never
// modified.
//
// A missing, null, or non-numeric value yields the no-data fill. A value that
// falls outside every interval (below the first breakpoint or at/above the
// last) keeps the base style's fill untouched: the last breakpoint is an
// exclusive upper bound.
func (c *Classifier) Classify(props map[string]any) Style {
	s := c.Base

	v, ok := numericProp(props, c.ColorProp)
	if !ok {
		s.FillColor = c.NoData
		return s
	}

	if i, ok := c.Bucket(v); ok {
		s.FillColor = c.Colorscale[i]
		return s
	}

	zap.L().Debug("style: value outside all class intervals",
		zap.String("prop", c.ColorProp),
		zap.Float64("value", v),
	)
	return s
}

// Bucket returns the index of the interval containing v, scanning intervals
// in ascending order. The second return is false when v falls outside every
// interval.
func (c *Classifier) Bucket(v float64) (int, bool) {
	for i := 0; i+1 < len(c.Classes); i++ {
		if v >= c.Classes[i] && v < c.Classes[i+1] {
			return i, true
		}
	}
	return 0, false
}

// numericProp looks up a property and coerces it to float64. JSON decoding
// yields float64 for numbers, but ingested tables may carry ints or
// json.Number.
func numericProp(props map[string]any, key string) (float64, bool) {
	raw, ok := props[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
