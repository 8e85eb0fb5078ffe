// Package render applies a classifier across a GeoJSON layer and caches the
// styled documents it produces.
package render

import (
	"context"
	"encoding/json"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/style"
)

// StyledFeature is a feature with its computed style attached.
type StyledFeature struct {
	Type       string             `json:"type"`
	ID         any                `json:"id,omitempty"`
	Properties geodata.Properties `json:"properties"`
	Geometry   json.RawMessage    `json:"geometry"`
	Style      style.Style        `json:"style"`
}

// StyledLayer is the styled GeoJSON document served to map front ends.
type StyledLayer struct {
	Type     string          `json:"type"`
	State    string          `json:"state"`
	Variable string          `json:"variable"`
	Legend   style.Legend    `json:"legend"`
	Features []StyledFeature `json:"features"`
}

// StyleLayer classifies every feature in the collection and returns the
// styled document. Features are styled in parallel across workers; this is
// safe because classification is pure and each worker writes disjoint
// output slots.
func StyleLayer(ctx context.Context, state string, fc *geodata.FeatureCollection, c *style.Classifier) (*StyledLayer, error) {
	geodata.Materialize(fc, c.ColorProp)

	out := &StyledLayer{
		Type:     "FeatureCollection",
		State:    state,
		Variable: c.ColorProp,
		Legend:   style.NewLegend(c.ColorProp, c),
		Features: make([]StyledFeature, len(fc.Features)),
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(fc.Features) {
		workers = len(fc.Features)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(fc.Features) + workers - 1) / workers
	for start := 0; start < len(fc.Features); start += chunk {
		end := start + chunk
		if end > len(fc.Features) {
			end = len(fc.Features)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				f := fc.Features[i]
				out.Features[i] = StyledFeature{
					Type:       f.Type,
					ID:         f.ID,
					Properties: f.Properties,
					Geometry:   f.Geometry,
					Style:      c.Classify(f.Properties),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// ClassifierFor derives a classifier for a variable from the observed values
// in a layer, using the generated breakpoints and the given palette.
func ClassifierFor(fc *geodata.FeatureCollection, variable string, colors []style.Color, base style.Style, noData style.Color) (*style.Classifier, error) {
	observedMax, _ := geodata.MaxValue(fc, variable)
	breaks, err := style.BreaksFor(variable, observedMax, len(colors))
	if err != nil {
		return nil, err
	}
	return style.NewClassifier(breaks, colors, base, variable, noData)
}
