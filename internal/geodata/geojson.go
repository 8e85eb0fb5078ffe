// Package geodata loads and models the per-state GeoJSON tract layers that
// choropleth styling operates on.
package geodata

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// InvalidValue is the CDC sentinel for missing SVI data.
const InvalidValue = -999

// Properties is a feature's key-value property bag.
type Properties map[string]any

// Feature is a single renderable geographic entity. Geometry is kept as raw
// JSON so styling passes don't pay for decoding; DecodeGeometry parses it on
// demand.
type Feature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Properties Properties      `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// DecodeGeometry parses the feature's geometry into a go-geom geometry.
func (f *Feature) DecodeGeometry() (geom.T, error) {
	if len(f.Geometry) == 0 {
		return nil, eris.New("geodata: feature has no geometry")
	}
	var g geom.T
	if err := geojson.Unmarshal(f.Geometry, &g); err != nil {
		return nil, eris.Wrap(err, "geodata: decode geometry")
	}
	return g, nil
}

// CleanInvalidValues replaces the -999 sentinel in every feature's
// properties with null so downstream classification takes the no-data
// branch.
func CleanInvalidValues(fc *FeatureCollection) {
	for _, f := range fc.Features {
		for key, raw := range f.Properties {
			if v, ok := raw.(float64); ok && v == InvalidValue {
				f.Properties[key] = nil
			}
		}
	}
}

// Parse decodes a GeoJSON document and cleans invalid values.
func Parse(data []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geodata: parse GeoJSON")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("geodata: expected FeatureCollection, got %q", fc.Type)
	}
	CleanInvalidValues(&fc)
	return &fc, nil
}
