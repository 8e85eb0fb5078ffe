// Package tracts imports Census TIGER tract shapefiles and writes the
// per-state GeoJSON layers the styling service reads.
package tracts

import (
	"encoding/json"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// EncodeGeoJSON converts a shapefile polygon to GeoJSON MultiPolygon bytes.
// Returns nil, nil for unsupported or empty shapes.
func EncodeGeoJSON(shape shp.Shape) (json.RawMessage, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok {
		return nil, nil
	}

	mp := polygonToMultiPolygon(p)
	if mp == nil {
		return nil, nil
	}

	data, err := geojson.Marshal(mp)
	if err != nil {
		return nil, eris.Wrap(err, "tracts: encode GeoJSON")
	}
	return data, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Each shapefile part becomes its own polygon ring.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("tracts: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("tracts: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
