package geodata

import (
	"encoding/json"
	"math"

	"github.com/twpayne/go-geom"
)

// Derived property keys.
const (
	PropPopDensity = "POP_DENSITY"
	propTotalPop   = "E_TOTPOP"
	propAreaSqMi   = "AREA_SQMI"
)

// Value returns the numeric value of a property for a feature. POP_DENSITY
// is derived as E_TOTPOP / AREA_SQMI; when AREA_SQMI is absent the area is
// computed from the feature geometry. The second return is false for
// missing, null, or non-numeric values.
func Value(f *Feature, prop string) (float64, bool) {
	if prop == PropPopDensity {
		return density(f)
	}
	return numeric(f.Properties[prop])
}

// Materialize writes the derived value of a property into each feature's
// property bag so classifiers that read properties directly can see it.
// Non-derived properties are left alone. Features where the derivation
// fails get an explicit null.
func Materialize(fc *FeatureCollection, prop string) {
	if prop != PropPopDensity {
		return
	}
	for _, f := range fc.Features {
		if v, ok := density(f); ok {
			f.Properties[prop] = v
		} else {
			f.Properties[prop] = nil
		}
	}
}

// MaxValue returns the largest observed value of a property across the
// collection, skipping features with missing data. The second return is
// false when no feature carries the property.
func MaxValue(fc *FeatureCollection, prop string) (float64, bool) {
	max := math.Inf(-1)
	found := false
	for _, f := range fc.Features {
		v, ok := Value(f, prop)
		if !ok {
			continue
		}
		if v > max {
			max = v
		}
		found = true
	}
	if !found {
		return 0, false
	}
	return max, true
}

func density(f *Feature) (float64, bool) {
	pop, ok := numeric(f.Properties[propTotalPop])
	if !ok {
		return 0, false
	}

	area, ok := numeric(f.Properties[propAreaSqMi])
	if !ok || area <= 0 {
		g, err := f.DecodeGeometry()
		if err != nil {
			return 0, false
		}
		area = AreaSquareMiles(g)
	}
	if area <= 0 {
		return 0, false
	}

	return pop / area, true
}

func numeric(raw any) (float64, bool) {
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

const (
	earthRadiusM    = 6_371_008.8
	sqMetersPerSqMi = 2_589_988.110336
)

// AreaSquareMiles computes the approximate area of a polygonal geometry in
// square miles, assuming lon/lat coordinates on a spherical earth.
func AreaSquareMiles(g geom.T) float64 {
	var sqm float64
	switch t := g.(type) {
	case *geom.Polygon:
		sqm = polygonAreaM2(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			sqm += polygonAreaM2(t.Polygon(i))
		}
	default:
		return 0
	}
	return sqm / sqMetersPerSqMi
}

func polygonAreaM2(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return 0
	}
	area := ringAreaM2(p.LinearRing(0))
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= ringAreaM2(p.LinearRing(i))
	}
	if area < 0 {
		return 0
	}
	return area
}

// ringAreaM2 computes the spherical area of a linear ring in square meters
// using the lon/lat shoelace approximation.
func ringAreaM2(ring *geom.LinearRing) float64 {
	coords := ring.Coords()
	if len(coords) < 3 {
		return 0
	}

	var sum float64
	for i := range coords {
		a := coords[i]
		b := coords[(i+1)%len(coords)]
		lon1, lat1 := a[0]*math.Pi/180, a[1]*math.Pi/180
		lon2, lat2 := b[0]*math.Pi/180, b[1]*math.Pi/180
		sum += (lon2 - lon1) * (math.Sin(lat1) + math.Sin(lat2))
	}

	return math.Abs(sum * earthRadiusM * earthRadiusM / 2)
}
