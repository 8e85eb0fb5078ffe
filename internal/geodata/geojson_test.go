package geodata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayer = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"GEOID": "08031000100", "E_TOTPOP": 4000, "AREA_SQMI": 2.0, "E_POV150": -999},
			"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
		},
		{
			"type": "Feature",
			"properties": {"GEOID": "08031000200", "E_TOTPOP": 1000, "AREA_SQMI": 4.0, "E_POV150": 250},
			"geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]]]}
		}
	]
}`

func TestParseCleansInvalidValues(t *testing.T) {
	fc, err := Parse([]byte(sampleLayer))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Nil(t, fc.Features[0].Properties["E_POV150"])
	assert.Equal(t, 250.0, fc.Features[1].Properties["E_POV150"])
}

func TestParseRejectsNonCollection(t *testing.T) {
	_, err := Parse([]byte(`{"type": "Feature"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadFallbackDir(t *testing.T) {
	primary := t.TempDir()
	fallback := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(fallback, LayerFilename("co")), []byte(sampleLayer), 0o644))

	fc, err := Load("CO", primary, fallback)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	_, err = Load("TX", primary, fallback)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLayerFilename(t *testing.T) {
	assert.Equal(t, "geo_json_co.json", LayerFilename("CO"))
	assert.Equal(t, "geo_json_ny.json", LayerFilename("ny"))
}

func TestValue(t *testing.T) {
	fc, err := Parse([]byte(sampleLayer))
	require.NoError(t, err)

	v, ok := Value(fc.Features[0], "E_TOTPOP")
	require.True(t, ok)
	assert.InDelta(t, 4000, v, 1e-9)

	// Cleaned sentinel reads as missing.
	_, ok = Value(fc.Features[0], "E_POV150")
	assert.False(t, ok)

	_, ok = Value(fc.Features[0], "NOT_A_PROP")
	assert.False(t, ok)
}

func TestValueDerivedDensity(t *testing.T) {
	fc, err := Parse([]byte(sampleLayer))
	require.NoError(t, err)

	v, ok := Value(fc.Features[0], PropPopDensity)
	require.True(t, ok)
	assert.InDelta(t, 2000, v, 1e-9)

	v, ok = Value(fc.Features[1], PropPopDensity)
	require.True(t, ok)
	assert.InDelta(t, 250, v, 1e-9)
}

func TestValueDensityFromGeometry(t *testing.T) {
	// No AREA_SQMI property: the area comes from the polygon, a one-degree
	// square on the equator (~4,770 sq mi).
	fc, err := Parse([]byte(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"E_TOTPOP": 4770},
			"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
		}]
	}`))
	require.NoError(t, err)

	v, ok := Value(fc.Features[0], PropPopDensity)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 0.05)
}

func TestMaxValue(t *testing.T) {
	fc, err := Parse([]byte(sampleLayer))
	require.NoError(t, err)

	max, ok := MaxValue(fc, "E_TOTPOP")
	require.True(t, ok)
	assert.InDelta(t, 4000, max, 1e-9)

	// Only one feature has usable data after cleaning.
	max, ok = MaxValue(fc, "E_POV150")
	require.True(t, ok)
	assert.InDelta(t, 250, max, 1e-9)

	_, ok = MaxValue(fc, "NOT_A_PROP")
	assert.False(t, ok)
}

func TestDecodeGeometry(t *testing.T) {
	fc, err := Parse([]byte(sampleLayer))
	require.NoError(t, err)

	g, err := fc.Features[0].DecodeGeometry()
	require.NoError(t, err)
	assert.InDelta(t, 4774, AreaSquareMiles(g), 60)

	empty := &Feature{}
	_, err = empty.DecodeGeometry()
	assert.Error(t, err)
}
