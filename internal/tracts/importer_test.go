package tracts

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/food-access/svimap/internal/geodata"
)

func squareTract(x, y float64) *shp.Polygon {
	return &shp.Polygon{
		Box:       shp.Box{MinX: x, MinY: y, MaxX: x + 1, MaxY: y + 1},
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: x, Y: y},
			{X: x, Y: y + 1},
			{X: x + 1, Y: y + 1},
			{X: x + 1, Y: y},
			{X: x, Y: y},
		},
	}
}

// writeTractShapefile builds a minimal TIGER-shaped tract shapefile.
func writeTractShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tl_2024_08_tract.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	fields := []shp.Field{
		shp.StringField("GEOID", 20),
		shp.StringField("NAMELSAD", 40),
		shp.StringField("ALAND", 20),
	}
	require.NoError(t, w.SetFields(fields))

	rows := []struct {
		geoid, name, aland string
		poly               *shp.Polygon
	}{
		{"08031000100", "Census Tract 1", "5179976220", squareTract(-105, 39)},
		{"08031000200", "Census Tract 2", "2589988110", squareTract(-104, 39)},
	}
	for _, row := range rows {
		n := w.Write(row.poly)
		require.NoError(t, w.WriteAttribute(int(n), 0, row.geoid))
		require.NoError(t, w.WriteAttribute(int(n), 1, row.name))
		require.NoError(t, w.WriteAttribute(int(n), 2, row.aland))
	}
	w.Close()
	// go-shp v0.1.1's Writer names the attribute file "<base>dbf" (missing
	// the dot) while its Reader opens "<base>.dbf"; rename so Open finds it.
	base := path[:len(path)-len(".shp")]
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestReadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeTractShapefile(t, dir)

	fc, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, "08031000100", f.Properties["GEOID"])
	assert.Equal(t, "Census Tract 1", f.Properties["NAME"])
	assert.InDelta(t, 2000.0, f.Properties["AREA_SQMI"].(float64), 1.0)
	assert.NotEmpty(t, f.Geometry)
}

func TestImportState(t *testing.T) {
	shpDir := t.TempDir()
	writeTractShapefile(t, shpDir)

	// Zip the shapefile parts the way TIGER archives ship them.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries, err := os.ReadDir(shpDir)
	require.NoError(t, err)
	for _, e := range entries {
		f, err := os.Open(filepath.Join(shpDir, e.Name()))
		require.NoError(t, err)
		w, err := zw.Create(e.Name())
		require.NoError(t, err)
		_, err = io.Copy(w, f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tl_2024_08_tract.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	im := &Importer{
		TempDir: t.TempDir(),
		DataDir: dataDir,
		BaseURL: srv.URL,
	}

	n, err := im.ImportState(context.Background(), "08", "CO")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fc, err := geodata.Load("CO", dataDir)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	// The written layer decodes into usable geometry.
	g, err := fc.Features[0].DecodeGeometry()
	require.NoError(t, err)
	assert.Greater(t, geodata.AreaSquareMiles(g), 0.0)
}

func TestImportStateDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	im := &Importer{
		TempDir: t.TempDir(),
		DataDir: t.TempDir(),
		BaseURL: srv.URL,
	}
	_, err := im.ImportState(context.Background(), "08", "CO")
	assert.Error(t, err)
}

func TestEncodeGeoJSON(t *testing.T) {
	data, err := EncodeGeoJSON(squareTract(-105, 39))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"MultiPolygon"`)

	// Unsupported shapes return nothing rather than failing.
	data, err = EncodeGeoJSON(&shp.Point{X: -105, Y: 39})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeGeoJSON(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "tl_2024_08_tract.zip", archiveName("08"))
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://ftp2.census.gov/geo/tiger/TIGER2024/TRACT/tl_2024_08_tract.zip")
	require.NoError(t, err)
	assert.Equal(t, "ftp2.census.gov:21", host)
	assert.Equal(t, "/geo/tiger/TIGER2024/TRACT/tl_2024_08_tract.zip", path)

	_, _, err = parseFTPURL("https://example.com/file.zip")
	assert.Error(t, err)
}

func TestFIPSCodes(t *testing.T) {
	assert.Equal(t, "08", FIPSCodes["CO"])

	abbr, ok := AbbrFromFIPS("08")
	require.True(t, ok)
	assert.Equal(t, "CO", abbr)

	_, ok = AbbrFromFIPS("99")
	assert.False(t, ok)
}
