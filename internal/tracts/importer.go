package tracts

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/resilience"
)

const (
	tigerHTTPBase = "https://www2.census.gov/geo/tiger/TIGER2024/TRACT"
	tigerFTPBase  = "ftp://ftp2.census.gov/geo/tiger/TIGER2024/TRACT"

	sqMetersPerSqMi = 2_589_988.110336
)

// Importer downloads TIGER tract shapefiles and converts them into the
// per-state GeoJSON layer files.
type Importer struct {
	HTTPClient *http.Client
	TempDir    string
	DataDir    string

	// BaseURL overrides the TIGER download base, mostly for tests.
	BaseURL string

	// FTPFallback enables anonymous FTP retrieval when the HTTPS download
	// fails.
	FTPFallback bool
}

// archiveName returns the TIGER tract archive file name for a state FIPS code.
func archiveName(stateFIPS string) string {
	return fmt.Sprintf("tl_2024_%s_tract.zip", stateFIPS)
}

// ImportState downloads, extracts and converts one state's tract shapefile,
// writing geo_json_<state>.json into DataDir. Returns the number of features
// written.
func (im *Importer) ImportState(ctx context.Context, stateFIPS, stateCode string) (int, error) {
	log := zap.L().With(zap.String("component", "tracts.importer"), zap.String("state", stateCode))

	client := im.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	if err := os.MkdirAll(im.TempDir, 0o755); err != nil {
		return 0, eris.Wrap(err, "tracts: create temp dir")
	}

	name := archiveName(stateFIPS)
	zipPath := filepath.Join(im.TempDir, name)

	log.Info("downloading tract shapefile", zap.String("archive", name))
	if err := im.download(ctx, client, name, zipPath); err != nil {
		return 0, err
	}

	extractDir := filepath.Join(im.TempDir, "tract_"+stateFIPS)
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return 0, eris.Wrap(err, "tracts: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return 0, eris.Wrap(err, "tracts: extract archive")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return 0, err
	}

	fc, err := ReadShapefile(shpPath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(im.DataDir, 0o755); err != nil {
		return 0, eris.Wrap(err, "tracts: create data dir")
	}
	outPath := filepath.Join(im.DataDir, geodata.LayerFilename(stateCode))
	if err := writeLayer(outPath, fc); err != nil {
		return 0, err
	}

	log.Info("tract layer written", zap.String("path", outPath), zap.Int("features", len(fc.Features)))
	return len(fc.Features), nil
}

// ReadShapefile converts a TIGER tract shapefile into a FeatureCollection
// with GEOID, NAME and AREA_SQMI properties.
func ReadShapefile(shpPath string) (*geodata.FeatureCollection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tracts: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	geoidIdx := fieldIndex(reader, "GEOID")
	nameIdx := fieldIndex(reader, "NAMELSAD")
	alandIdx := fieldIndex(reader, "ALAND")
	if geoidIdx < 0 || alandIdx < 0 {
		return nil, eris.New("tracts: required shapefile fields (GEOID, ALAND) not found")
	}

	fc := &geodata.FeatureCollection{Type: "FeatureCollection"}
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}

		geoid := attr(reader, geoidIdx)
		if geoid == "" {
			skipped++
			continue
		}

		geometry, err := EncodeGeoJSON(shape)
		if err != nil || geometry == nil {
			skipped++
			continue
		}

		props := geodata.Properties{"GEOID": geoid}
		if nameIdx >= 0 {
			props["NAME"] = attr(reader, nameIdx)
		}
		if aland, err := strconv.ParseFloat(attr(reader, alandIdx), 64); err == nil && aland > 0 {
			props["AREA_SQMI"] = aland / sqMetersPerSqMi
		}

		fc.Features = append(fc.Features, &geodata.Feature{
			Type:       "Feature",
			Properties: props,
			Geometry:   geometry,
		})
	}

	if skipped > 0 {
		zap.L().Debug("tracts: skipped shapefile records", zap.Int("skipped", skipped))
	}
	return fc, nil
}

// download retrieves a TIGER archive over HTTPS, falling back to anonymous
// FTP when enabled.
func (im *Importer) download(ctx context.Context, client *http.Client, name, dest string) error {
	base := im.BaseURL
	if base == "" {
		base = tigerHTTPBase
	}
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("census", "download "+name)
	httpErr := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return downloadHTTP(ctx, client, base+"/"+name, dest)
	})
	if httpErr == nil {
		return nil
	}
	if !im.FTPFallback {
		return httpErr
	}

	zap.L().Warn("tracts: HTTPS download failed, trying FTP",
		zap.String("archive", name),
		zap.Error(httpErr),
	)
	if ftpErr := downloadFTP(ctx, tigerFTPBase+"/"+name, dest); ftpErr != nil {
		return eris.Wrap(ftpErr, "tracts: FTP fallback")
	}
	return nil
}

func downloadHTTP(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "tracts: build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "tracts: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("tracts: download returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	return writeFile(dest, resp.Body)
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "tracts: create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrap(err, "tracts: write file")
	}
	return nil
}

// extractZIP extracts a ZIP archive, flattening entries into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "tracts: open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "tracts: open zip entry %s", f.Name)
		}
		if err := writeFile(destPath, rc); err != nil {
			_ = rc.Close()
			return err
		}
		_ = rc.Close()
	}
	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "tracts: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("tracts: no %s file found in %s", ext, dir)
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func attr(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

func writeLayer(path string, fc *geodata.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "tracts: marshal layer")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "tracts: write %s", path)
	}
	return nil
}
