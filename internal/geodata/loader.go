package geodata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotFound reports that no layer file exists for a state in any data
// directory.
var ErrNotFound = errors.New("geodata: layer not found")

// LayerFilename returns the data file name for a state's tract layer.
func LayerFilename(state string) string {
	return fmt.Sprintf("geo_json_%s.json", strings.ToLower(state))
}

// Load reads the GeoJSON tract layer for a state, trying each data directory
// in order. Invalid values are cleaned after load.
func Load(state string, dirs ...string) (*FeatureCollection, error) {
	filename := LayerFilename(state)

	var tried []string
	for _, dir := range dirs {
		path := filepath.Join(dir, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				tried = append(tried, path)
				continue
			}
			return nil, eris.Wrapf(err, "geodata: read %s", path)
		}

		fc, err := Parse(data)
		if err != nil {
			return nil, eris.Wrapf(err, "geodata: %s", path)
		}

		zap.L().Debug("geodata: layer loaded",
			zap.String("state", state),
			zap.String("path", path),
			zap.Int("features", len(fc.Features)),
		)
		return fc, nil
	}

	return nil, eris.Wrapf(ErrNotFound, "state %s, tried %s",
		state, strings.Join(tried, ", "))
}
