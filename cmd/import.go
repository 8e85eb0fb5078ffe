package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/svi"
	"github.com/food-access/svimap/internal/tracts"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tract geometry and SVI attribute tables",
}

var importTractsCmd = &cobra.Command{
	Use:   "tracts <state>...",
	Short: "Download TIGER tract shapefiles and write GeoJSON layers",
	Long: `Downloads the Census TIGER/Line tract shapefile for each state, converts the
polygons to GeoJSON and writes geo_json_<state>.json into the layer
directory. States may be given as two-letter codes or 2-digit FIPS codes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		im := &tracts.Importer{
			HTTPClient:  &http.Client{Timeout: 5 * time.Minute},
			TempDir:     cfg.Data.TempDir,
			DataDir:     cfg.Data.LayerDir,
			BaseURL:     cfg.Import.TigerBaseURL,
			FTPFallback: cfg.Import.FTPFallback,
		}

		log := zap.L().With(zap.String("command", "import tracts"))
		for _, arg := range args {
			fips, code, err := resolveState(arg)
			if err != nil {
				return err
			}

			n, err := im.ImportState(ctx, fips, code)
			if err != nil {
				return eris.Wrapf(err, "import tracts: state %s", code)
			}

			log.Info("state imported", zap.String("state", code), zap.Int("features", n))
			fmt.Printf("%s: %d tracts\n", code, n)
		}
		return nil
	},
}

var importSVICmd = &cobra.Command{
	Use:   "svi <table-file> <state>",
	Short: "Merge an SVI attribute table into a state layer",
	Long: `Reads a CDC SVI table (.csv or .xlsx), joins its rows to the state's tract
layer by GEOID and rewrites the layer file with the merged attributes.
Sentinel -999 values become nulls so they style as no-data.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tablePath := args[0]
		state := strings.ToLower(args[1])

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		table, err := svi.ReadTable(ctx, tablePath)
		if err != nil {
			return err
		}

		fc, err := geodata.Load(state, layerDirs(cfg)...)
		if err != nil {
			return err
		}

		matched := svi.Merge(fc, table)
		if matched == 0 {
			return eris.Errorf("import svi: no rows in %s matched layer GEOIDs", tablePath)
		}

		data, err := json.Marshal(fc)
		if err != nil {
			return eris.Wrap(err, "import svi: marshal layer")
		}
		out := filepath.Join(cfg.Data.LayerDir, geodata.LayerFilename(state))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return eris.Wrapf(err, "import svi: write %s", out)
		}

		zap.L().Info("svi table merged",
			zap.String("state", state),
			zap.String("table", tablePath),
			zap.Int("matched", matched),
			zap.Int("features", len(fc.Features)),
		)
		fmt.Printf("%s: %d of %d tracts matched\n", state, matched, len(fc.Features))
		return nil
	},
}

// resolveState accepts a two-letter state code or 2-digit FIPS code and
// returns both forms.
func resolveState(arg string) (fips, code string, err error) {
	upper := strings.ToUpper(arg)
	if f, ok := tracts.FIPSCodes[upper]; ok {
		return f, strings.ToLower(upper), nil
	}
	if abbr, ok := tracts.AbbrFromFIPS(arg); ok {
		return arg, strings.ToLower(abbr), nil
	}
	return "", "", eris.Errorf("unknown state: %s", arg)
}

func init() {
	importCmd.AddCommand(importTractsCmd)
	importCmd.AddCommand(importSVICmd)
	rootCmd.AddCommand(importCmd)
}
