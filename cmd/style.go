package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/render"
	"github.com/food-access/svimap/internal/style"
	"github.com/food-access/svimap/internal/svi"
)

var (
	stylePalette string
	styleOut     string
)

var styleCmd = &cobra.Command{
	Use:   "style <state> <variable>",
	Short: "Style a state layer and write the classified GeoJSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		state := strings.ToLower(args[0])
		variable := args[1]

		if err := cfg.Validate("style"); err != nil {
			return err
		}
		if _, ok := svi.Lookup(variable); !ok {
			return eris.Errorf("unknown variable: %s", variable)
		}

		fc, err := geodata.Load(state, layerDirs(cfg)...)
		if err != nil {
			return err
		}

		palettes := style.NewPaletteSet()
		if cfg.Data.PaletteFile != "" {
			if err := palettes.LoadPalettes(cfg.Data.PaletteFile); err != nil {
				return err
			}
		}
		paletteName := stylePalette
		if paletteName == "" {
			paletteName = cfg.Style.Palette
		}
		colors, err := palettes.Get(paletteName)
		if err != nil {
			return err
		}

		geodata.Materialize(fc, variable)
		c, err := render.ClassifierFor(fc, variable, colors, style.DefaultBase(), style.Color(cfg.Style.NoDataColor))
		if err != nil {
			return err
		}

		styled, err := render.StyleLayer(ctx, state, fc, c)
		if err != nil {
			return err
		}

		data, err := json.Marshal(styled)
		if err != nil {
			return eris.Wrap(err, "style: marshal layer")
		}

		if styleOut == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(styleOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "style: write %s", styleOut)
		}

		zap.L().Info("styled layer written",
			zap.String("state", state),
			zap.String("variable", variable),
			zap.Int("features", len(styled.Features)),
			zap.String("out", styleOut),
		)
		return nil
	},
}

func init() {
	styleCmd.Flags().StringVar(&stylePalette, "palette", "", "palette name (default from config)")
	styleCmd.Flags().StringVarP(&styleOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(styleCmd)
}
