package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/store"
	"github.com/food-access/svimap/internal/style"
	"github.com/food-access/svimap/internal/svi"
)

var (
	breaksPalette string
	breaksSave    bool
	breaksList    bool
)

var breaksCmd = &cobra.Command{
	Use:   "breaks <state> <variable>",
	Short: "Compute class breakpoints for a variable from a state layer",
	Long: `Reads the state's GeoJSON layer, derives ascending class breakpoints from
the observed values and prints the resulting legend. With --save the
breakpoints are persisted as the variable's layer definition, which the
serve command then prefers over on-the-fly breaks. With --list the saved
definitions are printed instead.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if breaksList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("style"); err != nil {
			return err
		}
		if breaksList {
			return listLayerDefs(ctx)
		}

		state := strings.ToLower(args[0])
		variable := args[1]
		v, ok := svi.Lookup(variable)
		if !ok {
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
		paletteName := breaksPalette
		if paletteName == "" {
			paletteName = cfg.Style.Palette
		}
		colors, err := palettes.Get(paletteName)
		if err != nil {
			return err
		}

		geodata.Materialize(fc, variable)
		observedMax, _ := geodata.MaxValue(fc, variable)
		classes, err := style.BreaksFor(variable, observedMax, len(colors))
		if err != nil {
			return err
		}

		c, err := style.NewClassifier(classes, colors, style.DefaultBase(), variable, style.Color(cfg.Style.NoDataColor))
		if err != nil {
			return err
		}

		legend := style.NewLegend(variable, c)
		fmt.Printf("%s (%s)\n", v.Label, variable)
		for i, tick := range legend.Ticks {
			if i < len(legend.Colorscale) {
				fmt.Printf("  %-12s %s\n", tick, legend.Colorscale[i])
			} else {
				fmt.Printf("  %s\n", tick)
			}
		}

		if !breaksSave {
			return nil
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		def := &store.LayerDef{
			Variable:   variable,
			Label:      v.Label,
			Classes:    classes,
			Colorscale: colors,
			NoData:     style.Color(cfg.Style.NoDataColor),
		}
		if err := st.SaveLayerDef(ctx, def); err != nil {
			return err
		}

		zap.L().Info("layer definition saved",
			zap.String("variable", variable),
			zap.Int("classes", len(classes)),
			zap.String("palette", paletteName),
		)
		return nil
	},
}

// listLayerDefs prints the saved layer definitions, one per line.
func listLayerDefs(ctx context.Context) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	defs, err := st.ListLayerDefs(ctx)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Println("no saved layer definitions")
		return nil
	}
	for _, def := range defs {
		fmt.Printf("%-14s %-36s %d classes, updated %s\n",
			def.Variable, def.Label, len(def.Classes)-1,
			def.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func init() {
	breaksCmd.Flags().StringVar(&breaksPalette, "palette", "", "palette name (default from config)")
	breaksCmd.Flags().BoolVar(&breaksSave, "save", false, "persist the breakpoints as the variable's layer definition")
	breaksCmd.Flags().BoolVar(&breaksList, "list", false, "print saved layer definitions and exit")
	rootCmd.AddCommand(breaksCmd)
}
