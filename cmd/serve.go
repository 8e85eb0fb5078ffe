package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/config"
	"github.com/food-access/svimap/internal/geodata"
	"github.com/food-access/svimap/internal/render"
	"github.com/food-access/svimap/internal/store"
	"github.com/food-access/svimap/internal/style"
	"github.com/food-access/svimap/internal/svi"
	"github.com/food-access/svimap/pkg/nominatim"
)

var servePort int

// serverEnv bundles the dependencies the HTTP handlers need.
type serverEnv struct {
	cfg      *config.Config
	store    store.Store
	cache    *render.LayerCache
	palettes *style.PaletteSet
	geocoder nominatim.Client
}

func newServerEnv(ctx context.Context, cfg *config.Config) (*serverEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	palettes := style.NewPaletteSet()
	if cfg.Data.PaletteFile != "" {
		if err := palettes.LoadPalettes(cfg.Data.PaletteFile); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
	}

	return &serverEnv{
		cfg:      cfg,
		store:    st,
		cache:    render.NewLayerCache(cfg.Cache.MaxLayers, cfg.Cache.TTL()),
		palettes: palettes,
		geocoder: nominatim.NewClient(
			nominatim.WithBaseURL(cfg.Geocode.BaseURL),
			nominatim.WithRateLimit(cfg.Geocode.RequestsPerSec),
		),
	}, nil
}

func (env *serverEnv) Close() {
	env.store.Close() //nolint:errcheck
}

// sweepExpiredStyled removes styled-layer rows past their expiry so the
// store does not grow without bound.
func (env *serverEnv) sweepExpiredStyled(ctx context.Context) {
	n, err := env.store.DeleteExpiredStyled(ctx)
	if err != nil {
		zap.L().Warn("styled layer sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("expired styled layers removed", zap.Int("count", n))
	}
}

// runStyledSweeper sweeps immediately and then on every tick until the
// context is cancelled.
func (env *serverEnv) runStyledSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		env.sweepExpiredStyled(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// layerDirs lists a config's layer directories, primary first.
func layerDirs(c *config.Config) []string {
	dirs := []string{c.Data.LayerDir}
	if c.Data.FallbackLayerDir != "" {
		dirs = append(dirs, c.Data.FallbackLayerDir)
	}
	return dirs
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the styled-layer HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := newServerEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if interval := cfg.Cache.TTL(); interval > 0 {
			go env.runStyledSweeper(ctx, interval)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *serverEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: env.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Get("/variables", handleVariables)
	r.Get("/definitions", env.handleListDefs)
	r.Get("/layers/{state}/{variable}", env.handleLayer)
	r.Get("/layers/{state}/{variable}/legend", env.handleLegend)
	r.Post("/classify", env.handleClassify)
	r.Get("/state", env.handleStateLookup)
	r.Get("/cache/stats", env.handleCacheStats)
	r.Delete("/cache/{state}", env.handleCacheInvalidate)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svi.Catalog)
}

func (env *serverEnv) handleListDefs(w http.ResponseWriter, r *http.Request) {
	defs, err := env.store.ListLayerDefs(r.Context())
	if err != nil {
		zap.L().Error("layer def listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "layer definitions unavailable")
		return
	}
	if defs == nil {
		defs = []store.LayerDef{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// handleLayer serves a styled GeoJSON layer for one state and variable,
// consulting the in-memory cache, then the store, then styling from disk.
func (env *serverEnv) handleLayer(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(chi.URLParam(r, "state"))
	variable := chi.URLParam(r, "variable")

	if _, ok := svi.Lookup(variable); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown variable: %s", variable))
		return
	}

	if doc := env.cache.Get(state, variable); doc != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc) //nolint:errcheck
		return
	}

	doc, err := env.store.GetStyledLayer(r.Context(), state, variable)
	if err != nil {
		zap.L().Error("styled layer lookup failed", zap.Error(err))
	}
	if doc != nil {
		env.cache.Put(state, variable, doc)
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc) //nolint:errcheck
		return
	}

	doc, err = env.styleFromDisk(r.Context(), state, variable)
	if err != nil {
		zap.L().Error("layer styling failed",
			zap.String("state", state),
			zap.String("variable", variable),
			zap.Error(err),
		)
		if errors.Is(err, geodata.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no layer for state %s", state))
		} else {
			writeError(w, http.StatusInternalServerError, "layer styling failed")
		}
		return
	}

	env.cache.Put(state, variable, doc)
	if err := env.store.SetStyledLayer(r.Context(), state, variable, doc, env.cfg.Cache.TTL()); err != nil {
		zap.L().Warn("styled layer persist failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(doc) //nolint:errcheck
}

// styleFromDisk loads a state layer, builds a classifier for the variable and
// returns the styled document as JSON.
func (env *serverEnv) styleFromDisk(ctx context.Context, state, variable string) ([]byte, error) {
	fc, err := geodata.Load(state, layerDirs(env.cfg)...)
	if err != nil {
		return nil, err
	}

	c, err := env.classifierFor(ctx, fc, variable)
	if err != nil {
		return nil, err
	}

	styled, err := render.StyleLayer(ctx, state, fc, c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(styled)
}

// classifierFor prefers a stored layer definition and falls back to breaks
// derived from the observed values.
func (env *serverEnv) classifierFor(ctx context.Context, fc *geodata.FeatureCollection, variable string) (*style.Classifier, error) {
	base := style.DefaultBase()
	noData := style.Color(env.cfg.Style.NoDataColor)

	if def, err := env.store.GetLayerDef(ctx, variable); err != nil {
		zap.L().Warn("layer def lookup failed", zap.Error(err))
	} else if def != nil {
		return def.Classifier(base)
	}

	colors, err := env.palettes.Get(env.cfg.Style.Palette)
	if err != nil {
		return nil, err
	}
	geodata.Materialize(fc, variable)
	return render.ClassifierFor(fc, variable, colors, base, noData)
}

func (env *serverEnv) handleLegend(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(chi.URLParam(r, "state"))
	variable := chi.URLParam(r, "variable")

	if _, ok := svi.Lookup(variable); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown variable: %s", variable))
		return
	}

	fc, err := geodata.Load(state, layerDirs(env.cfg)...)
	if err != nil {
		if errors.Is(err, geodata.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no layer for state %s", state))
		} else {
			writeError(w, http.StatusInternalServerError, "layer load failed")
		}
		return
	}

	c, err := env.classifierFor(r.Context(), fc, variable)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "legend unavailable")
		return
	}

	writeJSON(w, http.StatusOK, style.NewLegend(variable, c))
}

type classifyRequest struct {
	Variable   string         `json:"variable"`
	Classes    []float64      `json:"classes,omitempty"`
	Colorscale []style.Color  `json:"colorscale,omitempty"`
	Properties map[string]any `json:"properties"`
}

// handleClassify styles a single property bag, using a stored layer
// definition unless the request carries its own breakpoints.
func (env *serverEnv) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Variable == "" {
		writeError(w, http.StatusBadRequest, "variable is required")
		return
	}

	base := style.DefaultBase()
	noData := style.Color(env.cfg.Style.NoDataColor)

	var c *style.Classifier
	var err error
	if len(req.Classes) > 0 {
		c, err = style.NewClassifier(req.Classes, req.Colorscale, base, req.Variable, noData)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		def, derr := env.store.GetLayerDef(r.Context(), req.Variable)
		if derr != nil || def == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no layer definition for %s", req.Variable))
			return
		}
		c, err = def.Classifier(base)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "stored definition is invalid")
			return
		}
	}

	writeJSON(w, http.StatusOK, c.Classify(req.Properties))
}

// handleStateLookup resolves a lat/lon to the two-letter state code via
// reverse geocoding.
func (env *serverEnv) handleStateLookup(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}

	code, err := env.geocoder.StateCode(r.Context(), lat, lon)
	if err != nil {
		zap.L().Warn("reverse geocode failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "reverse geocoding failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": strings.ToLower(code)})
}

func (env *serverEnv) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, env.cache.Stats())
}

func (env *serverEnv) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(chi.URLParam(r, "state"))
	dropped := env.cache.Invalidate(state)
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "dropped": dropped})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
