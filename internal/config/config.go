package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Style   StyleConfig   `yaml:"style" mapstructure:"style"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP layer server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DataConfig locates GeoJSON layers and palette files on disk.
type DataConfig struct {
	LayerDir         string `yaml:"layer_dir" mapstructure:"layer_dir"`
	FallbackLayerDir string `yaml:"fallback_layer_dir" mapstructure:"fallback_layer_dir"`
	PaletteFile      string `yaml:"palette_file" mapstructure:"palette_file"`
	TempDir          string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StyleConfig configures classification defaults.
type StyleConfig struct {
	Palette     string `yaml:"palette" mapstructure:"palette"`
	NoDataColor string `yaml:"no_data_color" mapstructure:"no_data_color"`
}

// CacheConfig configures the in-memory styled-layer cache.
type CacheConfig struct {
	MaxLayers  int `yaml:"max_layers" mapstructure:"max_layers"`
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// GeocodeConfig configures the Nominatim reverse-geocoding client.
type GeocodeConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ImportConfig configures the TIGER tract importer.
type ImportConfig struct {
	TigerBaseURL string `yaml:"tiger_base_url" mapstructure:"tiger_base_url"`
	FTPFallback  bool   `yaml:"ftp_fallback" mapstructure:"ftp_fallback"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SVIMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "svimap.db")
	v.SetDefault("data.layer_dir", "data")
	v.SetDefault("data.fallback_layer_dir", "")
	v.SetDefault("data.temp_dir", "/tmp/svimap")
	v.SetDefault("style.palette", "ylorrd")
	v.SetDefault("style.no_data_color", "#808080")
	v.SetDefault("cache.max_layers", 16)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "food-desert-analysis.com/1.0 (jfarina3@gatech.edu)")
	v.SetDefault("geocode.requests_per_sec", 1)
	v.SetDefault("import.ftp_fallback", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given mode ("serve", "style",
// "import") and reports all problems at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		problems = append(problems, c.validateCommon()...)
	case "style", "import":
		problems = append(problems, c.validateCommon()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateCommon() []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Cache.MaxLayers < 1 || c.Cache.MaxLayers > 1024 {
		problems = append(problems, "cache.max_layers must be between 1 and 1024")
	}
	if c.Cache.TTLMinutes < 0 {
		problems = append(problems, "cache.ttl_minutes must be >= 0")
	}
	if c.Geocode.RequestsPerSec <= 0 {
		problems = append(problems, "geocode.requests_per_sec must be > 0")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
