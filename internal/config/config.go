package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/microarea-cli/internal/audit"
	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/hull"
	"github.com/sells-group/microarea-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig                  `yaml:"log" mapstructure:"log"`
	Store      StoreConfig                `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig               `yaml:"google" mapstructure:"google"`
	Nominatim  NominatimConfig            `yaml:"nominatim" mapstructure:"nominatim"`
	Perplexity PerplexityConfig           `yaml:"perplexity" mapstructure:"perplexity"`
	Retry      resilience.RetrySettings   `yaml:"retry" mapstructure:"retry"`
	Circuit    resilience.CircuitSettings `yaml:"circuit" mapstructure:"circuit"`
	Region     geo.BoundingBox            `yaml:"region" mapstructure:"region"`
	Resolve    ResolveConfig              `yaml:"resolve" mapstructure:"resolve"`
	Audit      audit.Config               `yaml:"audit" mapstructure:"audit"`
	Hull       hull.Config                `yaml:"hull" mapstructure:"hull"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the consolidation store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds the primary geocoder settings. An empty key disables
// the layer.
type GoogleConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Region     string `yaml:"region" mapstructure:"region"`
	Language   string `yaml:"language" mapstructure:"language"`
	Components string `yaml:"components" mapstructure:"components"`
	PacingMs   int    `yaml:"pacing_ms" mapstructure:"pacing_ms"`
}

// NominatimConfig holds the OpenStreetMap geocoder settings.
type NominatimConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Email       string `yaml:"email" mapstructure:"email"`
	PacingMs    int    `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PerplexityConfig holds the assisted search settings. An empty key
// disables the layer.
type PerplexityConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Model    string `yaml:"model" mapstructure:"model"`
	PacingMs int    `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	City     string `yaml:"city" mapstructure:"city"`
}

// ResolveConfig configures the resolver chain.
type ResolveConfig struct {
	// PacingDelayMs applies to providers without their own pacing_ms.
	PacingDelayMs int `yaml:"pacing_delay_ms" mapstructure:"pacing_delay_ms"`
	// CatalogPath points to a YAML centroid catalog. Empty uses the
	// built-in one.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MICROAREA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "microarea.db")
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("google.region", "br")
	v.SetDefault("google.language", "pt-BR")
	v.SetDefault("google.components", "country:BR|administrative_area:SE")
	v.SetDefault("google.pacing_ms", 100)
	v.SetDefault("nominatim.base_url", "")
	v.SetDefault("nominatim.user_agent", "microarea-cli/1.0")
	v.SetDefault("nominatim.email", "")
	v.SetDefault("nominatim.pacing_ms", 1100)
	v.SetDefault("nominatim.timeout_secs", 10)
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.pacing_ms", 0)
	v.SetDefault("perplexity.city", "Nossa Senhora do Socorro, Sergipe, Brasil")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("region.lat_min", -11.05)
	v.SetDefault("region.lat_max", -10.75)
	v.SetDefault("region.lon_min", -37.25)
	v.SetDefault("region.lon_max", -37.00)
	v.SetDefault("resolve.pacing_delay_ms", 1000)
	v.SetDefault("resolve.catalog_path", "")

	ad := audit.DefaultConfig()
	v.SetDefault("audit.generic_tolerance_deg", ad.GenericToleranceDeg)
	v.SetDefault("audit.duplicate_threshold", ad.DuplicateThreshold)
	v.SetDefault("audit.duplicate_precision", ad.DuplicatePrecision)
	v.SetDefault("audit.max_unit_distance_km", ad.MaxUnitDistanceKM)
	v.SetDefault("audit.min_area_km2", ad.MinAreaKM2)
	v.SetDefault("audit.max_area_km2", ad.MaxAreaKM2)
	v.SetDefault("audit.max_extent_km", ad.MaxExtentKM)

	hd := hull.DefaultConfig()
	v.SetDefault("hull.outlier_km", hd.OutlierKM)
	v.SetDefault("hull.point_buffer_deg", hd.PointBufferDeg)
	v.SetDefault("hull.segment_buffer_deg", hd.SegmentBufferDeg)

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

// Validate checks the settings a command needs. mode is one of geocode,
// audit, polygons, status or export.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, "store.driver must be memory, sqlite or postgres")
	}
	if err := c.Region.Validate(); err != nil {
		errs = append(errs, "region: "+err.Error())
	}

	switch mode {
	case "geocode":
		if c.Nominatim.UserAgent == "" {
			errs = append(errs, "nominatim.user_agent is required")
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be >= 1")
		}
	case "audit":
		if c.Audit.DuplicateThreshold < 2 {
			errs = append(errs, "audit.duplicate_threshold must be >= 2")
		}
		if c.Audit.MinAreaKM2 > c.Audit.MaxAreaKM2 {
			errs = append(errs, "audit.min_area_km2 must not exceed audit.max_area_km2")
		}
	case "polygons":
		if c.Hull.OutlierKM < 0 {
			errs = append(errs, "hull.outlier_km must be >= 0")
		}
	case "status", "export":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	return c.Retry.Policy()
}

// CircuitPolicy converts the circuit section.
func (c *Config) CircuitPolicy() resilience.CircuitBreakerConfig {
	return c.Circuit.Policy()
}

// Pacing returns the delay for a provider, falling back to the resolver
// default when ms is not positive.
func (c *Config) Pacing(ms int) time.Duration {
	if ms <= 0 {
		ms = c.Resolve.PacingDelayMs
	}
	return time.Duration(ms) * time.Millisecond
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
