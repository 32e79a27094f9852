package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CRIMESCOPE_DATASET_PATH.
const EnvPrefix = "CRIMESCOPE"

// Global configuration structure.
type Global struct {
	// Sources
	DatasetPath       string  `mapstructure:"dataset_path" yaml:"dataset_path"`
	DatasetSheet      string  `mapstructure:"dataset_sheet" yaml:"dataset_sheet"`
	BoundarySource    string  `mapstructure:"boundary_source" yaml:"boundary_source"`
	BoundaryKey       string  `mapstructure:"boundary_key" yaml:"boundary_key"`
	SimplifyTolerance float64 `mapstructure:"simplify_tolerance" yaml:"simplify_tolerance"`
	DatabaseURL       string  `mapstructure:"database_url" yaml:"database_url"`

	// Pipeline
	AggregateCategory  string   `mapstructure:"aggregate_category" yaml:"aggregate_category"`
	DefaultCategory    string   `mapstructure:"default_category" yaml:"default_category"`
	ColorScale         string   `mapstructure:"color_scale" yaml:"color_scale"`
	CustomScale        []string `mapstructure:"custom_scale" yaml:"custom_scale"`
	ColorWindow        string   `mapstructure:"color_window" yaml:"color_window"`
	RangeMin           *float64 `mapstructure:"range_min" yaml:"range_min,omitempty"`
	RangeMax           *float64 `mapstructure:"range_max" yaml:"range_max,omitempty"`
	JoinNormalizeNames bool     `mapstructure:"join_normalize_names" yaml:"join_normalize_names"`
	StrictHover        bool     `mapstructure:"strict_hover" yaml:"strict_hover"`

	// Relay
	ListenAddr       string `mapstructure:"listen_addr" yaml:"listen_addr"`
	EngineProvider   string `mapstructure:"engine_provider" yaml:"engine_provider"`
	EngineURL        string `mapstructure:"engine_url" yaml:"engine_url"`
	EngineTimeoutSec int    `mapstructure:"engine_timeout_sec" yaml:"engine_timeout_sec"`
	EngineModel      string `mapstructure:"engine_model" yaml:"engine_model"`
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	AskRatePerMin    int    `mapstructure:"ask_rate_per_min" yaml:"ask_rate_per_min"`
	SessionTTLMin    int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	RedisAddr        string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db" yaml:"redis_db"`
	// CORSOrigins are the browser origins allowed to call the relay.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// EngineTimeout is the bounded wait for one engine answer.
func (c *Global) EngineTimeout() time.Duration {
	return time.Duration(c.EngineTimeoutSec) * time.Second
}

// HTTPTimeout is the per-attempt HTTP client timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// SessionTTL is how long an idle session is kept.
func (c *Global) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// Keys lists the settable configuration keys.
func Keys() []string {
	return []string{
		"dataset_path", "dataset_sheet", "boundary_source", "boundary_key", "simplify_tolerance", "database_url",
		"aggregate_category", "default_category", "color_scale", "custom_scale", "color_window", "range_min", "range_max",
		"join_normalize_names", "strict_hover",
		"listen_addr", "engine_provider", "engine_url", "engine_timeout_sec", "engine_model", "ollama_host",
		"ask_rate_per_min", "session_ttl_min", "redis_addr", "redis_password", "redis_db", "cors_origins",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
		"log_level", "log_format",
	}
}

// DefaultPath returns ~/.crimescope/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".crimescope", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.crimescope/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset_path", "data/crime_data.csv")
	v.SetDefault("boundary_source", "data/california-counties.geojson")
	v.SetDefault("boundary_key", "name")
	v.SetDefault("simplify_tolerance", 0.01)
	v.SetDefault("aggregate_category", "Violent crime total")
	v.SetDefault("default_category", "Violent crime total")
	v.SetDefault("color_scale", "OrRd")
	v.SetDefault("custom_scale", []string{})
	v.SetDefault("color_window", "view")
	v.SetDefault("join_normalize_names", false)
	v.SetDefault("strict_hover", false)
	// relay
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("engine_provider", "pandas")
	v.SetDefault("engine_url", "http://127.0.0.1:8000")
	v.SetDefault("engine_timeout_sec", 30)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ask_rate_per_min", 30)
	v.SetDefault("session_ttl_min", 120)
	v.SetDefault("redis_db", 0)
	v.SetDefault("cors_origins", []string{})
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by callers) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	// AutomaticEnv only covers keys viper already knows about.
	for _, k := range []string{"range_min", "range_max", "dataset_sheet", "database_url", "engine_model", "redis_addr", "redis_password"} {
		_ = v.BindEnv(k)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-key constraints that a single key cannot express.
func (c *Global) Validate() error {
	if c.RangeMin != nil && c.RangeMax != nil && *c.RangeMin > *c.RangeMax {
		return fmt.Errorf("range_min %.2f is above range_max %.2f", *c.RangeMin, *c.RangeMax)
	}
	return nil
}
