package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/KaramelBytes/crimescope-cli/internal/engine"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set CrimeScope configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		shown := *cfg
		shown.RedisPassword = mask(shown.RedisPassword)
		shown.DatabaseURL = maskDSN(shown.DatabaseURL)
		b, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long:  "Set a config value and save to disk.\n\nKeys: " + strings.Join(cfgpkg.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("✓ Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// setConfigValue validates val and stores it under key.
func setConfigValue(c *cfgpkg.Global, key, val string) error {
	strs := map[string]*string{
		"dataset_path":       &c.DatasetPath,
		"dataset_sheet":      &c.DatasetSheet,
		"boundary_source":    &c.BoundarySource,
		"boundary_key":       &c.BoundaryKey,
		"database_url":       &c.DatabaseURL,
		"aggregate_category": &c.AggregateCategory,
		"default_category":   &c.DefaultCategory,
		"listen_addr":        &c.ListenAddr,
		"engine_url":         &c.EngineURL,
		"engine_model":       &c.EngineModel,
		"ollama_host":        &c.OllamaHost,
		"redis_addr":         &c.RedisAddr,
		"redis_password":     &c.RedisPassword,
		"log_format":         &c.LogFormat,
	}
	ints := map[string]*int{
		"engine_timeout_sec":  &c.EngineTimeoutSec,
		"ask_rate_per_min":    &c.AskRatePerMin,
		"session_ttl_min":     &c.SessionTTLMin,
		"redis_db":            &c.RedisDB,
		"http_timeout_sec":    &c.HTTPTimeoutSec,
		"retry_max_attempts":  &c.RetryMaxAttempts,
		"retry_base_delay_ms": &c.RetryBaseDelayMs,
		"retry_max_delay_ms":  &c.RetryMaxDelayMs,
	}
	bools := map[string]*bool{
		"join_normalize_names": &c.JoinNormalizeNames,
		"strict_hover":         &c.StrictHover,
	}

	if p, ok := strs[key]; ok {
		*p = val
		return nil
	}
	if p, ok := ints[key]; ok {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*p = i
		return nil
	}
	if p, ok := bools[key]; ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		*p = b
		return nil
	}

	switch key {
	case "simplify_tolerance":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for simplify_tolerance: %v", val)
		}
		c.SimplifyTolerance = f
	case "range_min", "range_max":
		var p *float64
		if val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid float for %s: %v", key, val)
			}
			p = &f
		}
		if key == "range_min" {
			c.RangeMin = p
		} else {
			c.RangeMax = p
		}
		if err := c.Validate(); err != nil {
			return err
		}
	case "color_scale":
		if _, err := pipeline.LookupScale(val, nil); err != nil {
			return err
		}
		c.ColorScale = val
	case "custom_scale":
		stops := splitList(val)
		if len(stops) > 0 {
			if _, err := pipeline.NewScale("custom", stops...); err != nil {
				return err
			}
		}
		c.CustomScale = stops
	case "color_window":
		w, err := pipeline.ParseWindow(val)
		if err != nil {
			return err
		}
		c.ColorWindow = string(w)
	case "engine_provider":
		p := strings.ToLower(strings.TrimSpace(val))
		if !slices.Contains(engine.Providers(), p) {
			return fmt.Errorf("invalid engine_provider: %s (use %s)", val, strings.Join(engine.Providers(), " or "))
		}
		c.EngineProvider = p
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "cors_origins":
		c.CORSOrigins = splitList(val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}

// maskDSN hides the password of a postgres:// URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":****" + dsn[at:]
	}
	return dsn
}
