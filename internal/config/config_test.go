package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("color_scale: Reds\nengine_timeout_sec: 5\nrange_min: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRIMESCOPE_ENGINE_TIMEOUT_SEC", "7")
	t.Setenv("CRIMESCOPE_REDIS_ADDR", "127.0.0.1:6379")

	c, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ColorScale != "Reds" {
		t.Fatalf("file value not applied: %q", c.ColorScale)
	}
	if c.EngineTimeoutSec != 7 || c.EngineTimeout().Seconds() != 7 {
		t.Fatalf("env should override file: %d", c.EngineTimeoutSec)
	}
	if c.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("bound env not applied: %q", c.RedisAddr)
	}
	if c.RangeMin == nil || *c.RangeMin != 10 || c.RangeMax != nil {
		t.Fatalf("unexpected range override: %v %v", c.RangeMin, c.RangeMax)
	}
	if c.AggregateCategory != "Violent crime total" || c.ListenAddr != ":8080" || c.SimplifyTolerance != 0.01 {
		t.Fatalf("defaults missing: %+v", c)
	}
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("range_min: 200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRIMESCOPE_RANGE_MAX", "100")
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "range_min") {
		t.Fatalf("expected inverted range error, got %v", err)
	}
	t.Setenv("CRIMESCOPE_RANGE_MAX", "300")
	c, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *c.RangeMin != 200 || *c.RangeMax != 300 {
		t.Fatalf("unexpected range %v-%v", *c.RangeMin, *c.RangeMax)
	}
}

func TestLoadMissingExplicitFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if c.EngineProvider != "pandas" {
		t.Fatalf("unexpected provider %q", c.EngineProvider)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	c.DatasetPath = "/data/ca.xlsx"
	c.StrictHover = true
	if err := Save(c, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.DatasetPath != "/data/ca.xlsx" || !back.StrictHover {
		t.Fatalf("saved values lost: %+v", back)
	}
}
