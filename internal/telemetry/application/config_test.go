package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PUMPWATCH_CONFIG", "")
	t.Setenv("PUMP_TIMEOUT_SECONDS", "")
	t.Setenv("PUMP_DISCHARGE_COEFFICIENT", "")
	t.Setenv("PUMP_SWEEP_INTERVAL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.TimeoutSeconds != 60 {
		t.Fatalf("expected timeout 60, got %v", cfg.Defaults.TimeoutSeconds)
	}
	if cfg.Defaults.DischargeCoefficient != 0.5 {
		t.Fatalf("expected coefficient 0.5, got %v", cfg.Defaults.DischargeCoefficient)
	}
	if interval, err := cfg.ParsedSweepInterval(); err != nil || interval != 0 {
		t.Fatalf("expected sweep disabled, got %v %v", interval, err)
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpwatch.yaml")
	data := []byte(`
defaults:
  timeout_seconds: 90
  discharge_coefficient: 0.8
  require_positive_duration: true
devices:
  D7:
    timeout_seconds: 300
registry:
  - D1
  - D7
sweep_interval: 2m
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PUMPWATCH_CONFIG", path)
	t.Setenv("PUMP_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.TimeoutSeconds != 90 {
		t.Fatalf("expected timeout 90, got %v", cfg.Defaults.TimeoutSeconds)
	}
	if !cfg.Defaults.RequirePositiveDuration {
		t.Fatalf("expected require_positive_duration")
	}
	if len(cfg.Registry) != 2 || cfg.Registry[0] != "D1" {
		t.Fatalf("unexpected registry: %v", cfg.Registry)
	}
	if interval, err := cfg.ParsedSweepInterval(); err != nil || interval != 2*time.Minute {
		t.Fatalf("expected 2m sweep, got %v %v", interval, err)
	}

	d7 := cfg.PoliciesForDevice("D7")
	if d7.TimeoutSeconds != 300 {
		t.Fatalf("expected D7 timeout 300, got %v", d7.TimeoutSeconds)
	}
	if d7.DischargeCoefficient != 0.8 {
		t.Fatalf("expected D7 to inherit coefficient 0.8, got %v", d7.DischargeCoefficient)
	}
	other := cfg.PoliciesForDevice("D1")
	if other.TimeoutSeconds != 90 {
		t.Fatalf("expected default timeout 90, got %v", other.TimeoutSeconds)
	}
}

func TestLoadConfig_EnvOverridesTimeout(t *testing.T) {
	t.Setenv("PUMPWATCH_CONFIG", "")
	t.Setenv("PUMP_TIMEOUT_SECONDS", "120")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.TimeoutSeconds != 120 {
		t.Fatalf("expected timeout 120, got %v", cfg.Defaults.TimeoutSeconds)
	}
}
