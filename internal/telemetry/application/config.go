package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceOverrides carries per-device tuning. Zero fields fall back to defaults.
type DeviceOverrides struct {
	TimeoutSeconds       float64 `yaml:"timeout_seconds"`
	DischargeCoefficient float64 `yaml:"discharge_coefficient"`
}

// Policies holds the session-windowing knobs for one device.
type Policies struct {
	// TimeoutSeconds is the maximum gap between consecutive samples within
	// one session. A gap strictly greater than this closes the session.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	// DischargeCoefficient converts run seconds to litres pumped.
	DischargeCoefficient float64 `yaml:"discharge_coefficient"`
	// RequirePositiveDuration discards sessions whose samples all collide
	// on one timestamp instead of logging a zero-duration event.
	RequirePositiveDuration bool `yaml:"require_positive_duration"`
	// DedupeReplays acknowledges a redelivered ping (same device, same
	// timestamp as the buffered tail) without appending it again.
	DedupeReplays bool `yaml:"dedupe_replays"`
}

// Config defines the engine configuration.
type Config struct {
	Defaults Policies                   `yaml:"defaults"`
	Devices  map[string]DeviceOverrides `yaml:"devices"`
	// Registry is the static list of known device ids, used when no
	// database-backed registry is wired.
	Registry []string `yaml:"registry"`
	// SweepInterval enables the background expiry sweep when positive
	// (e.g. "1m"). Empty disables it: expiry stays lazy.
	SweepInterval string `yaml:"sweep_interval"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: Policies{
			TimeoutSeconds:       60,
			DischargeCoefficient: getenvFloatDefault("PUMP_DISCHARGE_COEFFICIENT", 0.5),
		},
	}

	if path := os.Getenv("PUMPWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("PUMP_TIMEOUT_SECONDS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err == nil && parsed > 0 {
			cfg.Defaults.TimeoutSeconds = parsed
		}
	}
	if cfg.SweepInterval == "" {
		cfg.SweepInterval = os.Getenv("PUMP_SWEEP_INTERVAL")
	}

	if cfg.Defaults.TimeoutSeconds <= 0 {
		return cfg, errors.New("config: timeout must be positive")
	}
	if cfg.Defaults.DischargeCoefficient < 0 {
		return cfg, errors.New("config: discharge coefficient must not be negative")
	}
	return cfg, nil
}

// PoliciesForDevice returns the effective policies for a device.
func (c Config) PoliciesForDevice(deviceID string) Policies {
	policies := c.Defaults
	if c.Devices != nil {
		if override, ok := c.Devices[deviceID]; ok {
			if override.TimeoutSeconds > 0 {
				policies.TimeoutSeconds = override.TimeoutSeconds
			}
			if override.DischargeCoefficient > 0 {
				policies.DischargeCoefficient = override.DischargeCoefficient
			}
		}
	}
	return policies
}

// Timeout returns the device timeout as a duration.
func (p Policies) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds * float64(time.Second))
}

// ParsedSweepInterval returns the sweep interval, zero when disabled.
func (c Config) ParsedSweepInterval() (time.Duration, error) {
	if c.SweepInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.SweepInterval)
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
