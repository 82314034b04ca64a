// Package config holds all shuttletrack client configuration.
// Configuration is loaded from ~/.shuttletrack/config.yaml when present and
// can be overridden per-field through SHUTTLETRACK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full client configuration.
type Config struct {
	// API configures the backend transport.
	API APIConfig `yaml:"api"`

	// Discovery configures role and assignment resolution.
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Tracking configures the live-location poller.
	Tracking TrackingConfig `yaml:"tracking"`
}

// APIConfig configures the REST transport.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds every single request, including each probe step,
	// so one unreachable endpoint cannot stall a whole fallback chain.
	Timeout time.Duration `yaml:"timeout"`
}

// DiscoveryConfig configures the resolution fallback chains.
//
// The backend's real endpoint set has never been confirmed; several of the
// paths below exist only as candidates the client probes in order. Keeping
// them here instead of in control flow lets the list be corrected without a
// code change once the API contract is settled.
type DiscoveryConfig struct {
	// DriverProbePaths are candidate endpoints for a driver's shuttle,
	// tried in order after the documented endpoints come up empty.
	// "{id}" is replaced with the driver's user id.
	DriverProbePaths []string `yaml:"driver_probe_paths"`

	// ParentUsernames are usernames always resolved to the PARENT role.
	// Compatibility hack inherited from the production backend, whose
	// role field is unreliable for these accounts.
	ParentUsernames []string `yaml:"parent_usernames"`
}

// TrackingConfig configures live telemetry polling.
type TrackingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Durations in the file use Go syntax ("10s", "1m30s"). yaml.v3 has no
// notion of time.Duration, so the two structs carrying one decode through
// a raw shape and parse it themselves.

func (a *APIConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != "" {
		a.BaseURL = raw.BaseURL
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("api.timeout: %w", err)
		}
		a.Timeout = d
	}
	return nil
}

func (t *TrackingConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("tracking.interval: %w", err)
		}
		t.Interval = d
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://188.166.176.16:8080/api",
			Timeout: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			DriverProbePaths: []string{
				"/drivers/{id}",
				"/drivers/{id}/shuttle",
				"/shuttles/driver/{id}",
				"/shuttles/assigned",
				"/shuttles/active",
				"/users/{id}/shuttle",
			},
			ParentUsernames: []string{"vicsotto"},
		},
		Tracking: TrackingConfig{
			Interval: 5 * time.Second,
		},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shuttletrack", "config.yaml"), nil
}

// Load reads the config file at path, applies defaults for anything the
// file omits, then applies environment overrides. A missing file is not an
// error; defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.fillZero()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHUTTLETRACK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SHUTTLETRACK_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}
	if v := os.Getenv("SHUTTLETRACK_TRACK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Tracking.Interval = d
		}
	}
}

// fillZero restores defaults for fields a config file set to zero values,
// so a partial file never disables a timeout or the poller.
func (c *Config) fillZero() {
	def := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.Tracking.Interval <= 0 {
		c.Tracking.Interval = def.Tracking.Interval
	}
	if len(c.Discovery.DriverProbePaths) == 0 {
		c.Discovery.DriverProbePaths = def.Discovery.DriverProbePaths
	}
}
