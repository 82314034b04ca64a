package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Tracking.Interval)
	assert.NotEmpty(t, cfg.Discovery.DriverProbePaths)
	assert.Contains(t, cfg.Discovery.ParentUsernames, "vicsotto")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://localhost:9999/api\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/api", cfg.API.BaseURL)
	// Zero values from a partial file never disable the safety nets.
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.NotEmpty(t, cfg.Discovery.DriverProbePaths)
}

func TestLoadProbeTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "discovery:\n  driver_probe_paths:\n    - /v2/drivers/{id}/vehicle\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/v2/drivers/{id}/vehicle"}, cfg.Discovery.DriverProbePaths)
}

func TestDurationStringsInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "api:\n  timeout: 3s\ntracking:\n  interval: 1m30s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Tracking.Interval)
	assert.NotEmpty(t, cfg.API.BaseURL, "omitted fields keep their defaults")
}

func TestBadDurationRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  timeout: soon\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHUTTLETRACK_API_URL", "http://10.0.0.1/api")
	t.Setenv("SHUTTLETRACK_API_TIMEOUT", "3s")
	t.Setenv("SHUTTLETRACK_TRACK_INTERVAL", "1s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Second, cfg.Tracking.Interval)
}

func TestBadYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t-broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
