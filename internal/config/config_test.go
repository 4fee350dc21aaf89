package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobvine/sentinel/internal/sentinel"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENTINEL_DB_PATH", filepath.Join(t.TempDir(), "sentinel.db"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Empty(t, cfg.AlertURLs)
}

func TestLoad_AlertURLsAndSweepInterval(t *testing.T) {
	t.Setenv("SENTINEL_DB_PATH", filepath.Join(t.TempDir(), "sentinel.db"))
	t.Setenv("SENTINEL_ALERT_URLS", "discord://token@id, slack://tok@chan")
	t.Setenv("SENTINEL_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"discord://token@id", "slack://tok@chan"}, cfg.AlertURLs)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadPolicy_EmptyPathUsesDefaults(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Empty(t, policy.Whitelist)
	assert.Equal(t, sentinel.DefaultRatePolicies(), policy.RatePolicies)
}

func TestLoadPolicy_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
whitelist:
  - 127.0.0.1
  - 10.0.0.5
rate_limits:
  general:
    window: 1m
    max_requests: 10
  upload:
    window: 2h
    max_requests: 5
`), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.5"}, policy.Whitelist)
	assert.Equal(t, sentinel.RatePolicy{Window: time.Minute, MaxRequests: 10}, policy.RatePolicies[sentinel.RouteGeneral])
	assert.Equal(t, sentinel.RatePolicy{Window: 2 * time.Hour, MaxRequests: 5}, policy.RatePolicies[sentinel.RouteUpload])
	// Classes not in the file keep their defaults.
	assert.Equal(t, sentinel.DefaultRatePolicies()[sentinel.RouteAuth], policy.RatePolicies[sentinel.RouteAuth])
}

func TestLoadPolicy_RejectsBadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limits:
  general:
    window: soon
    max_requests: 10
`), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}

func TestLoadPolicy_RejectsNonPositiveLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate_limits:
  general:
    window: 1m
    max_requests: 0
`), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}
