package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobvine/sentinel/internal/sentinel"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment    string
	HTTPPort       string
	DatabasePath   string
	PolicyPath     string
	AlertURLs      []string
	WebhookSecret  string
	JWTSecret      string
	BreakGlassHash string
	SweepInterval  time.Duration
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:    getEnv("SENTINEL_ENV", "development"),
		HTTPPort:       getEnv("SENTINEL_HTTP_PORT", "8080"),
		DatabasePath:   getEnv("SENTINEL_DB_PATH", filepath.Join("data", "sentinel.db")),
		PolicyPath:     getEnv("SENTINEL_POLICY_PATH", ""),
		WebhookSecret:  getEnv("SENTINEL_WEBHOOK_SECRET", ""),
		JWTSecret:      getEnv("SENTINEL_JWT_SECRET", ""),
		BreakGlassHash: getEnv("SENTINEL_BREAK_GLASS_HASH", ""),
		SweepInterval:  time.Minute,
	}

	if urls := getEnv("SENTINEL_ALERT_URLS", ""); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.AlertURLs = append(cfg.AlertURLs, u)
			}
		}
	}
	if raw := getEnv("SENTINEL_SWEEP_INTERVAL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SENTINEL_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Policy is the engine policy loaded once at startup: the whitelist and the
// per-route-class rate limits. A missing file or missing section falls back
// to engine defaults.
type Policy struct {
	Whitelist    []string
	RatePolicies map[sentinel.RouteClass]sentinel.RatePolicy
}

type policyFile struct {
	Whitelist  []string                  `yaml:"whitelist"`
	RateLimits map[string]policyFileRate `yaml:"rate_limits"`
}

type policyFileRate struct {
	Window      string `yaml:"window"`
	MaxRequests int    `yaml:"max_requests"`
}

// LoadPolicy parses the YAML policy file. An empty path returns defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := Policy{RatePolicies: sentinel.DefaultRatePolicies()}
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	policy.Whitelist = pf.Whitelist
	for name, rate := range pf.RateLimits {
		window, err := time.ParseDuration(rate.Window)
		if err != nil {
			return Policy{}, fmt.Errorf("rate limit %q: parse window: %w", name, err)
		}
		if rate.MaxRequests <= 0 {
			return Policy{}, fmt.Errorf("rate limit %q: max_requests must be positive", name)
		}
		policy.RatePolicies[sentinel.RouteClass(name)] = sentinel.RatePolicy{
			Window:      window,
			MaxRequests: rate.MaxRequests,
		}
	}
	return policy, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}
