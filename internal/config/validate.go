package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for deployment-breaking problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}

	switch c.Quota.Backend {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("QUOTA_BACKEND must be memory or postgres, got %q", c.Quota.Backend))
	}
	if c.Quota.Backend == "postgres" {
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the postgres quota backend")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
		}
	}
	if c.Quota.FreeDailyLimit < 1 {
		errs = append(errs, "QUOTA_FREE_DAILY_LIMIT must be positive")
	}
	if c.Quota.ProDailyLimit < c.Quota.FreeDailyLimit {
		errs = append(errs, "QUOTA_PRO_DAILY_LIMIT must be at least QUOTA_FREE_DAILY_LIMIT")
	}
	if c.Quota.MaxRetries < 0 {
		errs = append(errs, "QUOTA_MAX_RETRIES must not be negative")
	}

	switch c.Versions.Backend {
	case "memory", "rest":
	default:
		errs = append(errs, fmt.Sprintf("VERSIONS_BACKEND must be memory or rest, got %q", c.Versions.Backend))
	}
	if c.Versions.Backend == "rest" && c.Versions.RestURL == "" {
		errs = append(errs, "VERSIONS_REST_URL is required for the rest versions backend")
	}
	if c.Versions.MaxVersions < 1 {
		errs = append(errs, "VERSIONS_MAX_VERSIONS must be positive")
	}

	if c.RateLimit.Enabled {
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
		}
	}

	// Quota bypass in production is almost always a misconfiguration: warn only.
	if c.Quota.Bypass {
		slog.Warn("quota bypass is enabled — every generation request will be admitted")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
