package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "promptforge",
			Password: "secret", Name: "promptforge", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Quota: QuotaConfig{
			Backend: "memory", FreeDailyLimit: 10, ProDailyLimit: 100, MaxRetries: 1,
		},
		Versions: VersionsConfig{
			Backend: "memory", MaxVersions: 20, TopicScanLimit: 100,
		},
		RateLimit: RateLimitConfig{MaxReqs: 30, WindowSec: 60},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_UnknownQuotaBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.Backend = "dynamo"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "QUOTA_BACKEND") {
		t.Fatalf("expected QUOTA_BACKEND error, got: %v", err)
	}
}

func TestValidate_PostgresBackendNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.Backend = "postgres"
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_MemoryBackendIgnoresDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend should not require DB credentials, got: %v", err)
	}
}

func TestValidate_RestBackendNeedsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Versions.Backend = "rest"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "VERSIONS_REST_URL") {
		t.Fatalf("expected VERSIONS_REST_URL error, got: %v", err)
	}
}

func TestValidate_ProLimitBelowFreeLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.ProDailyLimit = 5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "QUOTA_PRO_DAILY_LIMIT") {
		t.Fatalf("expected QUOTA_PRO_DAILY_LIMIT error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Quota.Backend = "postgres"
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Quota.Backend = "dynamo"
	cfg.Versions.Backend = "s3"
	cfg.Versions.MaxVersions = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"SERVER_PORT", "QUOTA_BACKEND", "VERSIONS_BACKEND", "VERSIONS_MAX_VERSIONS"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
