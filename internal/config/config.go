package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Quota     QuotaConfig
	Versions  VersionsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QuotaConfig governs the daily generation ledger.
type QuotaConfig struct {
	// Backend selects the ledger store: "memory" or "postgres".
	Backend        string
	FreeDailyLimit int
	ProDailyLimit  int
	// MaxRetries caps re-attempts per request id beyond the first try.
	MaxRetries int
	// Bypass admits every reservation regardless of usage (dev/test).
	Bypass bool
}

// VersionsConfig governs the prompt version history store.
type VersionsConfig struct {
	// Backend selects the version store: "memory" or "rest".
	Backend string
	// MaxVersions is the per-user retention cap; oldest entries are evicted.
	MaxVersions int
	// TopicScanLimit bounds how many recent versions are examined when
	// computing the next version number for a topic.
	TopicScanLimit int
	// REST table endpoint (PostgREST-style row API) for the "rest" backend.
	RestURL   string
	RestKey   string
	RestTable string
	RestRetry int
}

type RateLimitConfig struct {
	Enabled   bool
	MaxReqs   int
	WindowSec int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Quota: QuotaConfig{
			Backend:        k.String("quota.backend"),
			FreeDailyLimit: k.Int("quota.free.daily.limit"),
			ProDailyLimit:  k.Int("quota.pro.daily.limit"),
			MaxRetries:     k.Int("quota.max.retries"),
			Bypass:         k.Bool("quota.bypass"),
		},
		Versions: VersionsConfig{
			Backend:        k.String("versions.backend"),
			MaxVersions:    k.Int("versions.max.versions"),
			TopicScanLimit: k.Int("versions.topic.scan.limit"),
			RestURL:        k.String("versions.rest.url"),
			RestKey:        k.String("versions.rest.key"),
			RestTable:      k.String("versions.rest.table"),
			RestRetry:      k.Int("versions.rest.retry"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   k.Bool("ratelimit.enabled"),
			MaxReqs:   k.Int("ratelimit.max.reqs"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "promptforge"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "promptforge"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Quota.Backend == "" {
		cfg.Quota.Backend = "memory"
	}
	if cfg.Quota.FreeDailyLimit == 0 {
		cfg.Quota.FreeDailyLimit = 10
	}
	if cfg.Quota.ProDailyLimit == 0 {
		cfg.Quota.ProDailyLimit = 100
	}
	if cfg.Quota.MaxRetries == 0 {
		cfg.Quota.MaxRetries = 1
	}
	if cfg.Versions.Backend == "" {
		cfg.Versions.Backend = "memory"
	}
	if cfg.Versions.MaxVersions == 0 {
		cfg.Versions.MaxVersions = 20
	}
	if cfg.Versions.TopicScanLimit == 0 {
		cfg.Versions.TopicScanLimit = 100
	}
	if cfg.Versions.RestTable == "" {
		cfg.Versions.RestTable = "versions"
	}
	if cfg.Versions.RestRetry == 0 {
		cfg.Versions.RestRetry = 3
	}
	if cfg.RateLimit.MaxReqs == 0 {
		cfg.RateLimit.MaxReqs = 30
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	return cfg, nil
}
