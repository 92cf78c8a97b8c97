package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptforge/promptforge/internal/api"
	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/database"
	"github.com/promptforge/promptforge/internal/generate"
	"github.com/promptforge/promptforge/internal/middleware"
	"github.com/promptforge/promptforge/internal/quota"
	iredis "github.com/promptforge/promptforge/internal/redis"
	"github.com/promptforge/promptforge/internal/server"
	"github.com/promptforge/promptforge/internal/versions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL — only the postgres quota backend needs it
	var pool *pgxpool.Pool
	if cfg.Quota.Backend == "postgres" {
		pool, err = database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	// Quota ledger
	var quotaStore quota.Store
	switch cfg.Quota.Backend {
	case "postgres":
		quotaStore = quota.NewPostgresStore(pool)
	default:
		quotaStore = quota.NewMemoryStore()
	}
	ledger := quota.NewLedger(quotaStore, cfg.Quota)
	quotaHandler := quota.NewHandler(ledger)

	// Daily reset sweeper
	sweeper := quota.NewSweeper(ledger)
	go sweeper.Run(ctx)

	// Version history
	var versionStore versions.Store
	switch cfg.Versions.Backend {
	case "rest":
		versionStore = versions.NewRestStore(cfg.Versions)
	default:
		versionStore = versions.NewMemoryStore()
	}
	versionSvc := versions.NewService(versionStore, cfg.Versions)
	versionHandler := versions.NewHandler(versionSvc)

	// Generation
	generateSvc := generate.NewService(ledger, versionSvc, generate.NewLocalGenerator())
	generateHandler := generate.NewHandler(generateSvc, ledger)

	// Rate limiter for the generate route — Redis-backed, optional
	var generateLimiter func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		redisClient, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("connecting to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.MaxReqs, cfg.RateLimit.WindowSec)
		generateLimiter = limiter.Middleware
	}

	// Router
	router := api.NewRouter(pool, api.RouterConfig{
		CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
		GenerateRateLimiter: generateLimiter,
	}, api.HandlerSet{
		CheckQuota: quotaHandler.Check,

		Generate: generateHandler.Generate,

		CreateVersion:   versionHandler.Create,
		ListVersions:    versionHandler.List,
		CountVersions:   versionHandler.Count,
		GetVersion:      versionHandler.Get,
		DeleteVersion:   versionHandler.Delete,
		RollbackVersion: versionHandler.Rollback,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
