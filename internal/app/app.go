// Package app wires the services shared by the API server and the job worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/config"
	"github.com/nikhilbhutani/whisperapi/internal/database"
	"github.com/nikhilbhutani/whisperapi/internal/events"
	"github.com/nikhilbhutani/whisperapi/internal/jobs"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/storage"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

// App holds the long-lived handles. DB, Cache, Queue and Jobs are nil when
// their backing service is not configured.
type App struct {
	Provider    stt.Provider
	Transcriber *transcribe.Service
	DB          *pgxpool.Pool
	Audit       *audit.Service
	Cache       *cache.Cache
	Queue       *queue.Client
	Jobs        *jobs.Service
	Publisher   *events.Publisher

	redis *redis.Client
}

// NewLogger builds the JSON logger used by every binary.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Build loads the model once and connects the optional backends. A model that
// fails to load leaves Provider nil; the service still starts and reports it.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	provider, err := stt.Load(ctx, cfg.STT)
	if err != nil {
		slog.Error("failed to load model", "backend", cfg.STT.Backend, "model", cfg.STT.Model, "error", err)
	} else {
		a.Provider = provider
		slog.Info("model loaded", "backend", provider.Name(), "model", provider.Model())
	}

	if err := a.connectDatabase(ctx, cfg.Database); err != nil {
		a.Close()
		return nil, err
	}
	a.connectRedis(ctx, cfg.Redis)

	a.Publisher = events.New(events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})

	opts := []transcribe.Option{transcribe.WithPublisher(a.Publisher)}
	if a.Audit != nil {
		opts = append(opts, transcribe.WithRecorder(a.Audit))
	}
	if a.Cache != nil && cfg.Cache.Enabled {
		opts = append(opts, transcribe.WithCache(a.Cache))
	}
	a.Transcriber = transcribe.NewService(a.Provider, transcribe.Config{
		TempDir:        cfg.Transcription.TempDir,
		MaxUploadBytes: cfg.Transcription.MaxUploadBytes,
		MaxConcurrency: cfg.Transcription.MaxConcurrency,
		CacheTTL:       cfg.Cache.TTL,
	}, opts...)

	if a.Cache != nil {
		st, err := storage.New(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create storage: %w", err)
		}
		a.Queue = queue.NewClient(cfg.Redis, cfg.Jobs)
		a.Jobs = jobs.NewService(jobs.NewStore(a.Cache, cfg.Jobs.TTL), st, cfg.Storage.Bucket, a.Queue)
	}

	return a, nil
}

// connectDatabase opens the pool and applies migrations. Without DATABASE_URL
// auditing and usage reporting are disabled; a configured but unreachable
// database is a startup error.
func (a *App) connectDatabase(ctx context.Context, cfg config.DatabaseConfig) error {
	pool, err := database.NewPool(ctx, cfg)
	if errors.Is(err, database.ErrNotConfigured) {
		slog.Warn("DATABASE_URL not set, transcription auditing disabled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.DB = pool

	if err := database.RunMigrations(ctx, pool, os.DirFS(cfg.MigrationsPath)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	a.Audit = audit.NewService(pool)
	return nil
}

// connectRedis enables the result cache and async jobs. An unreachable redis
// is logged and both stay off.
func (a *App) connectRedis(ctx context.Context, cfg config.RedisConfig) {
	if cfg.Addr == "" {
		slog.Warn("REDIS_ADDR not set, result cache and async jobs disabled")
		return
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	c := cache.NewCache(rdb, "whisperapi:")
	if err := c.Ping(ctx); err != nil {
		slog.Warn("redis unavailable, result cache and async jobs disabled", "addr", cfg.Addr, "error", err)
		rdb.Close()
		return
	}
	a.redis = rdb
	a.Cache = c
}

// Close releases every handle that was opened.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			slog.Warn("close event publisher", "error", err)
		}
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			slog.Warn("close queue client", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if c, ok := a.Provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close model provider", "error", err)
		}
	}
}
