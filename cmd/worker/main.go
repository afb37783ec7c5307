package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/app"
	"github.com/nikhilbhutani/whisperapi/internal/config"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/queue/workers"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to read env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		slog.Error("REDIS_ADDR is required to run the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Jobs == nil {
		slog.Error("redis unavailable, worker cannot run", "addr", cfg.Redis.Addr)
		os.Exit(1)
	}
	if !a.Transcriber.Ready() {
		// jobs are retried until the model comes back or their retries run out
		slog.Warn("model not loaded, transcription jobs will fail")
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Jobs.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			Logger: newAsynqLogger(logger),
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeTranscriptionRun, workers.NewTranscriptionWorker(a.Jobs, a.Transcriber, a.Queue))
	registry.Register(queue.TypeWebhookDeliver, workers.NewWebhookWorker(webhook.NewDispatcher(cfg.Webhook.Secret, cfg.Webhook.Timeout)))

	slog.Info("starting worker", "concurrency", cfg.Jobs.Concurrency, "model_ready", a.Transcriber.Ready())
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
}
