package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		l := NewLogger(tt.level)
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v should be enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4) {
			t.Errorf("level %q: %v should be disabled", tt.level, tt.want-4)
		}
	}
}

func minimalConfig(t *testing.T, backend string) *config.Config {
	return &config.Config{
		STT: config.STTConfig{Backend: backend, Model: "base", LocalBaseURL: "http://127.0.0.1:1/v1"},
		Transcription: config.TranscriptionConfig{
			MaxUploadBytes: 1 << 20,
			TempDir:        t.TempDir(),
			MaxConcurrency: 1,
		},
	}
}

func TestBuild_WithoutOptionalBackends(t *testing.T) {
	a, err := Build(context.Background(), minimalConfig(t, "local"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	defer a.Close()

	if !a.Transcriber.Ready() || a.Transcriber.ModelName() != "base" {
		t.Errorf("expected the local model to be ready")
	}
	if a.DB != nil || a.Audit != nil || a.Cache != nil || a.Queue != nil || a.Jobs != nil {
		t.Errorf("optional backends should be nil: %+v", a)
	}
	if a.Publisher == nil {
		t.Error("publisher should run in log-only mode")
	}
}

func TestBuild_ModelLoadFailure(t *testing.T) {
	a, err := Build(context.Background(), minimalConfig(t, "unknown"))
	if err != nil {
		t.Fatalf("a model that fails to load must not stop startup: %v", err)
	}
	defer a.Close()

	if a.Provider != nil || a.Transcriber.Ready() {
		t.Error("expected no model")
	}
}
