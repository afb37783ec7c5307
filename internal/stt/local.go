package stt

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// LocalSTTConfig holds configuration for a self-hosted whisper server.
type LocalSTTConfig struct {
	BaseURL string // default: "http://localhost:8178/v1"
	Model   string // default: "base"
	Timeout time.Duration
}

// LocalSTT wraps OpenAISTT pointing at a local OpenAI-compatible whisper server
// (whisper.cpp started with --inference-path /v1/audio/transcriptions, faster-whisper-server, ...).
type LocalSTT struct {
	*OpenAISTT
	baseURL string
}

// NewLocalSTT creates a LocalSTT backed by a local whisper HTTP server.
func NewLocalSTT(cfg LocalSTTConfig) *LocalSTT {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	return &LocalSTT{
		OpenAISTT: NewOpenAISTT(OpenAISTTConfig{
			BaseURL: baseURL,
			Model:   model,
			Timeout: cfg.Timeout,
			// No API key needed for local server
		}),
		baseURL: baseURL,
	}
}

func (l *LocalSTT) Name() string { return "local-whisper" }

// Probe only checks that the server answers; local servers rarely implement /models.
func (l *LocalSTT) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach %s: %w", l.baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper server unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (l *LocalSTT) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return l.OpenAISTT.Transcribe(ctx, req)
}
