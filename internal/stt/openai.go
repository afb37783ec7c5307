package stt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
	Timeout time.Duration
}

// OpenAISTT transcribes audio using OpenAI's Whisper API (or a compatible endpoint).
type OpenAISTT struct {
	cfg    OpenAISTTConfig
	client *openai.Client
}

// NewOpenAISTT creates an OpenAISTT with sensible defaults applied.
func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAISTT{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (o *OpenAISTT) Name() string  { return "openai-whisper" }
func (o *OpenAISTT) Model() string { return o.cfg.Model }

// Probe checks that the configured model is served by the endpoint.
func (o *OpenAISTT) Probe(ctx context.Context) error {
	if _, err := o.client.GetModel(ctx, o.cfg.Model); err != nil {
		return fmt.Errorf("get model: %w", err)
	}
	return nil
}

// Transcribe uploads the audio file and requests verbose_json so segment timings come back.
func (o *OpenAISTT) Transcribe(ctx context.Context, req Request) (*Result, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       o.cfg.Model,
		FilePath:    req.FilePath,
		Prompt:      req.Prompt,
		Language:    req.Language,
		Temperature: req.Temperature,
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	return fromAudioResponse(resp), nil
}

func fromAudioResponse(resp openai.AudioResponse) *Result {
	out := &Result{
		Task:     resp.Task,
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	if out.Task == "" {
		out.Task = TaskTranscribe
	}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, Segment{
			ID:               s.ID,
			Seek:             s.Seek,
			Start:            s.Start,
			End:              s.End,
			Text:             s.Text,
			Tokens:           s.Tokens,
			Temperature:      s.Temperature,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
		})
	}
	return out
}
