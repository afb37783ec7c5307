package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

// TaskTranscribe is the only decoding task the service runs; translation is never requested.
const TaskTranscribe = "transcribe"

// Request holds the parameters for one model invocation.
type Request struct {
	FilePath    string  `json:"file_path"`
	Language    string  `json:"language,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	Temperature float32 `json:"temperature"`
}

// Segment is a time-bounded span of recognized speech.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens"`
	Temperature      float64 `json:"temperature"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

// Result is the model output, passed through to the formatters unchanged.
type Result struct {
	Task     string    `json:"task"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// AudioDuration is the model-reported duration, falling back to the end of the last segment.
func (r *Result) AudioDuration() float64 {
	if r.Duration > 0 {
		return r.Duration
	}
	if n := len(r.Segments); n > 0 {
		return r.Segments[n-1].End
	}
	return 0
}

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Name() string
	Model() string
}

// Prober is implemented by providers that can verify the model is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Load builds the configured backend and probes it once. The returned provider
// is shared by every request and never mutated afterwards.
func Load(ctx context.Context, cfg config.STTConfig) (Provider, error) {
	var p Provider
	switch cfg.Backend {
	case "openai":
		p = NewOpenAISTT(OpenAISTTConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "local":
		p = NewLocalSTT(LocalSTTConfig{
			BaseURL: cfg.LocalBaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "google":
		g, err := NewGoogleSTT(ctx, GoogleSTTConfig{
			ProjectID:       cfg.GoogleProject,
			CredentialsFile: cfg.GoogleCredFile,
			Model:           cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("create google client: %w", err)
		}
		p = g
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.Backend)
	}

	if pr, ok := p.(Prober); ok && cfg.Probe {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := pr.Probe(probeCtx); err != nil {
			return nil, fmt.Errorf("probe %s model %q: %w", p.Name(), p.Model(), err)
		}
	}
	return p, nil
}
