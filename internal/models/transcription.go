package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceSync   = "sync"
	SourceLegacy = "legacy"
	SourceJob    = "job"
)

type TranscriptionLog struct {
	ID           uuid.UUID `json:"id" db:"id"`
	RequestID    string    `json:"request_id" db:"request_id"`
	Principal    string    `json:"principal,omitempty" db:"principal"`
	Source       string    `json:"source" db:"source"`
	Filename     string    `json:"filename" db:"filename"`
	Provider     string    `json:"provider" db:"provider"`
	Model        string    `json:"model" db:"model"`
	Language     string    `json:"language,omitempty" db:"language"`
	AudioBytes   int64     `json:"audio_bytes" db:"audio_bytes"`
	AudioSeconds float64   `json:"audio_seconds" db:"audio_seconds"`
	LatencyMs    int64     `json:"latency_ms" db:"latency_ms"`
	Cached       bool      `json:"cached" db:"cached"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is an async transcription request as stored in redis until its TTL expires.
// Clients see it through jobs.View.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Status      JobStatus `json:"status"`
	Filename    string    `json:"filename"`
	AudioPath   string    `json:"audio_path"`
	Language    string    `json:"language,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Temperature float32   `json:"temperature"`
	CallbackURL string    `json:"callback_url,omitempty"`
	Principal   string    `json:"principal,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
