package queue

import "encoding/json"

const (
	TypeTranscriptionRun = "transcription:run"
	TypeWebhookDeliver   = "webhook:deliver"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type TranscriptionRunPayload struct {
	JobID string `json:"job_id"`
}

type WebhookDeliverPayload struct {
	JobID   string          `json:"job_id"`
	URL     string          `json:"url"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
