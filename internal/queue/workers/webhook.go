package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

// Deliverer posts one webhook.
type Deliverer interface {
	Deliver(ctx context.Context, req webhook.Delivery) error
}

type WebhookWorker struct {
	dispatcher Deliverer
}

func NewWebhookWorker(d Deliverer) *WebhookWorker {
	return &WebhookWorker{dispatcher: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.URL == "" {
		return fmt.Errorf("webhook for job %s has no url: %w", payload.JobID, asynq.SkipRetry)
	}

	return w.dispatcher.Deliver(ctx, webhook.Delivery{
		ID:      payload.JobID,
		URL:     payload.URL,
		Event:   payload.Event,
		Payload: payload.Payload,
	})
}
