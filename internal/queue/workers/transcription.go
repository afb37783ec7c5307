package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/jobs"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/storage"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
	"github.com/nikhilbhutani/whisperapi/internal/webhook"
)

// Transcriber runs one upload through the model.
type Transcriber interface {
	Transcribe(ctx context.Context, up transcribe.Upload, opts transcribe.Options) (*transcribe.Outcome, error)
}

// WebhookEnqueuer schedules callback deliveries.
type WebhookEnqueuer interface {
	EnqueueWebhookDeliver(ctx context.Context, payload queue.WebhookDeliverPayload) error
}

// finishTimeout bounds the state writes made after the task context may have expired.
const finishTimeout = 10 * time.Second

type TranscriptionWorker struct {
	jobs         *jobs.Service
	stt          Transcriber
	webhooks     WebhookEnqueuer
	finalAttempt func(ctx context.Context) bool
}

func NewTranscriptionWorker(js *jobs.Service, stt Transcriber, wh WebhookEnqueuer) *TranscriptionWorker {
	return &TranscriptionWorker{jobs: js, stt: stt, webhooks: wh, finalAttempt: finalAttempt}
}

func (w *TranscriptionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TranscriptionRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("parse job ID: %w: %w", err, asynq.SkipRetry)
	}

	current, err := w.jobs.Get(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		slog.Warn("job expired before processing", "job_id", jobID)
		return nil
	}
	if err != nil {
		return err
	}
	if current.Status == models.JobStatusCompleted || current.Status == models.JobStatusFailed {
		return nil
	}

	slog.Info("processing transcription job", "job_id", jobID)

	job, audio, err := w.jobs.Start(ctx, jobID)
	if err != nil {
		// a missing upload never comes back; anything else may be a storage blip
		if job != nil && (errors.Is(err, storage.ErrNotFound) || w.finalAttempt(ctx)) {
			return w.fail(ctx, job, err)
		}
		return err
	}

	out, err := w.run(ctx, job, audio)
	if err != nil {
		if errors.Is(err, transcribe.ErrTooLarge) || errors.Is(err, transcribe.ErrEmptyUpload) || w.finalAttempt(ctx) {
			return w.fail(ctx, job, err)
		}
		return err
	}

	// the model may have used the whole task deadline; the result must still be saved
	fctx, cancel := detach(ctx)
	defer cancel()
	if err := w.jobs.Complete(fctx, job, out.Result); err != nil {
		return err
	}
	slog.Info("transcription job completed", "job_id", jobID, "cached", out.Cached, "latency_ms", out.Latency.Milliseconds())

	w.notify(fctx, job, webhook.EventJobCompleted, out.Result.Text)
	return nil
}

func (w *TranscriptionWorker) run(ctx context.Context, job *models.Job, audio io.ReadCloser) (*transcribe.Outcome, error) {
	defer audio.Close()
	return w.stt.Transcribe(ctx,
		transcribe.Upload{Filename: job.Filename, Data: audio},
		transcribe.Options{
			Language:    job.Language,
			Prompt:      job.Prompt,
			Temperature: job.Temperature,
			RequestID:   job.ID.String(),
			Principal:   job.Principal,
			Source:      models.SourceJob,
		},
	)
}

// fail records the terminal failure and stops asynq from retrying.
// The task context is often already expired here, so the writes run on a detached one.
func (w *TranscriptionWorker) fail(ctx context.Context, job *models.Job, cause error) error {
	fctx, cancel := detach(ctx)
	defer cancel()

	if err := w.jobs.Fail(fctx, job, cause); err != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	w.notify(fctx, job, webhook.EventJobFailed, "")
	return fmt.Errorf("job %s failed: %w: %w", job.ID, cause, asynq.SkipRetry)
}

// detach keeps ctx values but replaces its deadline and cancellation with finishTimeout.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
}

func (w *TranscriptionWorker) notify(ctx context.Context, job *models.Job, event, text string) {
	if job.CallbackURL == "" || w.webhooks == nil {
		return
	}
	view := jobs.NewView(job)
	view.Text = text
	body, err := json.Marshal(view)
	if err != nil {
		slog.Error("failed to marshal callback", "job_id", job.ID, "error", err)
		return
	}
	err = w.webhooks.EnqueueWebhookDeliver(ctx, queue.WebhookDeliverPayload{
		JobID:   job.ID.String(),
		URL:     job.CallbackURL,
		Event:   event,
		Payload: body,
	})
	if err != nil {
		slog.Error("failed to enqueue callback", "job_id", job.ID, "error", err)
	}
}

// finalAttempt reports whether asynq will not retry this task again.
// Outside a worker context it is always true.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
