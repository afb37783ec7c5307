package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/queue"
	"github.com/nikhilbhutani/whisperapi/internal/storage"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

var ErrNotCompleted = errors.New("job has not completed")

// Enqueuer schedules the background run of a job.
type Enqueuer interface {
	EnqueueTranscriptionRun(ctx context.Context, payload queue.TranscriptionRunPayload) error
}

// View is the client-facing job representation, also posted to callback URLs.
type View struct {
	ID          uuid.UUID        `json:"id"`
	Status      models.JobStatus `json:"status"`
	Filename    string           `json:"filename"`
	Language    string           `json:"language,omitempty"`
	CallbackURL string           `json:"callback_url,omitempty"`
	Error       string           `json:"error,omitempty"`
	Text        string           `json:"text,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func NewView(job *models.Job) View {
	return View{
		ID:          job.ID,
		Status:      job.Status,
		Filename:    job.Filename,
		Language:    job.Language,
		CallbackURL: job.CallbackURL,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

type Service struct {
	store   *Store
	storage storage.Storage
	bucket  string
	queue   Enqueuer
	metrics *metrics.Metrics
}

func NewService(store *Store, st storage.Storage, bucket string, q Enqueuer) *Service {
	return &Service{
		store:   store,
		storage: st,
		bucket:  bucket,
		queue:   q,
		metrics: metrics.DefaultMetrics,
	}
}

type SubmitRequest struct {
	Filename    string
	Data        io.Reader
	Language    string
	Prompt      string
	Temperature float32
	CallbackURL string
	Principal   string
}

// Submit stores the audio, records the job as queued and schedules it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Status:      models.JobStatusQueued,
		Filename:    req.Filename,
		Language:    req.Language,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		CallbackURL: req.CallbackURL,
		Principal:   req.Principal,
		CreatedAt:   now,
	}
	job.AudioPath = AudioPath(job.ID, req.Filename)

	contentType := mime.TypeByExtension(filepath.Ext(job.AudioPath))
	if err := s.storage.Upload(ctx, s.bucket, job.AudioPath, req.Data, contentType); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}

	if err := s.store.Save(ctx, job); err != nil {
		s.DiscardAudio(ctx, job)
		return nil, err
	}

	if err := s.queue.EnqueueTranscriptionRun(ctx, queue.TranscriptionRunPayload{JobID: job.ID.String()}); err != nil {
		s.DiscardAudio(ctx, job)
		if _, serr := s.store.SetStatus(ctx, job.ID, models.JobStatusFailed, err.Error()); serr != nil {
			slog.Warn("failed to mark job failed", "job_id", job.ID, "error", serr)
		}
		return nil, err
	}

	s.metrics.Jobs.WithLabelValues(string(models.JobStatusQueued)).Inc()
	slog.Info("transcription job queued", "job_id", job.ID, "filename", job.Filename)
	return job, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.Get(ctx, id)
}

// Result returns the finished transcript. Jobs that have not completed yield ErrNotCompleted.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (*models.Job, *stt.Result, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return job, nil, ErrNotCompleted
	}
	res, err := s.store.Result(ctx, id)
	if err != nil {
		return job, nil, err
	}
	return job, res, nil
}

// Start marks the job as processing and opens its stored audio.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*models.Job, io.ReadCloser, error) {
	job, err := s.store.SetStatus(ctx, id, models.JobStatusProcessing, "")
	if err != nil {
		return nil, nil, err
	}
	s.metrics.Jobs.WithLabelValues(string(models.JobStatusProcessing)).Inc()

	rc, err := s.storage.Download(ctx, s.bucket, job.AudioPath)
	if err != nil {
		return job, nil, fmt.Errorf("load job audio: %w", err)
	}
	return job, rc, nil
}

// Complete stores the result, marks the job completed and drops its audio.
func (s *Service) Complete(ctx context.Context, job *models.Job, res *stt.Result) error {
	if err := s.store.SaveResult(ctx, job.ID, res); err != nil {
		return err
	}
	job.Status, job.Error = models.JobStatusCompleted, ""
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	s.metrics.Jobs.WithLabelValues(string(models.JobStatusCompleted)).Inc()
	s.DiscardAudio(ctx, job)
	return nil
}

// Fail marks the job failed for good and drops its audio.
func (s *Service) Fail(ctx context.Context, job *models.Job, cause error) error {
	job.Status, job.Error = models.JobStatusFailed, cause.Error()
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	s.metrics.Jobs.WithLabelValues(string(models.JobStatusFailed)).Inc()
	s.DiscardAudio(ctx, job)
	return nil
}

func (s *Service) DiscardAudio(ctx context.Context, job *models.Job) {
	if err := s.storage.Delete(ctx, s.bucket, job.AudioPath); err != nil {
		slog.Warn("failed to delete job audio", "job_id", job.ID, "error", err)
	}
}

// AudioPath is where a job's upload lives in object storage.
func AudioPath(id uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ ;`) {
		ext = ""
	}
	return "jobs/" + id.String() + ext
}
