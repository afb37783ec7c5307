// Package jobs tracks async transcription requests: submission, state, and results.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/whisperapi/internal/cache"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

var ErrNotFound = errors.New("job not found")

// KV is the subset of *cache.Cache the store needs.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Store keeps job records and their results in redis for ttl after the last update.
type Store struct {
	kv  KV
	ttl time.Duration
}

func NewStore(kv KV, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

func jobKey(id uuid.UUID) string    { return "job:" + id.String() }
func resultKey(id uuid.UUID) string { return "job:" + id.String() + ":result" }

func (s *Store) Save(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	if err := s.kv.Set(ctx, jobKey(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := s.kv.Get(ctx, jobKey(id), &job)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// SetStatus loads the job, applies the transition and saves it back.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, errMsg string) (*models.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = status
	job.Error = errMsg
	if err := s.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) SaveResult(ctx context.Context, id uuid.UUID, res *stt.Result) error {
	if err := s.kv.Set(ctx, resultKey(id), res, s.ttl); err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}
	return nil
}

func (s *Store) Result(ctx context.Context, id uuid.UUID) (*stt.Result, error) {
	var res stt.Result
	err := s.kv.Get(ctx, resultKey(id), &res)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return &res, nil
}
