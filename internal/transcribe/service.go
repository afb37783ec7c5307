// Package transcribe runs one upload through the loaded model: spool to a temp
// file, invoke the provider, clean up, then record and publish the outcome.
package transcribe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/whisperapi/internal/events"
	"github.com/nikhilbhutani/whisperapi/internal/metrics"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

var (
	ErrModelUnavailable = errors.New("whisper model is not available")
	ErrTooLarge         = errors.New("audio file too large")
	ErrEmptyUpload      = errors.New("audio file is empty")
)

// ResultCache stores finished results keyed by audio hash and decoding options.
type ResultCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Recorder persists one row per transcription attempt.
type Recorder interface {
	RecordTranscription(ctx context.Context, rec models.TranscriptionLog) error
}

// Publisher announces completed transcriptions.
type Publisher interface {
	PublishCompleted(ctx context.Context, ev events.TranscriptionCompleted) error
}

type Config struct {
	TempDir        string
	MaxUploadBytes int64
	MaxConcurrency int
	CacheTTL       time.Duration
}

type Upload struct {
	Filename string
	Data     io.Reader
}

type Options struct {
	Language    string
	Prompt      string
	Temperature float32

	RequestID string
	Principal string
	Source    string
}

type Outcome struct {
	ID       string
	Filename string
	Result   *stt.Result
	Cached   bool
	Latency  time.Duration
}

type Service struct {
	provider  stt.Provider
	cfg       Config
	sem       *semaphore.Weighted
	cache     ResultCache
	recorder  Recorder
	publisher Publisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithCache(c ResultCache) Option { return func(s *Service) { s.cache = c } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// NewService wires the model handle. A nil provider means the model failed to load;
// every Transcribe call then returns ErrModelUnavailable.
func NewService(provider stt.Provider, cfg Config, opts ...Option) *Service {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	s := &Service{
		provider: provider,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		metrics:  metrics.DefaultMetrics,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ready reports whether the model loaded at startup.
func (s *Service) Ready() bool { return s.provider != nil }

func (s *Service) ModelName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Model()
}

func (s *Service) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// Transcribe runs the upload through the model. The temp file is removed
// before returning, whatever the outcome.
func (s *Service) Transcribe(ctx context.Context, up Upload, opts Options) (*Outcome, error) {
	if s.provider == nil {
		return nil, ErrModelUnavailable
	}

	start := time.Now()
	out := &Outcome{ID: opts.RequestID, Filename: up.Filename}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	res, cached, size, err := s.run(ctx, up, opts)
	out.Latency = time.Since(start)

	s.metrics.RecordTranscription(s.provider.Name(), err, cached)
	s.record(ctx, out, opts, res, size, cached, err)
	if err != nil {
		return nil, err
	}

	out.Result, out.Cached = res, cached
	s.metrics.AudioSeconds.Add(res.AudioDuration())
	s.publish(ctx, out, opts)
	return out, nil
}

func (s *Service) run(ctx context.Context, up Upload, opts Options) (*stt.Result, bool, int64, error) {
	path, sum, size, err := s.spool(up)
	if err != nil {
		return nil, false, size, err
	}
	defer s.remove(path)

	key := s.cacheKey(sum, opts)
	if res, ok := s.lookup(ctx, key); ok {
		return res, true, size, nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, false, size, fmt.Errorf("wait for model: %w", err)
	}
	s.metrics.InFlight.Inc()
	modelStart := time.Now()

	res, err := s.provider.Transcribe(ctx, stt.Request{
		FilePath:    path,
		Language:    opts.Language,
		Prompt:      opts.Prompt,
		Temperature: opts.Temperature,
	})

	s.metrics.TranscriptionLatency.WithLabelValues(s.provider.Name()).Observe(time.Since(modelStart).Seconds())
	s.metrics.InFlight.Dec()
	s.sem.Release(1)

	if err != nil {
		return nil, false, size, err
	}
	if res.Task == "" {
		res.Task = stt.TaskTranscribe
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.cfg.CacheTTL); err != nil {
			slog.Warn("failed to cache transcript", "error", err)
		}
	}
	return res, false, size, nil
}

// spool copies the upload into a temp file that keeps the original extension,
// hashing the bytes on the way.
func (s *Service) spool(up Upload) (string, string, int64, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "whisper-*"+safeExt(up.Filename))
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	h := sha256.New()
	src := up.Data
	if s.cfg.MaxUploadBytes > 0 {
		src = io.LimitReader(up.Data, s.cfg.MaxUploadBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("write temp file: %w", err)
	case s.cfg.MaxUploadBytes > 0 && n > s.cfg.MaxUploadBytes:
		err = ErrTooLarge
	case n == 0:
		err = ErrEmptyUpload
	}
	if err != nil {
		s.remove(path)
		return "", "", n, err
	}

	s.metrics.AudioBytes.Add(float64(n))
	return path, hex.EncodeToString(h.Sum(nil)), n, nil
}

func (s *Service) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove temp file", "path", path, "error", err)
	}
}

func (s *Service) cacheKey(sum string, opts Options) string {
	return strings.Join([]string{
		"transcript",
		s.provider.Name(),
		s.provider.Model(),
		sum,
		opts.Language,
		strconv.FormatFloat(float64(opts.Temperature), 'f', -1, 32),
		hashString(opts.Prompt),
	}, ":")
}

func (s *Service) lookup(ctx context.Context, key string) (*stt.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	var res stt.Result
	if err := s.cache.Get(ctx, key, &res); err != nil {
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}
	s.metrics.RecordCacheLookup(true)
	return &res, true
}

func (s *Service) record(ctx context.Context, out *Outcome, opts Options, res *stt.Result, size int64, cached bool, runErr error) {
	if s.recorder == nil {
		return
	}
	rec := models.TranscriptionLog{
		RequestID:  out.ID,
		Principal:  opts.Principal,
		Source:     opts.Source,
		Filename:   out.Filename,
		Provider:   s.provider.Name(),
		Model:      s.provider.Model(),
		Language:   opts.Language,
		AudioBytes: size,
		LatencyMs:  out.Latency.Milliseconds(),
		Cached:     cached,
	}
	if res != nil {
		rec.Language = res.Language
		rec.AudioSeconds = res.AudioDuration()
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := s.recorder.RecordTranscription(ctx, rec); err != nil {
		slog.Warn("failed to record transcription", "error", err, "request_id", out.ID)
	}
}

func (s *Service) publish(ctx context.Context, out *Outcome, opts Options) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishCompleted(ctx, events.TranscriptionCompleted{
		ID:           out.ID,
		Source:       opts.Source,
		Filename:     out.Filename,
		Provider:     s.provider.Name(),
		Model:        s.provider.Model(),
		Language:     out.Result.Language,
		AudioSeconds: out.Result.AudioDuration(),
		Segments:     len(out.Result.Segments),
		Text:         out.Result.Text,
		Cached:       out.Cached,
		CompletedAt:  time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("failed to publish transcription event", "error", err, "request_id", out.ID)
	}
}

// safeExt keeps the upload's extension so the model can sniff the container,
// dropping anything that is not a short alphanumeric suffix.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func hashString(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
