package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/events"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	lastReq stt.Request
	sawFile bool
	content []byte
	err     error
	result  *stt.Result
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "tiny" }

func (f *fakeProvider) Transcribe(_ context.Context, req stt.Request) (*stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	data, err := os.ReadFile(req.FilePath)
	f.sawFile = err == nil
	f.content = data
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &stt.Result{
		Text:     "hello world",
		Language: "en",
		Segments: []stt.Segment{{Start: 0, End: 2.5, Text: " hello world"}},
	}, nil
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string, dest any) error {
	b, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(b, dest)
}

func (m *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

type fakeRecorder struct{ recs []models.TranscriptionLog }

func (f *fakeRecorder) RecordTranscription(_ context.Context, rec models.TranscriptionLog) error {
	f.recs = append(f.recs, rec)
	return nil
}

type fakePublisher struct{ evs []events.TranscriptionCompleted }

func (f *fakePublisher) PublishCompleted(_ context.Context, ev events.TranscriptionCompleted) error {
	f.evs = append(f.evs, ev)
	return nil
}

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestTranscribe_Success(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProvider{}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	svc := NewService(p, Config{TempDir: dir, MaxUploadBytes: 1024}, WithRecorder(rec), WithPublisher(pub))

	out, err := svc.Transcribe(context.Background(),
		Upload{Filename: "meeting.MP3", Data: strings.NewReader("fake-mp3-bytes")},
		Options{Language: "en", Prompt: "names", Temperature: 0.2, RequestID: "req-1", Source: models.SourceSync},
	)
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if out.ID != "req-1" || out.Result.Text != "hello world" || out.Cached {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if !p.sawFile || string(p.content) != "fake-mp3-bytes" {
		t.Errorf("provider did not see the spooled upload")
	}
	if filepath.Ext(p.lastReq.FilePath) != ".mp3" {
		t.Errorf("expected temp file to keep extension, got %s", p.lastReq.FilePath)
	}
	if p.lastReq.Language != "en" || p.lastReq.Prompt != "names" || p.lastReq.Temperature != 0.2 {
		t.Errorf("options not forwarded: %+v", p.lastReq)
	}
	if out.Result.Task != stt.TaskTranscribe {
		t.Errorf("expected task to default to transcribe, got %q", out.Result.Task)
	}
	if left := tempEntries(t, dir); len(left) != 0 {
		t.Errorf("temp file not removed: %v", left)
	}

	if len(rec.recs) != 1 || rec.recs[0].AudioBytes != int64(len("fake-mp3-bytes")) || rec.recs[0].Error != "" {
		t.Errorf("unexpected audit record: %+v", rec.recs)
	}
	if rec.recs[0].AudioSeconds != 2.5 {
		t.Errorf("expected audio seconds 2.5, got %v", rec.recs[0].AudioSeconds)
	}
	if len(pub.evs) != 1 || pub.evs[0].ID != "req-1" || pub.evs[0].Segments != 1 {
		t.Errorf("unexpected events: %+v", pub.evs)
	}
}

func TestTranscribe_ProviderFailureStillRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProvider{err: errors.New("CUDA out of memory")}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	svc := NewService(p, Config{TempDir: dir}, WithRecorder(rec), WithPublisher(pub))

	_, err := svc.Transcribe(context.Background(),
		Upload{Filename: "a.wav", Data: strings.NewReader("RIFF")}, Options{})
	if err == nil || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if left := tempEntries(t, dir); len(left) != 0 {
		t.Errorf("temp file not removed after failure: %v", left)
	}
	if len(rec.recs) != 1 || rec.recs[0].Error == "" {
		t.Errorf("expected failed attempt to be recorded: %+v", rec.recs)
	}
	if len(pub.evs) != 0 {
		t.Errorf("no event expected on failure, got %+v", pub.evs)
	}
}

func TestTranscribe_ModelUnavailable(t *testing.T) {
	svc := NewService(nil, Config{TempDir: t.TempDir()})

	if svc.Ready() {
		t.Error("service without provider must not be ready")
	}
	_, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Data: strings.NewReader("x")}, Options{})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestTranscribe_UploadLimits(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"too large", strings.Repeat("a", 11), ErrTooLarge},
		{"empty", "", ErrEmptyUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := &fakeProvider{}
			svc := NewService(p, Config{TempDir: dir, MaxUploadBytes: 10})

			_, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Data: strings.NewReader(tt.data)}, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if p.calls != 0 {
				t.Errorf("provider should not be called, got %d calls", p.calls)
			}
			if left := tempEntries(t, dir); len(left) != 0 {
				t.Errorf("temp file not removed: %v", left)
			}
		})
	}
}

func TestTranscribe_CacheHit(t *testing.T) {
	p := &fakeProvider{}
	cache := &memCache{data: map[string][]byte{}}
	svc := NewService(p, Config{TempDir: t.TempDir()}, WithCache(cache))

	audio := []byte("same audio")
	first, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Data: bytes.NewReader(audio)}, Options{Language: "en"})
	if err != nil || first.Cached {
		t.Fatalf("first call: %+v %v", first, err)
	}
	second, err := svc.Transcribe(context.Background(), Upload{Filename: "b.wav", Data: bytes.NewReader(audio)}, Options{Language: "en"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Cached || second.Result.Text != "hello world" {
		t.Errorf("expected cached result, got %+v", second)
	}
	if p.calls != 1 {
		t.Errorf("expected one model call, got %d", p.calls)
	}

	if _, err := svc.Transcribe(context.Background(), Upload{Filename: "c.wav", Data: bytes.NewReader(audio)}, Options{Language: "de"}); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("different language must miss the cache, got %d calls", p.calls)
	}
}

func TestSafeExt(t *testing.T) {
	tests := map[string]string{
		"clip.WAV":            ".wav",
		"a.b.m4a":             ".m4a",
		"noext":               "",
		"../../etc/passwd":    "",
		"evil.sh;rm -rf":      "",
		"x.verylongextension": "",
	}
	for in, want := range tests {
		if got := safeExt(in); got != want {
			t.Errorf("safeExt(%q) = %q, want %q", in, got, want)
		}
	}
}
