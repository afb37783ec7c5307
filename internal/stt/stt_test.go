package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

const verboseBody = `{
  "task": "transcribe",
  "language": "english",
  "duration": 4.2,
  "text": "Hello there. General Kenobi.",
  "segments": [
    {"id": 0, "seek": 0, "start": 0.0, "end": 1.5, "text": " Hello there.", "tokens": [50364, 2425], "temperature": 0.0, "avg_logprob": -0.2, "compression_ratio": 1.1, "no_speech_prob": 0.01},
    {"id": 1, "seek": 0, "start": 1.5, "end": 4.2, "text": " General Kenobi.", "tokens": [3873], "temperature": 0.0, "avg_logprob": -0.3, "compression_ratio": 1.2, "no_speech_prob": 0.02}
  ]
}`

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func fakeWhisperServer(t *testing.T, seen *map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if seen != nil {
			*seen = map[string]string{
				"model":           r.FormValue("model"),
				"language":        r.FormValue("language"),
				"prompt":          r.FormValue("prompt"),
				"response_format": r.FormValue("response_format"),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(verboseBody))
	})
	mux.HandleFunc("/v1/models/whisper-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "whisper-1", "object": "model"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAISTT_Transcribe(t *testing.T) {
	var seen map[string]string
	srv := fakeWhisperServer(t, &seen)

	p := NewOpenAISTT(OpenAISTTConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	res, err := p.Transcribe(context.Background(), Request{
		FilePath: writeAudio(t),
		Language: "en",
		Prompt:   "star wars",
	})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if seen["model"] != "whisper-1" {
		t.Errorf("expected model whisper-1, got %q", seen["model"])
	}
	if seen["response_format"] != "verbose_json" {
		t.Errorf("expected verbose_json, got %q", seen["response_format"])
	}
	if seen["language"] != "en" || seen["prompt"] != "star wars" {
		t.Errorf("language/prompt not forwarded: %v", seen)
	}

	if res.Language != "english" {
		t.Errorf("expected language english, got %s", res.Language)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[1].Start != 1.5 || res.Segments[1].End != 4.2 {
		t.Errorf("unexpected segment timing: %+v", res.Segments[1])
	}
	if len(res.Segments[0].Tokens) != 2 {
		t.Errorf("expected tokens to be carried, got %v", res.Segments[0].Tokens)
	}
}

func TestOpenAISTT_Probe(t *testing.T) {
	srv := fakeWhisperServer(t, nil)

	p := NewOpenAISTT(OpenAISTTConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err := p.Probe(context.Background()); err != nil {
		t.Errorf("Probe() error: %v", err)
	}

	missing := NewOpenAISTT(OpenAISTTConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "whisper-9"})
	if err := missing.Probe(context.Background()); err == nil {
		t.Error("expected probe error for unknown model")
	}
}

func TestLoad(t *testing.T) {
	srv := fakeWhisperServer(t, nil)

	p, err := Load(context.Background(), config.STTConfig{
		Backend:      "local",
		LocalBaseURL: srv.URL + "/v1",
		Probe:        true,
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("Load(local) error: %v", err)
	}
	if p.Name() != "local-whisper" || p.Model() != "base" {
		t.Errorf("unexpected provider %s/%s", p.Name(), p.Model())
	}

	if _, err := Load(context.Background(), config.STTConfig{Backend: "vosk"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	_, err = Load(context.Background(), config.STTConfig{
		Backend:      "local",
		LocalBaseURL: "http://127.0.0.1:1/v1",
		Probe:        true,
	})
	if err == nil || !strings.Contains(err.Error(), "probe") {
		t.Errorf("expected probe failure, got %v", err)
	}
}

func TestFromSpeechResults(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: "hello world",
				Words: []*speechpb.WordInfo{
					{Word: "hello", StartTime: durationpb.New(200 * time.Millisecond), EndTime: durationpb.New(time.Second)},
					{Word: "world", StartTime: durationpb.New(time.Second), EndTime: durationpb.New(1800 * time.Millisecond)},
				},
			}},
			ResultEndTime: durationpb.New(2 * time.Second),
			LanguageCode:  "en-us",
		},
		{Alternatives: nil},
		{
			Alternatives:  []*speechpb.SpeechRecognitionAlternative{{Transcript: " second part "}},
			ResultEndTime: durationpb.New(5 * time.Second),
		},
	}

	res := fromSpeechResults(results)

	if res.Text != "hello world second part" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Language != "en-us" {
		t.Errorf("expected language en-us, got %s", res.Language)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[0].Start != 0.2 || res.Segments[0].End != 2 {
		t.Errorf("unexpected first segment timing: %+v", res.Segments[0])
	}
	if res.Segments[1].Start != 2 || res.Segments[1].End != 5 {
		t.Errorf("second segment should start where the first ended: %+v", res.Segments[1])
	}
	if res.Duration != 5 {
		t.Errorf("expected duration 5, got %v", res.Duration)
	}
}

func TestEncodingForFile(t *testing.T) {
	tests := []struct {
		path string
		want speechpb.RecognitionConfig_AudioEncoding
	}{
		{"a.mp3", speechpb.RecognitionConfig_MP3},
		{"a.OGG", speechpb.RecognitionConfig_OGG_OPUS},
		{"a.webm", speechpb.RecognitionConfig_WEBM_OPUS},
		{"a.wav", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
		{"a", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
	}
	for _, tt := range tests {
		if got := encodingForFile(tt.path); got != tt.want {
			t.Errorf("encodingForFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestResult_AudioDuration(t *testing.T) {
	r := &Result{Segments: []Segment{{End: 1}, {End: 3.25}}}
	if got := r.AudioDuration(); got != 3.25 {
		t.Errorf("expected 3.25 from last segment, got %v", got)
	}
	r.Duration = 4
	if got := r.AudioDuration(); got != 4 {
		t.Errorf("expected reported duration 4, got %v", got)
	}
}
