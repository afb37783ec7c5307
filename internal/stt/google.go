package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// GoogleSTTConfig holds configuration for the Google Cloud Speech-to-Text backend.
type GoogleSTTConfig struct {
	ProjectID       string
	CredentialsFile string // empty: application default credentials
	Model           string // default: "latest_long"
	DefaultLanguage string // default: "en-US"
}

// GoogleSTT transcribes audio with Cloud Speech-to-Text long-running recognition.
// Audio is sent inline, which the API caps at 10 MB; config.Validate keeps uploads under it.
type GoogleSTT struct {
	cfg    GoogleSTTConfig
	client *speech.Client
}

// NewGoogleSTT creates the speech client. Requires credentials via
// GOOGLE_APPLICATION_CREDENTIALS or the metadata server.
func NewGoogleSTT(ctx context.Context, cfg GoogleSTTConfig) (*GoogleSTT, error) {
	if cfg.Model == "" {
		cfg.Model = "latest_long"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-US"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSTT{cfg: cfg, client: c}, nil
}

func (g *GoogleSTT) Name() string  { return "google-speech" }
func (g *GoogleSTT) Model() string { return g.cfg.Model }

// Close releases the underlying gRPC connection.
func (g *GoogleSTT) Close() error {
	return g.client.Close()
}

func (g *GoogleSTT) Transcribe(ctx context.Context, req Request) (*Result, error) {
	audio, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	op, err := g.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: g.recognitionConfig(req),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("google recognition: %w", err)
	}

	result := fromSpeechResults(resp.GetResults())
	if result.Language == "" {
		result.Language = g.language(req)
	}
	return result, nil
}

func (g *GoogleSTT) recognitionConfig(req Request) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   encodingForFile(req.FilePath),
		LanguageCode:               g.language(req),
		Model:                      g.cfg.Model,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
	}
	if req.Prompt != "" {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: []string{req.Prompt}}}
	}
	return cfg
}

func (g *GoogleSTT) language(req Request) string {
	if req.Language != "" {
		return req.Language
	}
	return g.cfg.DefaultLanguage
}

// encodingForFile picks the declared encoding from the upload's extension.
// WAV and FLAC carry their own headers and are left unspecified.
func encodingForFile(path string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case ".amr":
		return speechpb.RecognitionConfig_AMR
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// fromSpeechResults maps each recognition result onto one segment. A result
// starts at its first word, or where the previous one ended when word offsets are missing.
func fromSpeechResults(results []*speechpb.SpeechRecognitionResult) *Result {
	out := &Result{Task: TaskTranscribe, Segments: make([]Segment, 0, len(results))}
	var texts []string
	prevEnd := 0.0

	for _, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		alt := alts[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}

		start := prevEnd
		end := prevEnd
		if words := alt.GetWords(); len(words) > 0 {
			start = words[0].GetStartTime().AsDuration().Seconds()
			end = words[len(words)-1].GetEndTime().AsDuration().Seconds()
		}
		if r.GetResultEndTime() != nil {
			if e := r.GetResultEndTime().AsDuration().Seconds(); e > end {
				end = e
			}
		}

		if out.Language == "" {
			out.Language = r.GetLanguageCode()
		}
		out.Segments = append(out.Segments, Segment{
			ID:    len(out.Segments),
			Start: start,
			End:   end,
			Text:  " " + text,
		})
		texts = append(texts, text)
		prevEnd = end
	}

	out.Text = strings.Join(texts, " ")
	out.Duration = prevEnd
	return out
}
