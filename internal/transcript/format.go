// Package transcript renders model results into the response formats clients can request.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

type Format string

const (
	FormatJSON        Format = "json"
	FormatText        Format = "text"
	FormatVerboseJSON Format = "verbose_json"
	FormatVTT         Format = "vtt"
	FormatSRT         Format = "srt"
)

var ErrUnknownFormat = errors.New("unknown response format")

type renderer struct {
	contentType string
	render      func(*stt.Result) ([]byte, error)
}

var renderers = map[Format]renderer{
	FormatJSON:        {"application/json", renderJSON},
	FormatText:        {"text/plain; charset=utf-8", renderText},
	FormatVerboseJSON: {"application/json", renderVerboseJSON},
	FormatVTT:         {"text/vtt; charset=utf-8", func(r *stt.Result) ([]byte, error) { return []byte(VTT(r.Segments)), nil }},
	FormatSRT:         {"application/x-subrip; charset=utf-8", func(r *stt.Result) ([]byte, error) { return []byte(SRT(r.Segments)), nil }},
}

// ParseFormat maps a response_format value to a Format. Empty means json.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatJSON, nil
	}
	if _, ok := renderers[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// Render serializes the result in the given format and returns the body with its content type.
func Render(f Format, res *stt.Result) ([]byte, string, error) {
	r, ok := renderers[f]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	body, err := r.render(res)
	if err != nil {
		return nil, "", err
	}
	return body, r.contentType, nil
}

// FormatTimestamp converts seconds to HH:MM:SS<sep>mmm. Hours are not capped at 99.
// Negative and non-finite inputs render as zero.
func FormatTimestamp(seconds float64, sep string) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	// the epsilon absorbs binary representation error, e.g. 1.001*1000 = 1000.9999999
	totalMillis := int64(math.Floor(seconds*1000 + 1e-6))

	hours := totalMillis / 3_600_000
	minutes := totalMillis % 3_600_000 / 60_000
	secs := totalMillis % 60_000 / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hours, minutes, secs, sep, millis)
}

func SRTTimestamp(seconds float64) string { return FormatTimestamp(seconds, ",") }
func VTTTimestamp(seconds float64) string { return FormatTimestamp(seconds, ".") }

// SRT builds numbered subtitle blocks separated by a blank line.
func SRT(segments []stt.Segment) string {
	lines := make([]string, 0, len(segments)*4)
	for i, s := range segments {
		lines = append(lines,
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%s --> %s", SRTTimestamp(s.Start), SRTTimestamp(s.End)),
			strings.TrimSpace(s.Text),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// VTT builds a WebVTT document.
func VTT(segments []stt.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, s := range segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", VTTTimestamp(s.Start), VTTTimestamp(s.End), strings.TrimSpace(s.Text))
	}
	return b.String()
}

func renderText(r *stt.Result) ([]byte, error) {
	return []byte(r.Text), nil
}

func renderJSON(r *stt.Result) ([]byte, error) {
	return json.Marshal(map[string]string{"text": r.Text})
}

// verboseResponse mirrors OpenAI's verbose_json transcription body.
type verboseResponse struct {
	Task     string        `json:"task"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Text     string        `json:"text"`
	Segments []stt.Segment `json:"segments"`
}

func renderVerboseJSON(r *stt.Result) ([]byte, error) {
	task := r.Task
	if task == "" {
		task = stt.TaskTranscribe
	}
	segments := r.Segments
	if segments == nil {
		segments = []stt.Segment{}
	}
	return json.Marshal(verboseResponse{
		Task:     task,
		Language: r.Language,
		Duration: r.AudioDuration(),
		Text:     r.Text,
		Segments: segments,
	})
}
