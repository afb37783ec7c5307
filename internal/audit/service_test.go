package audit

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/whisperapi/internal/models"
)

type fakeDB struct {
	sql  string
	args []any
	err  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.sql, f.args = sql, args
	return nil, f.err
}

func TestRecordTranscription(t *testing.T) {
	db := &fakeDB{}
	svc := NewService(db)

	err := svc.RecordTranscription(context.Background(), models.TranscriptionLog{
		RequestID: "req-1",
		Source:    models.SourceSync,
		Filename:  "a.mp3",
		Provider:  "openai-whisper",
		Model:     "whisper-1",
		Cached:    true,
	})
	if err != nil {
		t.Fatalf("RecordTranscription() error: %v", err)
	}
	if !strings.Contains(db.sql, "INSERT INTO transcription_logs") {
		t.Errorf("unexpected sql: %s", db.sql)
	}
	if len(db.args) != 12 || db.args[0] != "req-1" || db.args[10] != true {
		t.Errorf("unexpected args: %v", db.args)
	}

	db.err = errors.New("connection refused")
	if err := svc.RecordTranscription(context.Background(), models.TranscriptionLog{}); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestUsageQuery(t *testing.T) {
	query, args := usageQuery(nil, nil)
	if strings.Contains(query, "created_at >=") || len(args) != 0 {
		t.Errorf("expected no date filters, got %q %v", query, args)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	query, args = usageQuery(&start, &end)
	if !strings.Contains(query, "created_at >= $1") || !strings.Contains(query, "created_at <= $2") {
		t.Errorf("expected both placeholders, got %q", query)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %v", args)
	}

	query, args = usageQuery(nil, &end)
	if !strings.Contains(query, "created_at <= $1") || len(args) != 1 {
		t.Errorf("end-only filter should use $1, got %q %v", query, args)
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		provider, model string
		seconds         float64
		want            float64
	}{
		{"openai-whisper", "whisper-1", 600, 0.06},
		{"openai-whisper", "whisper-1", 0, 0},
		{"google-speech", "latest_long", 60, 0.016},
		{"local-whisper", "base", 3600, 0},
		{"openai-whisper", "unknown-model", 60, 0},
	}

	for _, tt := range tests {
		got := EstimateCost(tt.provider, tt.model, tt.seconds)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EstimateCost(%s, %s, %v) = %v, want %v", tt.provider, tt.model, tt.seconds, got, tt.want)
		}
	}
}
