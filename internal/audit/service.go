package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/whisperapi/internal/models"
)

// DB is the subset of *pgxpool.Pool the service uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Service struct {
	db DB
}

func NewService(db DB) *Service {
	return &Service{db: db}
}

// RecordTranscription stores one transcription attempt, failed ones included.
func (s *Service) RecordTranscription(ctx context.Context, rec models.TranscriptionLog) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO transcription_logs (request_id, principal, source, filename, provider, model, language,
		                                 audio_bytes, audio_seconds, latency_ms, cached, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.RequestID, rec.Principal, rec.Source, rec.Filename, rec.Provider, rec.Model, rec.Language,
		rec.AudioBytes, rec.AudioSeconds, rec.LatencyMs, rec.Cached, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert transcription log: %w", err)
	}
	return nil
}

type UsageSummary struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TotalCalls   int     `json:"total_calls"`
	CachedCalls  int     `json:"cached_calls"`
	FailedCalls  int     `json:"failed_calls"`
	AudioSeconds float64 `json:"audio_seconds"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// BilledSeconds excludes cached and failed calls, which never reach the model.
	BilledSeconds    float64 `json:"billed_seconds"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

func (s *Service) GetUsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]UsageSummary, error) {
	query, args := usageQuery(startDate, endDate)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	summaries := []UsageSummary{}
	for rows.Next() {
		var us UsageSummary
		if err := rows.Scan(&us.Provider, &us.Model, &us.TotalCalls, &us.CachedCalls, &us.FailedCalls,
			&us.AudioSeconds, &us.BilledSeconds, &us.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		us.EstimatedCostUSD = EstimateCost(us.Provider, us.Model, us.BilledSeconds)
		summaries = append(summaries, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return summaries, nil
}

func usageQuery(startDate, endDate *time.Time) (string, []any) {
	query := `SELECT provider, model, COUNT(*) AS total_calls,
			         COUNT(*) FILTER (WHERE cached) AS cached_calls,
			         COUNT(*) FILTER (WHERE error <> '') AS failed_calls,
			         COALESCE(SUM(audio_seconds), 0) AS audio_seconds,
			         COALESCE(SUM(audio_seconds) FILTER (WHERE NOT cached AND error = ''), 0) AS billed_seconds,
			         COALESCE(AVG(latency_ms), 0) AS avg_latency_ms
			  FROM transcription_logs WHERE 1=1`
	var args []any
	argIdx := 1

	if startDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *startDate)
		argIdx++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *endDate)
	}

	query += " GROUP BY provider, model ORDER BY total_calls DESC"
	return query, args
}
