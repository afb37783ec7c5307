// Package events publishes transcription lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nikhilbhutani/whisperapi/internal/metrics"
)

const EventTranscriptionCompleted = "transcription.completed"

// publishTimeout caps how long a broker outage can hold up the caller.
const publishTimeout = 2 * time.Second

// TranscriptionCompleted is emitted after every successful transcription.
type TranscriptionCompleted struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Filename     string    `json:"filename"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Language     string    `json:"language"`
	AudioSeconds float64   `json:"audio_seconds"`
	Segments     int       `json:"segments"`
	Text         string    `json:"text"`
	Cached       bool      `json:"cached"`
	CompletedAt  time.Time `json:"completed_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to a single Kafka topic, or only logs them when disabled.
type Publisher struct {
	writer    messageWriter
	topic     string
	principal string
	enabled   bool
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// New creates a publisher. Without brokers it runs in log-only mode.
func New(cfg Config) *Publisher {
	p := &Publisher{
		topic:     cfg.Topic,
		principal: cfg.Principal,
		timeout:   publishTimeout,
		metrics:   metrics.DefaultMetrics,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		slog.Info("kafka disabled, events are logged only")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	slog.Info("kafka publisher initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return p
}

// PublishCompleted publishes a transcription.completed event keyed by id.
// The write is bounded by a short deadline; an unreachable broker costs the
// caller at most that long and the event is dropped with an error.
func (p *Publisher) PublishCompleted(ctx context.Context, ev TranscriptionCompleted) error {
	return p.publish(ctx, EventTranscriptionCompleted, ev.ID, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	slog.Debug("publishing event", "topic", p.topic, "event", eventType, "key", key)

	if !p.enabled || p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	// the event outlives a dropped client but never waits on the broker for long
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(wctx, msg)
	p.metrics.RecordPublish(p.topic, err)
	if err != nil {
		slog.Error("failed to write event to kafka", "error", err, "topic", p.topic, "key", key)
		return err
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
