package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

type Client struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

func NewClient(redisCfg config.RedisConfig, jobsCfg config.JobsConfig) *Client {
	return &Client{
		client:   asynq.NewClient(RedisOpt(redisCfg)),
		maxRetry: jobsCfg.MaxRetry,
		timeout:  jobsCfg.Timeout,
	}
}

// RedisOpt converts the redis config for asynq clients and servers.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTranscriptionRun schedules a job. The job id doubles as task id so a job runs once.
func (c *Client) EnqueueTranscriptionRun(ctx context.Context, payload TranscriptionRunPayload) error {
	return c.enqueue(ctx, TypeTranscriptionRun, payload,
		asynq.TaskID(payload.JobID),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) EnqueueWebhookDeliver(ctx context.Context, payload WebhookDeliverPayload) error {
	return c.enqueue(ctx, TypeWebhookDeliver, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
