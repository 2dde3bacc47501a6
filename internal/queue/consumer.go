// Package queue is the push-based input mode: instead of polling the
// pending prefix, jobs naming an object key arrive on an asynq queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/runner"
)

// TaskProcessVideo is the task type the consumer handles. Payload:
// {"key": "<object key under the lifecycle bucket>"}.
const TaskProcessVideo = "lingvocast:process"

// Consumer consumes processing jobs from Redis.
type Consumer struct {
	server *asynq.Server
	runner *runner.Runner
	log    *zap.SugaredLogger
}

// Config holds consumer configuration.
type Config struct {
	RedisURL    string
	Concurrency int
}

// NewConsumer builds a consumer delegating each job to r.
func NewConsumer(cfg Config, r *runner.Runner, log *zap.SugaredLogger) (*Consumer, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * time.Minute
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Errorw("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	return &Consumer{server: server, runner: r, log: log}, nil
}

// Start blocks serving the queue until Stop is called.
func (c *Consumer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessVideo, c.handleProcessTask)

	c.log.Infow("queue consumer starting", "task", TaskProcessVideo)
	if err := c.server.Run(mux); err != nil {
		return fmt.Errorf("queue consumer failed: %w", err)
	}
	return nil
}

// Stop shuts the consumer down gracefully.
func (c *Consumer) Stop() {
	c.log.Info("queue consumer shutting down")
	c.server.Shutdown()
}

type processPayload struct {
	Key string `json:"key"`
}

func (c *Consumer) handleProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload processPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if payload.Key == "" {
		return fmt.Errorf("task payload missing key")
	}

	c.log.Infow("processing queued video", "key", payload.Key)
	if err := c.runner.ProcessKey(ctx, payload.Key); err != nil {
		return fmt.Errorf("failed to process %s: %w", payload.Key, err)
	}
	return nil
}
