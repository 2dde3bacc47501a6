package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// Progress publishes per-stage updates to a Redis channel so frontends can
// follow a video through the pipeline. A nil Progress is a no-op, keeping
// the publisher optional.
type Progress struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// NewProgress connects to Redis at url. An empty url disables publishing.
func NewProgress(url string, log *zap.SugaredLogger) (*Progress, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &Progress{client: redis.NewClient(opts), log: log}, nil
}

// Publish sends one update on the video's channel. Publish failures are
// logged and dropped; progress is advisory.
func (p *Progress) Publish(ctx context.Context, id string, update models.ProgressUpdate) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	channel := "lingvocast:progress:" + id
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Debugw("progress publish failed", "channel", channel, "error", err)
	}
}

// Close releases the Redis connection.
func (p *Progress) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
