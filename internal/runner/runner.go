// Package runner drives batches of videos through the pipeline: one-shot
// passes over the pending prefix and a polling watch loop. Videos are
// processed sequentially; a tick that arrives while a pass is still running
// is skipped, never queued.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/ingest"
	"github.com/lingvocast/ingest-worker/internal/models"
)

// VideoProcessor runs the per-video pipeline.
type VideoProcessor interface {
	Process(ctx context.Context, sourcePath, videoName string) (*models.ProcessedVideo, error)
}

// Summary reports one batch pass.
type Summary struct {
	Listed    int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Runner binds a source to a processor.
type Runner struct {
	source     ingest.Source
	processor  VideoProcessor
	tempDir    string
	log        *zap.SugaredLogger
	processing atomic.Bool
}

// NewRunner builds a runner downloading into tempDir.
func NewRunner(source ingest.Source, processor VideoProcessor, tempDir string, log *zap.SugaredLogger) *Runner {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Runner{source: source, processor: processor, tempDir: tempDir, log: log}
}

// RunOnce processes every currently pending video and returns a summary.
// Individual video failures are recorded, not propagated; only listing
// errors fail the pass.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()

	pending, err := r.source.ListPending(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list pending videos: %w", err)
	}

	summary := Summary{Listed: len(pending)}
	if len(pending) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}
	r.log.Infow("batch pass starting", "pending", len(pending))

	for _, video := range pending {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		videoStart := time.Now()
		if err := r.ProcessKey(ctx, video.Key); err != nil {
			summary.Failed++
			r.log.Errorw("video failed", "video", video.Name, "error", err,
				"elapsed", time.Since(videoStart))
			continue
		}
		summary.Succeeded++
		r.log.Infow("video completed", "video", video.Name,
			"elapsed", time.Since(videoStart))
	}

	summary.Elapsed = time.Since(start)
	r.log.Infow("batch pass finished",
		"listed", summary.Listed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// ProcessKey drives a single object through the lifecycle: claim, download,
// process, archive. On failure the object is parked under the failed prefix
// and the error returned.
func (r *Runner) ProcessKey(ctx context.Context, key string) error {
	name := ingest.BaseName(key)

	claimed, err := r.source.MoveToProcessing(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", key, err)
	}

	localPath := filepath.Join(r.tempDir, filepath.Base(claimed))
	if err := r.source.Download(ctx, claimed, localPath); err != nil {
		r.source.MoveToFailed(ctx, claimed)
		return fmt.Errorf("failed to download %s: %w", claimed, err)
	}
	// The processor consumes the local file; remove it here only if it was
	// left behind by an early failure.
	defer os.Remove(localPath)

	if _, err := r.processor.Process(ctx, localPath, name); err != nil {
		r.source.MoveToFailed(ctx, claimed)
		return err
	}

	return r.source.MoveToCompleted(ctx, claimed)
}

// Watch polls the pending prefix until ctx is done. A tick arriving while
// the previous pass still runs is skipped with a log line.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	r.log.Infow("watch loop starting", "interval", interval)

	// Immediate first pass; the ticker covers the rest.
	r.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("watch loop stopping")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.processing.CompareAndSwap(false, true) {
		r.log.Warn("previous pass still running, skipping tick")
		return
	}
	defer r.processing.Store(false)

	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Errorw("batch pass failed", "error", err)
	}
}
