package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// LocalSource mirrors the lifecycle on a directory tree: pending/,
// processing/, completed/ and failed/ subdirectories under a root. It exists
// for development and for ingesting from mounted volumes.
type LocalSource struct {
	root string
	log  *zap.SugaredLogger
}

// NewLocalSource ensures the lifecycle directories exist under root.
func NewLocalSource(root string, log *zap.SugaredLogger) (*LocalSource, error) {
	for _, sub := range []string{"pending", "processing", "completed", "failed"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s dir: %w", sub, err)
		}
	}
	return &LocalSource{root: root, log: log}, nil
}

// ListPending lists non-empty video files under pending/.
func (l *LocalSource) ListPending(ctx context.Context) ([]models.PendingVideo, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, "pending"))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending dir: %w", err)
	}

	var videos []models.PendingVideo
	for _, e := range entries {
		if e.IsDir() || !IsVideoKey(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		videos = append(videos, models.PendingVideo{
			Key:          filepath.Join("pending", e.Name()),
			Name:         BaseName(e.Name()),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
	}
	return videos, nil
}

// MoveToProcessing renames the file into processing/.
func (l *LocalSource) MoveToProcessing(ctx context.Context, key string) (string, error) {
	dest := filepath.Join("processing", filepath.Base(key))
	if err := os.Rename(filepath.Join(l.root, key), filepath.Join(l.root, dest)); err != nil {
		l.log.Warnw("failed to move to processing, continuing in place", "key", key, "error", err)
		return key, nil
	}
	return dest, nil
}

// Download copies the file to destPath.
func (l *LocalSource) Download(ctx context.Context, key, destPath string) error {
	src, err := os.Open(filepath.Join(l.root, key))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	return nil
}

// MoveToCompleted renames the file into completed/. Failures are logged.
func (l *LocalSource) MoveToCompleted(ctx context.Context, key string) error {
	l.moveTo(key, "completed")
	return nil
}

// MoveToFailed renames the file into failed/. Failures are logged.
func (l *LocalSource) MoveToFailed(ctx context.Context, key string) error {
	l.moveTo(key, "failed")
	return nil
}

func (l *LocalSource) moveTo(key, sub string) {
	dest := filepath.Join(l.root, sub, filepath.Base(key))
	if err := os.Rename(filepath.Join(l.root, key), dest); err != nil {
		l.log.Warnw("failed to move file", "key", key, "dest", sub, "error", err)
	}
}
