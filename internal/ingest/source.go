// Package ingest moves videos through the pending/processing/completed/
// failed lifecycle and publishes pipeline outputs to the CDN-served bucket.
// Two sources exist: the S3 lifecycle bucket and a local directory tree
// mirroring the same prefixes.
package ingest

import (
	"context"
	"path"
	"strings"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// videoExtensions are the container formats accepted from the pending
// prefix. Anything else is skipped, not failed.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Source is the lifecycle a batch pass drives videos through. Move
// operations return the key the object now lives under; a failed move
// reports the original key so processing can continue in place.
type Source interface {
	ListPending(ctx context.Context) ([]models.PendingVideo, error)
	MoveToProcessing(ctx context.Context, key string) (string, error)
	Download(ctx context.Context, key, destPath string) error
	MoveToCompleted(ctx context.Context, key string) error
	MoveToFailed(ctx context.Context, key string) error
}

// IsVideoKey reports whether key names an accepted video container.
func IsVideoKey(key string) bool {
	return videoExtensions[strings.ToLower(path.Ext(key))]
}

// BaseName strips the prefix and extension from an object key.
func BaseName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
