package ingest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/models"
)

// newS3Client builds a client for an S3-compatible endpoint. Path-style
// addressing keeps custom endpoints working.
func newS3Client(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, nil
}

// S3Source drives the lifecycle bucket.
type S3Source struct {
	client *s3.Client
	cfg    config.S3Input
	log    *zap.SugaredLogger
}

// NewS3Source connects to the lifecycle bucket.
func NewS3Source(ctx context.Context, cfg config.S3Input, log *zap.SugaredLogger) (*S3Source, error) {
	client, err := newS3Client(ctx, cfg.Endpoint, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &S3Source{client: client, cfg: cfg, log: log}, nil
}

// ListPending pages through the pending prefix and keeps non-empty video
// objects.
func (s *S3Source) ListPending(ctx context.Context) ([]models.PendingVideo, error) {
	var videos []models.PendingVideo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.PendingPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			size := aws.ToInt64(obj.Size)
			if !IsVideoKey(key) || size == 0 {
				continue
			}
			video := models.PendingVideo{
				Key:  key,
				Name: BaseName(key),
				Size: size,
			}
			if obj.LastModified != nil {
				video.LastModified = obj.LastModified.Unix()
			}
			videos = append(videos, video)
		}
	}
	return videos, nil
}

// MoveToProcessing relocates the object under the processing prefix. On
// failure the original key is returned so the video can still be processed
// where it sits.
func (s *S3Source) MoveToProcessing(ctx context.Context, key string) (string, error) {
	dest := s.cfg.ProcessingPrefix + path.Base(key)
	if err := s.move(ctx, key, dest); err != nil {
		s.log.Warnw("failed to move to processing, continuing in place", "key", key, "error", err)
		return key, nil
	}
	return dest, nil
}

// Download streams the object to destPath using the transfer manager.
func (s *S3Source) Download(ctx context.Context, key, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer f.Close()

	downloader := manager.NewDownloader(s.client)
	if _, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// MoveToCompleted archives a processed object. Failures are logged, not
// returned; the pipeline result already exists.
func (s *S3Source) MoveToCompleted(ctx context.Context, key string) error {
	if err := s.move(ctx, key, s.cfg.CompletedPrefix+path.Base(key)); err != nil {
		s.log.Warnw("failed to move to completed", "key", key, "error", err)
	}
	return nil
}

// MoveToFailed parks a failed object for inspection. Failures are logged,
// not returned.
func (s *S3Source) MoveToFailed(ctx context.Context, key string) error {
	if err := s.move(ctx, key, s.cfg.FailedPrefix+path.Base(key)); err != nil {
		s.log.Warnw("failed to move to failed", "key", key, "error", err)
	}
	return nil
}

// move is copy-then-delete; S3 has no rename.
func (s *S3Source) move(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.cfg.Bucket),
		Key:        aws.String(to),
		CopySource: aws.String(url.PathEscape(s.cfg.Bucket + "/" + from)),
	}); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(from),
	}); err != nil {
		return fmt.Errorf("failed to delete %s after copy: %w", from, err)
	}
	return nil
}

// Publisher uploads pipeline outputs to the CDN-served bucket.
type Publisher struct {
	client *s3.Client
	cfg    config.Storage
	log    *zap.SugaredLogger
}

// NewPublisher connects to the output bucket.
func NewPublisher(ctx context.Context, cfg config.Storage, log *zap.SugaredLogger) (*Publisher, error) {
	client, err := newS3Client(ctx, cfg.Endpoint, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, cfg: cfg, log: log}, nil
}

// UploadFile uploads one file under key and returns its public URL.
func (p *Publisher) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	uploader := manager.NewUploader(p.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentTypeFor(localPath)),
		ACL:         types.ObjectCannedACLPublicRead,
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return p.URL(key), nil
}

// UploadTree uploads every file under localDir, preserving relative paths
// below keyPrefix.
func (p *Publisher) UploadTree(ctx context.Context, localDir, keyPrefix string) error {
	return filepath.WalkDir(localDir, func(fp string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localDir, fp)
		if err != nil {
			return err
		}
		key := keyPrefix + "/" + filepath.ToSlash(rel)
		if _, err := p.UploadFile(ctx, fp, key); err != nil {
			return err
		}
		p.log.Debugw("uploaded", "key", key)
		return nil
	})
}

// URL builds the public CDN URL for key. Without a CDN domain the bucket
// endpoint is used directly.
func (p *Publisher) URL(key string) string {
	if p.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", p.cfg.CDNDomain, key)
	}
	endpoint := strings.TrimSuffix(p.cfg.Endpoint, "/")
	return fmt.Sprintf("%s/%s/%s", endpoint, p.cfg.Bucket, key)
}

// ContentTypeFor maps output file extensions to MIME types; streaming
// playlists and segments need exact types for players.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
