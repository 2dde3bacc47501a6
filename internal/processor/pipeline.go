// Package processor orchestrates the per-video pipeline: normalize,
// transcribe, translate, analyze, generate exercises, package, upload and
// persist. Stage failures abort the video and leave its source parked under
// the failed prefix by the caller.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/media"
	"github.com/lingvocast/ingest-worker/internal/models"
	"github.com/lingvocast/ingest-worker/internal/segmenter"
	"github.com/lingvocast/ingest-worker/internal/transcribe"
	"github.com/lingvocast/ingest-worker/internal/validate"
)

// StagePolicy switches optional stages per run. The zero value disables
// everything; use FullPolicy for the default pipeline.
type StagePolicy struct {
	Translate bool
	Analyze   bool
	Exercises bool
	Persist   bool
	Upload    bool
}

// FullPolicy enables every stage.
func FullPolicy() StagePolicy {
	return StagePolicy{Translate: true, Analyze: true, Exercises: true, Persist: true, Upload: true}
}

// MediaTools is the ffmpeg surface the pipeline needs.
type MediaTools interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	Normalize(ctx context.Context, inputPath, outputPath string, audio config.AudioNorm, video config.VideoCompression) error
	PackageHLS(ctx context.Context, inputPath, outputDir string, cfg config.HLS, md media.Metadata) (string, error)
}

// Translator produces the translated subtitle track.
type Translator interface {
	Translate(ctx context.Context, view models.TranscriptionView) (models.Translation, error)
}

// Analyzer produces the learning metadata record.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (models.Analysis, error)
}

// ExerciseGenerator produces the exercise set.
type ExerciseGenerator interface {
	Generate(ctx context.Context, transcript string) ([]models.Exercise, error)
}

// Uploader publishes outputs to the CDN bucket.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, key string) (string, error)
	UploadTree(ctx context.Context, localDir, keyPrefix string) error
	URL(key string) string
}

// Recorder persists the composite record. Ensure is called before each
// insert so a dropped connection reconnects ahead of the write.
type Recorder interface {
	Ensure(ctx context.Context) error
	InsertProcessedVideo(ctx context.Context, pv models.ProcessedVideo) (int64, error)
}

// Pipeline holds the stage implementations and configuration for one worker.
type Pipeline struct {
	tools      MediaTools
	engine     transcribe.Engine
	translator Translator
	analyzer   Analyzer
	exercises  ExerciseGenerator
	uploader   Uploader
	recorder   Recorder
	progress   *Progress
	cfg        *config.Config
	policy     StagePolicy
	log        *zap.SugaredLogger
}

// NewPipeline wires the stages together. Uploader and recorder may be nil
// when the matching policy flags are off.
func NewPipeline(
	tools MediaTools,
	engine transcribe.Engine,
	translator Translator,
	analyzer Analyzer,
	exercises ExerciseGenerator,
	uploader Uploader,
	recorder Recorder,
	progress *Progress,
	cfg *config.Config,
	policy StagePolicy,
	log *zap.SugaredLogger,
) *Pipeline {
	return &Pipeline{
		tools:      tools,
		engine:     engine,
		translator: translator,
		analyzer:   analyzer,
		exercises:  exercises,
		uploader:   uploader,
		recorder:   recorder,
		progress:   progress,
		cfg:        cfg,
		policy:     policy,
		log:        log,
	}
}

// SafeID returns a filesystem- and URL-safe identifier for one pipeline run.
func SafeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Process runs the full pipeline over the downloaded video at sourcePath.
// videoName is the human-readable name used for logs and progress events;
// the persisted record carries the safe name. The scratch dir is removed
// when the run ends, successful or not; the file at sourcePath is removed
// only when the whole run succeeded.
func (p *Pipeline) Process(ctx context.Context, sourcePath, videoName string) (*models.ProcessedVideo, error) {
	id := SafeID()
	safeName := id + strings.ToLower(filepath.Ext(sourcePath))
	workDir := filepath.Join(p.cfg.TempDir, "lingvocast-"+id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	var cleanup []string
	cleanup = append(cleanup, workDir)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			os.RemoveAll(cleanup[i])
		}
	}()

	p.report(ctx, id, videoName, "prepare", 0, "preparing video")

	// Work on a safe-named copy so shell-unfriendly upload names never reach
	// the toolchain. The original stays in place until the run succeeds.
	videoPath := filepath.Join(workDir, safeName)
	if err := copyFile(sourcePath, videoPath); err != nil {
		return nil, fmt.Errorf("failed to stage video: %w", err)
	}

	// Probe failures leave the duration unknown rather than failing the
	// video; the transcription stage is the real audio check.
	md, err := p.tools.Probe(ctx, videoPath)
	if err != nil {
		p.log.Warnw("probe failed, duration unknown", "video", videoName, "error", err)
		md = media.Metadata{HasAudio: true}
	} else if !md.HasAudio {
		return nil, fmt.Errorf("video %s has no audio stream", videoName)
	}

	// Transcription runs on the original audio; normalization waits until
	// the AI stages have succeeded so a failed video never pays for the
	// re-encode.
	p.report(ctx, id, videoName, "transcribe", 15, "transcribing audio")
	audioPath := filepath.Join(workDir, id+".wav")
	if err := p.tools.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, fmt.Errorf("audio extraction failed: %w", err)
	}

	result, err := p.engine.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, models.Violation("transcription.fullText", "video %s produced an empty transcript", videoName)
	}

	variants := segmenter.Build(result.Text, result.Words, p.phraseParams(), p.wordParams())
	variants, err = validate.Variants(variants)
	if err != nil {
		return nil, fmt.Errorf("transcription views invalid: %w", err)
	}

	pv := models.ProcessedVideo{
		VideoName:       safeName,
		DurationSeconds: md.DurationSeconds,
		Transcription:   variants,
		Translation:     models.Translation{Chunks: []models.TranslatedChunk{}},
		Exercises:       []models.Exercise{},
	}

	if p.policy.Translate {
		p.report(ctx, id, videoName, "translate", 35, "translating subtitles")
		pv.Translation, err = p.translator.Translate(ctx, variants.Phrases)
		if err != nil {
			return nil, fmt.Errorf("translation failed: %w", err)
		}
	} else if p.policy.Analyze {
		// No translation stage: the audio is already in the target language,
		// so the track is the phrase view itself.
		pv.Translation = identityTranslation(variants.Phrases)
	}

	if p.policy.Analyze {
		p.report(ctx, id, videoName, "analyze", 50, "analyzing content")
		pv.Analysis, err = p.analyzer.Analyze(ctx, variants.FullText)
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
		pv.IsAdultContent = pv.Analysis.IsAdultContent
	}

	if p.policy.Exercises {
		p.report(ctx, id, videoName, "exercises", 60, "generating exercises")
		pv.Exercises, err = p.exercises.Generate(ctx, variants.FullText)
		if err != nil {
			return nil, fmt.Errorf("exercise generation failed: %w", err)
		}
	}

	if boolVal(p.cfg.AudioNorm.Apply) || p.cfg.VideoCompression.Apply {
		p.report(ctx, id, videoName, "normalize", 70, "normalizing loudness")
		normPath := filepath.Join(workDir, id+"_norm.mp4")
		if !boolVal(p.cfg.AudioNorm.Apply) {
			// Compression only still goes through Normalize; the audio
			// branch degrades to a stream copy.
			p.log.Debugw("audio normalization disabled", "video", videoName)
		}
		if err := p.tools.Normalize(ctx, videoPath, normPath, p.cfg.AudioNorm, p.cfg.VideoCompression); err != nil {
			return nil, fmt.Errorf("normalization failed: %w", err)
		}
		// The upload basename is the safe name, not the intermediate one.
		if err := moveFile(normPath, videoPath); err != nil {
			return nil, fmt.Errorf("failed to rename normalized video: %w", err)
		}
	}

	if p.policy.Upload {
		p.report(ctx, id, videoName, "upload", 85, "packaging and uploading")
		pv.VideoURL, err = p.publish(ctx, id, videoPath, md)
		if err != nil {
			return nil, fmt.Errorf("publish failed: %w", err)
		}
	} else {
		pv.VideoURL = "file://" + videoPath
	}

	if p.policy.Analyze {
		pv, err = validate.ProcessedVideo(pv, p.cfg.VideoTopics, !p.policy.Exercises)
		if err != nil {
			return nil, fmt.Errorf("record validation failed: %w", err)
		}
	}

	if err := p.writeRecord(pv, id); err != nil {
		return nil, err
	}

	if p.policy.Persist {
		p.report(ctx, id, videoName, "persist", 95, "writing to database")
		if err := p.recorder.Ensure(ctx); err != nil {
			return nil, fmt.Errorf("persistence failed: %w", err)
		}
		rowID, err := p.recorder.InsertProcessedVideo(ctx, pv)
		if err != nil {
			return nil, fmt.Errorf("persistence failed: %w", err)
		}
		p.log.Infow("video persisted", "video", videoName, "row_id", rowID)
	}

	// The source outlives every failure path; only a completed run may
	// consume it.
	if err := os.Remove(sourcePath); err != nil {
		p.log.Warnw("failed to remove source video", "path", sourcePath, "error", err)
	}

	p.report(ctx, id, videoName, "done", 100, "completed")
	return &pv, nil
}

// publish packages the video (HLS ladder or plain MP4) and uploads it,
// returning the playback URL.
func (p *Pipeline) publish(ctx context.Context, id, processedPath string, md media.Metadata) (string, error) {
	keyPrefix := p.cfg.Storage.UploadPrefix + "/" + id

	if boolVal(p.cfg.HLS.Enabled) {
		url, err := p.publishHLS(ctx, id, processedPath, keyPrefix, md)
		if err == nil {
			return url, nil
		}
		// Adaptive packaging is best effort; a plain MP4 still plays.
		p.log.Warnw("hls packaging failed, falling back to mp4", "error", err)
	}

	return p.uploader.UploadFile(ctx, processedPath, keyPrefix+"/"+id+".mp4")
}

func (p *Pipeline) publishHLS(ctx context.Context, id, processedPath, keyPrefix string, md media.Metadata) (string, error) {
	hlsDir := filepath.Join(filepath.Dir(processedPath), "hls")
	masterPath, err := p.tools.PackageHLS(ctx, processedPath, hlsDir, p.cfg.HLS, md)
	if err != nil {
		return "", err
	}
	if err := p.uploader.UploadTree(ctx, hlsDir, keyPrefix); err != nil {
		return "", err
	}
	if p.cfg.HLS.IncludeMP4Fallback {
		if _, err := p.uploader.UploadFile(ctx, processedPath, keyPrefix+"/"+id+".mp4"); err != nil {
			return "", err
		}
	}
	return p.uploader.URL(keyPrefix + "/" + filepath.Base(masterPath)), nil
}

// writeRecord mirrors the persisted record to the local output directory.
func (p *Pipeline) writeRecord(pv models.ProcessedVideo, id string) error {
	if p.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(pv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	path := filepath.Join(p.cfg.OutputDir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (p *Pipeline) phraseParams() segmenter.Params {
	t := p.cfg.Transcription
	return segmenter.Params{
		MinWords:      t.PhraseMinWords,
		MaxWords:      t.PhraseMaxWords,
		MaxGapSeconds: t.MaxGapBetweenWordChunksSeconds,
		MinDuration:   t.PhraseMinDurationSeconds,
		MaxDuration:   t.PhraseMaxDurationSeconds,
	}
}

func (p *Pipeline) wordParams() segmenter.Params {
	t := p.cfg.Transcription
	return segmenter.Params{
		MinWords:      t.WordMinWords,
		MaxWords:      t.WordMaxWords,
		MaxGapSeconds: t.MaxGapBetweenWordChunksSeconds,
	}
}

func (p *Pipeline) report(ctx context.Context, id, videoName, stage string, percent float64, message string) {
	p.log.Infow("stage", "video", videoName, "stage", stage, "percent", percent)
	p.progress.Publish(ctx, id, models.ProgressUpdate{
		VideoName: videoName,
		Stage:     stage,
		Percent:   percent,
		Message:   message,
	})
}

// identityTranslation mirrors the phrase view as its own translation track,
// timestamps copied as-is.
func identityTranslation(phrases models.TranscriptionView) models.Translation {
	out := models.Translation{
		FullText: phrases.FullText,
		Chunks:   make([]models.TranslatedChunk, len(phrases.Chunks)),
	}
	for i, c := range phrases.Chunks {
		out.Chunks[i] = models.TranslatedChunk{
			Text:       c.Text,
			SourceText: c.Text,
			Timestamp:  c.Timestamp,
		}
	}
	return out
}

// moveFile renames src to dst, falling back to copy+unlink across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
