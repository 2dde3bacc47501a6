// Command worker ingests videos from a lifecycle bucket (or a local
// directory) and runs them through the learning-content pipeline:
// normalization, transcription, translation, analysis, exercise generation,
// HLS packaging, upload and persistence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/analyze"
	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/exercise"
	"github.com/lingvocast/ingest-worker/internal/gemini"
	"github.com/lingvocast/ingest-worker/internal/ingest"
	"github.com/lingvocast/ingest-worker/internal/media"
	"github.com/lingvocast/ingest-worker/internal/processor"
	"github.com/lingvocast/ingest-worker/internal/queue"
	"github.com/lingvocast/ingest-worker/internal/runner"
	"github.com/lingvocast/ingest-worker/internal/storage"
	"github.com/lingvocast/ingest-worker/internal/transcribe"
	"github.com/lingvocast/ingest-worker/internal/translate"
)

var (
	flagConfig   string
	flagWatch    bool
	flagQueue    bool
	flagInputDir string
	flagMode     string
	flagLanguage string
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "Video ingestion worker for language-learning content",
		RunE:  run,
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "config.yaml", "path to YAML config")
	root.Flags().BoolVarP(&flagWatch, "watch", "w", false, "poll the pending prefix continuously")
	root.Flags().BoolVar(&flagQueue, "queue", false, "consume jobs from the Redis queue instead of polling")
	root.Flags().StringVar(&flagInputDir, "input-dir", "", "ingest from a local directory instead of S3")
	root.Flags().StringVarP(&flagMode, "mode", "m", "full", "pipeline mode: full, transcribe, ru-audio, no-exercises, no-upload")
	root.Flags().StringVar(&flagLanguage, "language", "", "override the configured audio language for this run")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Secrets commonly live in a local .env during development.
	godotenv.Load()

	log, err := newLogger(flagVerbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	policy, err := parsePolicy(flagMode)
	if err != nil {
		return err
	}

	// Per-run language override, never a config file concern.
	if flagLanguage != "" {
		cfg.Transcription.Language = flagLanguage
	} else if flagMode == "ru-audio" {
		cfg.Transcription.Language = "russian"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, cleanup, err := buildRunner(ctx, cfg, policy, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// Config-driven polling behaves like --watch.
	watch := flagWatch || cfg.S3Input.EnablePolling

	switch {
	case flagQueue:
		consumer, err := queue.NewConsumer(queue.Config{RedisURL: cfg.Redis.URL}, r, log)
		if err != nil {
			return err
		}
		errCh := make(chan error, 1)
		go func() { errCh <- consumer.Start() }()
		select {
		case <-ctx.Done():
			consumer.Stop()
			return nil
		case err := <-errCh:
			return err
		}

	case watch:
		interval := time.Duration(cfg.S3Input.PollingIntervalSeconds) * time.Second
		if err := r.Watch(ctx, interval); err != nil && ctx.Err() == nil {
			return err
		}
		return nil

	default:
		summary, err := r.RunOnce(ctx)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d videos failed", summary.Failed, summary.Listed)
		}
		return nil
	}
}

// buildRunner wires the full dependency graph for the selected policy. The
// returned cleanup closes long-lived connections.
func buildRunner(ctx context.Context, cfg *config.Config, policy processor.StagePolicy, log *zap.SugaredLogger) (*runner.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tools, err := media.NewToolchain(log)
	if err != nil {
		return nil, cleanup, err
	}

	engine, err := buildEngine(cfg.Transcription, log)
	if err != nil {
		return nil, cleanup, err
	}

	var (
		translator processor.Translator
		analyzer   processor.Analyzer
		exercises  processor.ExerciseGenerator
	)
	if policy.Translate || policy.Analyze || policy.Exercises {
		if cfg.Google.APIKey == "" {
			return nil, cleanup, fmt.Errorf("GEMINI_API_KEY is required for mode with LLM stages")
		}
		llm := gemini.NewClient("", cfg.Google.APIKey, cfg.Google.GeminiModel, log)
		translator = translate.NewCoordinator(llm, translate.Config{
			SourceLanguage: cfg.Transcription.Language,
			BatchSize:      cfg.Google.TranslationChunkSize,
			MaxAttempts:    cfg.Google.TranslationAttempts,
		}, log)
		analyzer = analyze.NewAnalyzer(llm, cfg.VideoTopics, log)
		exercises = exercise.NewGenerator(llm, log)
	}

	var uploader processor.Uploader
	if policy.Upload {
		publisher, err := ingest.NewPublisher(ctx, cfg.Storage, log)
		if err != nil {
			return nil, cleanup, err
		}
		uploader = publisher
	}

	var recorder processor.Recorder
	if policy.Persist {
		store, err := storage.Open(cfg.Database, log)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { store.Close() })
		if err := store.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}
		recorder = store
	}

	progress, err := processor.NewProgress(cfg.Redis.URL, log)
	if err != nil {
		log.Warnw("progress publishing disabled", "error", err)
	}
	if progress != nil {
		closers = append(closers, func() { progress.Close() })
	}

	pipeline := processor.NewPipeline(
		tools, engine, translator, analyzer, exercises,
		uploader, recorder, progress, cfg, policy, log,
	)

	source, err := buildSource(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}

	return runner.NewRunner(source, pipeline, cfg.TempDir, log), cleanup, nil
}

func buildSource(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (ingest.Source, error) {
	if flagInputDir != "" {
		return ingest.NewLocalSource(flagInputDir, log)
	}
	if cfg.S3Input.Enabled != nil && !*cfg.S3Input.Enabled {
		return nil, fmt.Errorf("s3 input is disabled: enable it or pass --input-dir")
	}
	if cfg.S3Input.Bucket == "" {
		return nil, fmt.Errorf("no input configured: enable s3Input with a bucket or pass --input-dir")
	}
	return ingest.NewS3Source(ctx, cfg.S3Input, log)
}

func buildEngine(cfg config.Transcription, log *zap.SugaredLogger) (transcribe.Engine, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai transcription provider")
		}
		return transcribe.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Language, log), nil
	case "local":
		return transcribe.NewLocalEngine(transcribe.LocalOptions{
			PythonExecutable: cfg.PythonExecutable,
			Model:            cfg.Model,
			Language:         cfg.Language,
			Device:           cfg.Device,
			BeamSize:         cfg.BeamSize,
			BestOf:           cfg.BestOf,
			FP16:             cfg.FP16,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func parsePolicy(mode string) (processor.StagePolicy, error) {
	switch mode {
	case "full":
		return processor.FullPolicy(), nil
	case "transcribe":
		return processor.StagePolicy{}, nil
	case "ru-audio":
		// Audio already in the target language: everything but translation.
		p := processor.FullPolicy()
		p.Translate = false
		return p, nil
	case "no-exercises":
		p := processor.FullPolicy()
		p.Exercises = false
		return p, nil
	case "no-upload":
		p := processor.FullPolicy()
		p.Upload = false
		return p, nil
	default:
		return processor.StagePolicy{}, fmt.Errorf("unknown mode %q", mode)
	}
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}
