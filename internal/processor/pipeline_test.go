package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/media"
	"github.com/lingvocast/ingest-worker/internal/models"
	"github.com/lingvocast/ingest-worker/internal/transcribe"
)

type fakeTools struct {
	probed       bool
	normalized   bool
	packaged     bool
	probeErr     error
	packageErr   error
	calls        []string
	extractInput string
}

func (f *fakeTools) Probe(ctx context.Context, path string) (media.Metadata, error) {
	f.probed = true
	f.calls = append(f.calls, "probe")
	if f.probeErr != nil {
		return media.Metadata{}, f.probeErr
	}
	secs := 42
	return media.Metadata{DurationSeconds: &secs, Width: 1920, Height: 1080, FrameRate: 30, HasAudio: true}, nil
}

func (f *fakeTools) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	f.calls = append(f.calls, "extract")
	f.extractInput = videoPath
	return os.WriteFile(audioPath, []byte("wav"), 0o644)
}

func (f *fakeTools) Normalize(ctx context.Context, inputPath, outputPath string, audio config.AudioNorm, video config.VideoCompression) error {
	f.normalized = true
	f.calls = append(f.calls, "normalize")
	return os.WriteFile(outputPath, []byte("normalized"), 0o644)
}

func (f *fakeTools) PackageHLS(ctx context.Context, inputPath, outputDir string, cfg config.HLS, md media.Metadata) (string, error) {
	f.packaged = true
	f.calls = append(f.calls, "package")
	if f.packageErr != nil {
		return "", f.packageErr
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	master := filepath.Join(outputDir, cfg.MasterPlaylistName)
	return master, os.WriteFile(master, []byte("#EXTM3U"), 0o644)
}

type fakeEngine struct {
	result transcribe.Result
	err    error
}

func (f *fakeEngine) Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error) {
	return f.result, f.err
}

type fakeTranslator struct{ called bool }

func (f *fakeTranslator) Translate(ctx context.Context, view models.TranscriptionView) (models.Translation, error) {
	f.called = true
	chunks := make([]models.TranslatedChunk, len(view.Chunks))
	for i, c := range view.Chunks {
		chunks[i] = models.TranslatedChunk{Text: "перевод", SourceText: c.Text, Timestamp: c.Timestamp}
	}
	return models.Translation{FullText: "перевод", Chunks: chunks}, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, transcript string) (models.Analysis, error) {
	return models.Analysis{
		CEFRLevel:            "A2",
		SpeechSpeed:          "slow",
		GrammarComplexity:    "simple",
		VocabularyComplexity: "basic",
		Topics:               []string{"Technology"},
	}, nil
}

type fakeExercises struct{}

func (fakeExercises) Generate(ctx context.Context, transcript string) ([]models.Exercise, error) {
	vocab := func(word string) models.Exercise {
		return models.Exercise{
			Type: models.ExerciseVocabulary, Word: word,
			Question: "Что означает это слово?",
			Options:  []string{"один", "два", "три"}, CorrectAnswer: 0,
		}
	}
	return []models.Exercise{
		vocab("one"), vocab("two"), vocab("three"),
		{Type: models.ExerciseTopic, Question: "О чём видео?", Options: []string{"а", "б", "в"}, CorrectAnswer: 0},
		{Type: models.ExerciseStatementCheck, Question: "Это правда?", Options: []string{"Да", "Нет", "Не сказано"}, CorrectAnswer: 0},
	}, nil
}

type fakeUploader struct {
	files []string
	trees []string
}

func (f *fakeUploader) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	f.files = append(f.files, key)
	return f.URL(key), nil
}

func (f *fakeUploader) UploadTree(ctx context.Context, localDir, keyPrefix string) error {
	f.trees = append(f.trees, keyPrefix)
	return nil
}

func (f *fakeUploader) URL(key string) string {
	return "https://cdn.test/" + key
}

type fakeRecorder struct {
	inserted []models.ProcessedVideo
	err      error
	pings    int
	pingErr  error
}

func (f *fakeRecorder) Ensure(ctx context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakeRecorder) InsertProcessedVideo(ctx context.Context, pv models.ProcessedVideo) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, pv)
	return int64(len(f.inserted)), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Normalize()
	cfg.TempDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	return cfg
}

func testWords() []models.WordEntry {
	return []models.WordEntry{
		{Text: "hello", Start: 0, End: 0.5},
		{Text: "there", Start: 0.5, End: 1.1},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lesson.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func newTestPipeline(t *testing.T, cfg *config.Config, tools *fakeTools, engine *fakeEngine, rec *fakeRecorder, up *fakeUploader) *Pipeline {
	t.Helper()
	return NewPipeline(
		tools, engine, &fakeTranslator{}, fakeAnalyzer{}, fakeExercises{},
		up, rec, nil, cfg, FullPolicy(), zap.NewNop().Sugar(),
	)
}

func TestProcessFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	tools := &fakeTools{}
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	rec := &fakeRecorder{}
	up := &fakeUploader{}
	p := newTestPipeline(t, cfg, tools, engine, rec, up)

	src := writeSource(t)
	pv, err := p.Process(context.Background(), src, "lesson")
	require.NoError(t, err)

	assert.True(t, tools.probed)
	assert.True(t, tools.normalized)
	assert.True(t, tools.packaged)

	// The record carries the safe name, not the upload name.
	assert.Regexp(t, `^[0-9a-f]{16}\.mp4$`, pv.VideoName)
	require.NotNil(t, pv.DurationSeconds)
	assert.Equal(t, 42, *pv.DurationSeconds)
	assert.Contains(t, pv.VideoURL, "master.m3u8")
	assert.Equal(t, "hello there", pv.Transcription.FullText)
	assert.NotEmpty(t, pv.Translation.Chunks)
	assert.Len(t, pv.Exercises, 5)
	assert.Equal(t, 1, rec.pings)
	require.Len(t, rec.inserted, 1)
	require.Len(t, up.trees, 1)

	// Transcription consumes the original audio; the re-encode waits until
	// the AI stages are done.
	assert.Equal(t, []string{"probe", "extract", "normalize", "package"}, tools.calls)
	assert.NotContains(t, tools.extractInput, "_norm")

	// Source consumed and scratch dir cleaned up.
	assert.NoFileExists(t, src)
	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Local record mirror written.
	records, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestProcessEmptyTranscriptFails(t *testing.T) {
	cfg := testConfig(t)
	engine := &fakeEngine{result: transcribe.Result{Text: "   "}}
	p := newTestPipeline(t, cfg, &fakeTools{}, engine, &fakeRecorder{}, &fakeUploader{})

	_, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.Error(t, err)
	assert.True(t, models.IsSchemaViolation(err))
	assert.Contains(t, err.Error(), "empty transcript")
}

func TestProcessFailureKeepsSource(t *testing.T) {
	cfg := testConfig(t)
	engine := &fakeEngine{err: errors.New("whisper crashed")}
	p := newTestPipeline(t, cfg, &fakeTools{}, engine, &fakeRecorder{}, &fakeUploader{})

	src := writeSource(t)
	_, err := p.Process(context.Background(), src, "lesson")
	require.Error(t, err)

	// The source survives every failure; the scratch dir never does.
	assert.FileExists(t, src)
	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessPersistFailurePropagates(t *testing.T) {
	cfg := testConfig(t)
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	rec := &fakeRecorder{err: errors.New("db down")}
	p := newTestPipeline(t, cfg, &fakeTools{}, engine, rec, &fakeUploader{})

	_, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestProcessMP4FallbackWhenHLSDisabled(t *testing.T) {
	cfg := testConfig(t)
	off := false
	cfg.HLS.Enabled = &off
	tools := &fakeTools{}
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	up := &fakeUploader{}
	p := newTestPipeline(t, cfg, tools, engine, &fakeRecorder{}, up)

	pv, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.NoError(t, err)
	assert.False(t, tools.packaged)
	assert.Contains(t, pv.VideoURL, ".mp4")
	assert.Len(t, up.files, 1)
	assert.Empty(t, up.trees)
}

func TestProcessMP4FallbackWhenHLSFails(t *testing.T) {
	cfg := testConfig(t)
	tools := &fakeTools{packageErr: errors.New("ffmpeg exited 1")}
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	up := &fakeUploader{}
	p := newTestPipeline(t, cfg, tools, engine, &fakeRecorder{}, up)

	pv, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.NoError(t, err)
	assert.True(t, tools.packaged)
	assert.Contains(t, pv.VideoURL, ".mp4")
	assert.Empty(t, up.trees)
}

func TestProcessProbeFailureIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	tools := &fakeTools{probeErr: errors.New("ffprobe missing")}
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	p := newTestPipeline(t, cfg, tools, engine, &fakeRecorder{}, &fakeUploader{})

	pv, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.NoError(t, err)
	assert.Nil(t, pv.DurationSeconds)
}

func TestProcessIdentityTranslationWhenTranslateDisabled(t *testing.T) {
	cfg := testConfig(t)
	engine := &fakeEngine{result: transcribe.Result{Text: "hello there", Words: testWords()}}
	policy := FullPolicy()
	policy.Translate = false
	p := NewPipeline(
		&fakeTools{}, engine, nil, fakeAnalyzer{}, fakeExercises{},
		&fakeUploader{}, &fakeRecorder{}, nil, cfg, policy, zap.NewNop().Sugar(),
	)

	pv, err := p.Process(context.Background(), writeSource(t), "lesson")
	require.NoError(t, err)
	require.Len(t, pv.Translation.Chunks, len(pv.Transcription.Phrases.Chunks))
	for i, c := range pv.Translation.Chunks {
		assert.Equal(t, pv.Transcription.Phrases.Chunks[i].Text, c.Text)
		assert.Equal(t, pv.Transcription.Phrases.Chunks[i].Timestamp, c.Timestamp)
	}
}

func TestSafeID(t *testing.T) {
	a, b := SafeID(), SafeID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}
