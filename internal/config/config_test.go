package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "pending/", cfg.S3Input.PendingPrefix)
	assert.Equal(t, 60, cfg.S3Input.PollingIntervalSeconds)
	require.NotNil(t, cfg.S3Input.Enabled)
	assert.True(t, *cfg.S3Input.Enabled)
	assert.Equal(t, "openai", cfg.Transcription.Provider)
	assert.Equal(t, 5, cfg.Transcription.PhraseMinWords)
	assert.Equal(t, 9, cfg.Transcription.PhraseMaxWords)
	assert.InDelta(t, 1.5, cfg.Transcription.MaxGapBetweenWordChunksSeconds, 1e-9)
	assert.InDelta(t, -16, cfg.AudioNorm.TargetLUFS, 1e-9)
	assert.InDelta(t, -1.5, cfg.AudioNorm.TruePeak, 1e-9)
	require.NotNil(t, cfg.AudioNorm.Apply)
	assert.True(t, *cfg.AudioNorm.Apply)
	require.NotNil(t, cfg.HLS.Enabled)
	assert.True(t, *cfg.HLS.Enabled)
	assert.Equal(t, "master.m3u8", cfg.HLS.MasterPlaylistName)
	require.Len(t, cfg.HLS.Renditions, 1)
	assert.Equal(t, "720p", cfg.HLS.Renditions[0].Name)
	assert.Equal(t, "gemini-2.0-flash", cfg.Google.GeminiModel)
	assert.Equal(t, 60, cfg.Google.TranslationChunkSize)
	assert.Len(t, cfg.VideoTopics, 55)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
s3Input:
  bucket: incoming
  pendingPrefix: inbox/
transcription:
  provider: local
  phraseMaxWords: 12
hls:
  enabled: false
google:
  translationChunkSize: 25
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "incoming", cfg.S3Input.Bucket)
	assert.Equal(t, "inbox/", cfg.S3Input.PendingPrefix)
	assert.Equal(t, "processing/", cfg.S3Input.ProcessingPrefix)
	assert.Equal(t, "local", cfg.Transcription.Provider)
	assert.Equal(t, 12, cfg.Transcription.PhraseMaxWords)
	require.NotNil(t, cfg.HLS.Enabled)
	assert.False(t, *cfg.HLS.Enabled)
	assert.Equal(t, 25, cfg.Google.TranslationChunkSize)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("S3_INPUT_BUCKET", "env-bucket")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Google.APIKey)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "env-bucket", cfg.S3Input.Bucket)
}

func TestDefaultVideoTopicsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, topic := range DefaultVideoTopics {
		assert.False(t, seen[topic], "duplicate topic %q", topic)
		seen[topic] = true
	}
}
