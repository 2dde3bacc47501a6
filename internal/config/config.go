package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. It is loaded once at startup and
// read-only afterwards; per-video overrides travel with the request.
type Config struct {
	S3Input          S3Input          `yaml:"s3Input"`
	Storage          Storage          `yaml:"storage"`
	Database         Database         `yaml:"database"`
	Transcription    Transcription    `yaml:"transcription"`
	AudioNorm        AudioNorm        `yaml:"audioNormalization"`
	VideoCompression VideoCompression `yaml:"videoCompression"`
	HLS              HLS              `yaml:"hls"`
	Google           Google           `yaml:"google"`
	Redis            Redis            `yaml:"redis"`
	VideoTopics      []string         `yaml:"videoTopics"`
	TempDir          string           `yaml:"tempDir"`
	OutputDir        string           `yaml:"outputDir"`
}

// S3Input configures the lifecycle bucket videos arrive in.
type S3Input struct {
	Bucket                 string `yaml:"bucket"`
	Endpoint               string `yaml:"endpoint"`
	Region                 string `yaml:"region"`
	AccessKeyID            string `yaml:"accessKeyId"`
	SecretAccessKey        string `yaml:"secretAccessKey"`
	PendingPrefix          string `yaml:"pendingPrefix"`
	ProcessingPrefix       string `yaml:"processingPrefix"`
	CompletedPrefix        string `yaml:"completedPrefix"`
	FailedPrefix           string `yaml:"failedPrefix"`
	Enabled                *bool  `yaml:"enabled"`
	EnablePolling          bool   `yaml:"enablePolling"`
	PollingIntervalSeconds int    `yaml:"pollingIntervalSeconds"`
}

// Storage configures the CDN-served output bucket.
type Storage struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	CDNDomain       string `yaml:"cdnDomain"`
	UploadPrefix    string `yaml:"uploadPrefix"`
}

// Database configures the MySQL-compatible store.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Transcription configures the speech-to-text engine and the segmenter.
type Transcription struct {
	Provider                      string  `yaml:"provider"`
	Model                         string  `yaml:"model"`
	Language                      string  `yaml:"language"`
	PhraseMinWords                int     `yaml:"phraseMinWords"`
	PhraseMaxWords                int     `yaml:"phraseMaxWords"`
	PhraseMinDurationSeconds      float64 `yaml:"phraseMinDurationSeconds"`
	PhraseMaxDurationSeconds      float64 `yaml:"phraseMaxDurationSeconds"`
	WordMinWords                  int     `yaml:"wordMinWords"`
	WordMaxWords                  int     `yaml:"wordMaxWords"`
	MaxGapBetweenWordChunksSeconds float64 `yaml:"maxGapBetweenWordChunksSeconds"`
	PythonExecutable              string  `yaml:"pythonExecutable"`
	OpenAIModel                   string  `yaml:"openaiModel"`
	OpenAIAPIKey                  string  `yaml:"openaiApiKey"`
	Device                        string  `yaml:"device"`
	BeamSize                      int     `yaml:"beamSize"`
	BestOf                        int     `yaml:"bestOf"`
	FP16                          bool    `yaml:"fp16"`
}

// AudioNorm configures two-pass loudness normalization.
type AudioNorm struct {
	Apply         *bool   `yaml:"apply"`
	TargetLUFS    float64 `yaml:"targetLufs"`
	LoudnessRange float64 `yaml:"loudnessRange"`
	TruePeak      float64 `yaml:"truePeak"`
	AudioCodec    string  `yaml:"audioCodec"`
	AudioBitrate  string  `yaml:"audioBitrate"`
}

// VideoCompression configures optional video re-encoding during the
// normalization pass.
type VideoCompression struct {
	Apply       bool   `yaml:"apply"`
	Codec       string `yaml:"codec"`
	Preset      string `yaml:"preset"`
	CRF         int    `yaml:"crf"`
	MaxWidth    int    `yaml:"maxWidth"`
	MaxHeight   int    `yaml:"maxHeight"`
	PixelFormat string `yaml:"pixelFormat"`
	MaxBitrate  string `yaml:"maxBitrate"`
	BufSize     string `yaml:"bufSize"`
	Tune        string `yaml:"tune"`
}

// Rendition is one HLS output ladder entry.
type Rendition struct {
	Name         string `yaml:"name"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	VideoBitrate string `yaml:"videoBitrate"`
	AudioBitrate string `yaml:"audioBitrate"`
}

// HLS configures adaptive packaging.
type HLS struct {
	Enabled            *bool       `yaml:"enabled"`
	IncludeMP4Fallback bool        `yaml:"includeMp4Fallback"`
	SegmentDuration    int         `yaml:"segmentDuration"`
	PlaylistType       string      `yaml:"playlistType"`
	MasterPlaylistName string      `yaml:"masterPlaylistName"`
	VideoCodec         string      `yaml:"videoCodec"`
	AudioCodec         string      `yaml:"audioCodec"`
	Preset             string      `yaml:"preset"`
	KeyframeInterval   int         `yaml:"keyframeInterval"`
	TargetFrameRate    int         `yaml:"targetFrameRate"`
	Renditions         []Rendition `yaml:"renditions"`
}

// Google configures the LLM endpoint used for translation, analysis and
// exercise generation.
type Google struct {
	APIKey               string `yaml:"apiKey"`
	GeminiModel          string `yaml:"geminiModel"`
	TranslationChunkSize int    `yaml:"translationChunkSize"`
	TranslationAttempts  int    `yaml:"translationAttempts"`
}

// Redis configures optional progress events and the queue input mode.
type Redis struct {
	URL string `yaml:"url"`
}

// Load reads the YAML config at path (missing file yields defaults only),
// applies environment overrides for secrets, and normalizes defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

// applyEnv overlays secrets and connection data from the environment.
func (c *Config) applyEnv() {
	setString(&c.S3Input.AccessKeyID, "S3_INPUT_ACCESS_KEY_ID")
	setString(&c.S3Input.SecretAccessKey, "S3_INPUT_SECRET_ACCESS_KEY")
	setString(&c.S3Input.Bucket, "S3_INPUT_BUCKET")
	setString(&c.S3Input.Endpoint, "S3_INPUT_ENDPOINT")
	setString(&c.Storage.AccessKeyID, "STORAGE_ACCESS_KEY_ID")
	setString(&c.Storage.SecretAccessKey, "STORAGE_SECRET_ACCESS_KEY")
	setString(&c.Storage.Bucket, "STORAGE_BUCKET")
	setString(&c.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&c.Storage.CDNDomain, "STORAGE_CDN_DOMAIN")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Database, "DB_NAME")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Google.APIKey, "GEMINI_API_KEY")
	setString(&c.Transcription.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Redis.URL, "REDIS_URL")
}

// Normalize fills defaults for every unset option.
func (c *Config) Normalize() {
	defBool(&c.S3Input.Enabled, true)
	defString(&c.S3Input.PendingPrefix, "pending/")
	defString(&c.S3Input.ProcessingPrefix, "processing/")
	defString(&c.S3Input.CompletedPrefix, "completed/")
	defString(&c.S3Input.FailedPrefix, "failed/")
	defInt(&c.S3Input.PollingIntervalSeconds, 60)

	defString(&c.Storage.UploadPrefix, "videos")

	defInt(&c.Database.Port, 3306)

	defString(&c.Transcription.Provider, "openai")
	defString(&c.Transcription.Language, "english")
	defString(&c.Transcription.OpenAIModel, "whisper-1")
	defString(&c.Transcription.PythonExecutable, "python3")
	defInt(&c.Transcription.PhraseMinWords, 5)
	defInt(&c.Transcription.PhraseMaxWords, 9)
	defFloat(&c.Transcription.PhraseMinDurationSeconds, 1.0)
	defFloat(&c.Transcription.PhraseMaxDurationSeconds, 4.5)
	defInt(&c.Transcription.WordMinWords, 1)
	defInt(&c.Transcription.WordMaxWords, 1)
	defFloat(&c.Transcription.MaxGapBetweenWordChunksSeconds, 1.5)
	defInt(&c.Transcription.BeamSize, 5)
	defInt(&c.Transcription.BestOf, 5)

	defBool(&c.AudioNorm.Apply, true)
	if c.AudioNorm.TargetLUFS == 0 {
		c.AudioNorm.TargetLUFS = -16
	}
	defFloat(&c.AudioNorm.LoudnessRange, 7)
	if c.AudioNorm.TruePeak == 0 {
		c.AudioNorm.TruePeak = -1.5
	}
	defString(&c.AudioNorm.AudioCodec, "aac")
	defString(&c.AudioNorm.AudioBitrate, "192k")

	defString(&c.VideoCompression.Codec, "libx264")
	defString(&c.VideoCompression.PixelFormat, "yuv420p")
	defString(&c.VideoCompression.Preset, "medium")
	defInt(&c.VideoCompression.CRF, 23)

	defBool(&c.HLS.Enabled, true)
	defInt(&c.HLS.SegmentDuration, 4)
	defString(&c.HLS.PlaylistType, "vod")
	defString(&c.HLS.MasterPlaylistName, "master.m3u8")
	defString(&c.HLS.VideoCodec, "libx264")
	defString(&c.HLS.AudioCodec, "aac")
	defString(&c.HLS.Preset, "veryfast")
	defInt(&c.HLS.KeyframeInterval, 48)
	defInt(&c.HLS.TargetFrameRate, 30)
	if len(c.HLS.Renditions) == 0 {
		c.HLS.Renditions = []Rendition{{
			Name:         "720p",
			Width:        1280,
			Height:       720,
			VideoBitrate: "2800k",
			AudioBitrate: "128k",
		}}
	}

	defString(&c.Google.GeminiModel, "gemini-2.0-flash")
	defInt(&c.Google.TranslationChunkSize, 60)
	defInt(&c.Google.TranslationAttempts, 3)

	if len(c.VideoTopics) == 0 {
		c.VideoTopics = append([]string(nil), DefaultVideoTopics...)
	}

	defString(&c.TempDir, os.TempDir())
	defString(&c.OutputDir, "output")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func defString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func defInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func defFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func defBool(dst **bool, def bool) {
	if *dst == nil {
		v := def
		*dst = &v
	}
}
