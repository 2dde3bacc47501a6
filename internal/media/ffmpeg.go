// Package media wraps the ffmpeg toolchain: probing, audio extraction,
// two-pass loudness normalization and HLS packaging. Every operation runs
// ffmpeg as a subprocess with an explicit argument list.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// Toolchain locates and runs the ffmpeg binaries.
type Toolchain struct {
	ffmpeg  string
	ffprobe string
	log     *zap.SugaredLogger
}

// NewToolchain resolves ffmpeg and ffprobe on PATH.
func NewToolchain(log *zap.SugaredLogger) (*Toolchain, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found on PATH: %w", err)
	}
	return &Toolchain{ffmpeg: ffmpeg, ffprobe: ffprobe, log: log}, nil
}

// Metadata is the probed shape of an input video.
type Metadata struct {
	DurationSeconds *int
	Width           int
	Height          int
	FrameRate       float64
	HasAudio        bool
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads container and stream metadata. Duration stays nil when the
// container does not report one.
func (t *Toolchain) Probe(ctx context.Context, path string) (Metadata, error) {
	out, err := t.run(ctx, t.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Metadata{}, err
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var md Metadata
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil && d > 0 {
		secs := int(math.Round(d))
		md.DurationSeconds = &secs
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if md.Width == 0 {
				md.Width = s.Width
				md.Height = s.Height
				md.FrameRate = parseFrameRate(s.AvgFrameRate)
				if md.FrameRate == 0 {
					md.FrameRate = parseFrameRate(s.RFrameRate)
				}
			}
		case "audio":
			md.HasAudio = true
		}
	}
	return md, nil
}

// ExtractAudio writes a 16 kHz mono PCM WAV suitable for transcription.
func (t *Toolchain) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	_, err := t.run(ctx, t.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	)
	return err
}

// run executes one command and returns stdout. Failures carry the stderr
// tail for diagnosis.
func (t *Toolchain) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.log.Debugw("running media tool", "tool", name, "args", args)
	if err := cmd.Run(); err != nil {
		return nil, &models.MediaToolError{
			Tool:   name,
			Stderr: tail(stderr.String(), 2048),
			Err:    fmt.Errorf("%s failed: %w", name, err),
		}
	}
	return stdout.Bytes(), nil
}

// runStderr executes one command and returns stderr, for passes whose
// payload ffmpeg prints there.
func (t *Toolchain) runStderr(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.log.Debugw("running media tool", "tool", t.ffmpeg, "args", args)
	if err := cmd.Run(); err != nil {
		return "", &models.MediaToolError{
			Tool:   t.ffmpeg,
			Stderr: tail(stderr.String(), 2048),
			Err:    fmt.Errorf("ffmpeg failed: %w", err),
		}
	}
	return stderr.String(), nil
}

func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
