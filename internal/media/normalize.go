package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/jsonx"
)

// loudnormStats are the measured values from the analysis pass, fed back
// into the second pass for linear normalization.
type loudnormStats struct {
	InputI            string `json:"input_i"`
	InputTP           string `json:"input_tp"`
	InputLRA          string `json:"input_lra"`
	InputThresh       string `json:"input_thresh"`
	TargetOffset      string `json:"target_offset"`
	NormalizationType string `json:"normalization_type"`
}

// Normalize runs two-pass EBU R128 loudness normalization and optional video
// re-encoding, writing the result to outputPath. When the analysis pass
// fails the audio is copied through untouched rather than failing the video.
func (t *Toolchain) Normalize(ctx context.Context, inputPath, outputPath string, audio config.AudioNorm, video config.VideoCompression) error {
	var stats *loudnormStats
	if audio.Apply == nil || *audio.Apply {
		var err error
		stats, err = t.measureLoudness(ctx, inputPath, audio)
		if err != nil {
			t.log.Warnw("loudness analysis failed, copying audio unchanged", "error", err)
		}
	}

	args := []string{"-y", "-i", inputPath}

	if stats != nil {
		filter := fmt.Sprintf(
			"loudnorm=I=%g:LRA=%g:TP=%g:measured_I=%s:measured_TP=%s:measured_LRA=%s:measured_thresh=%s:offset=%s:linear=true",
			audio.TargetLUFS, audio.LoudnessRange, audio.TruePeak,
			stats.InputI, stats.InputTP, stats.InputLRA, stats.InputThresh, stats.TargetOffset,
		)
		args = append(args,
			"-af", filter,
			"-c:a", audio.AudioCodec,
			"-b:a", audio.AudioBitrate,
		)
	} else {
		args = append(args, "-c:a", "copy")
	}

	if video.Apply {
		args = append(args,
			"-c:v", video.Codec,
			"-preset", video.Preset,
			"-crf", fmt.Sprintf("%d", video.CRF),
			"-pix_fmt", video.PixelFormat,
		)
		if video.MaxWidth > 0 && video.MaxHeight > 0 {
			// Downscale only, then pad to even dimensions for yuv420p.
			scale := fmt.Sprintf(
				"scale=%d:%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2",
				video.MaxWidth, video.MaxHeight,
			)
			args = append(args, "-vf", scale)
		}
		if video.MaxBitrate != "" {
			args = append(args, "-maxrate", video.MaxBitrate)
		}
		if video.BufSize != "" {
			args = append(args, "-bufsize", video.BufSize)
		}
		if video.Tune != "" {
			args = append(args, "-tune", video.Tune)
		}
	} else {
		args = append(args, "-c:v", "copy")
	}

	args = append(args, "-movflags", "+faststart", outputPath)
	_, err := t.run(ctx, t.ffmpeg, args...)
	return err
}

// measureLoudness runs the analysis pass and parses the JSON block ffmpeg
// prints on stderr.
func (t *Toolchain) measureLoudness(ctx context.Context, inputPath string, audio config.AudioNorm) (*loudnormStats, error) {
	filter := fmt.Sprintf(
		"loudnorm=I=%g:LRA=%g:TP=%g:print_format=json",
		audio.TargetLUFS, audio.LoudnessRange, audio.TruePeak,
	)
	stderr, err := t.runStderr(ctx,
		"-hide_banner",
		"-i", inputPath,
		"-af", filter,
		"-f", "null", "-",
	)
	if err != nil {
		return nil, err
	}

	// The stats block is the last JSON object in the log.
	idx := strings.LastIndex(stderr, "{")
	if idx < 0 {
		return nil, fmt.Errorf("no loudnorm stats in ffmpeg output")
	}
	blob, err := jsonx.ExtractObject(stderr[idx:])
	if err != nil {
		return nil, fmt.Errorf("malformed loudnorm stats: %w", err)
	}

	var stats loudnormStats
	if err := json.Unmarshal([]byte(blob), &stats); err != nil {
		return nil, fmt.Errorf("failed to parse loudnorm stats: %w", err)
	}
	if stats.InputI == "" {
		return nil, fmt.Errorf("loudnorm stats missing measured values")
	}
	return &stats, nil
}
