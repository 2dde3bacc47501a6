package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// LocalOptions configure the local whisper process.
type LocalOptions struct {
	PythonExecutable string
	Model            string
	Language         string
	Device           string
	BeamSize         int
	BestOf           int
	FP16             bool
}

// LocalEngine shells out to a whisper process that prints a verbose JSON
// transcript on stdout.
type LocalEngine struct {
	opts LocalOptions
	log  *zap.SugaredLogger
}

// NewLocalEngine applies defaults and returns an engine.
func NewLocalEngine(opts LocalOptions, log *zap.SugaredLogger) *LocalEngine {
	if opts.PythonExecutable == "" {
		opts.PythonExecutable = "python3"
	}
	if opts.Model == "" {
		opts.Model = "base"
	}
	return &LocalEngine{opts: opts, log: log}
}

// localResponse mirrors whisper's verbose JSON output.
type localResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Word  string  `json:"word"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe runs the whisper process and parses its stdout.
func (e *LocalEngine) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	args := []string{
		"-m", "whisper_timestamped",
		audioPath,
		"--model", e.opts.Model,
		"--output_format", "json",
		"--output_dir", "-",
		"--beam_size", strconv.Itoa(e.opts.BeamSize),
		"--best_of", strconv.Itoa(e.opts.BestOf),
	}
	if code := LanguageCode(e.opts.Language); code != "" {
		args = append(args, "--language", code)
	}
	if e.opts.Device != "" {
		args = append(args, "--device", e.opts.Device)
	}
	if !e.opts.FP16 {
		args = append(args, "--fp16", "False")
	}

	cmd := exec.CommandContext(ctx, e.opts.PythonExecutable, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debugw("running local transcription", "args", args)
	if err := cmd.Run(); err != nil {
		return Result{}, &models.MediaToolError{
			Tool:   "whisper",
			Stderr: tail(stderr.String(), 2048),
			Err:    fmt.Errorf("whisper process failed: %w", err),
		}
	}

	var resp localResponse
	if err := json.Unmarshal(extractJSON(stdout.Bytes()), &resp); err != nil {
		return Result{}, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	result := Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}
	for _, seg := range resp.Segments {
		if len(seg.Words) == 0 {
			result.Words = append(result.Words, spreadSegment(seg.Text, seg.Start, seg.End)...)
			continue
		}
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			result.Words = append(result.Words, models.WordEntry{
				Text:  text,
				Start: w.Start,
				End:   w.End,
			})
		}
	}

	return result, nil
}

// extractJSON trims progress noise the process may print before the JSON
// document.
func extractJSON(out []byte) []byte {
	if i := bytes.IndexByte(out, '{'); i > 0 {
		return out[i:]
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
