package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// OpenAIEngine transcribes through the hosted Whisper API with word
// timestamps.
type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language string
	log      *zap.SugaredLogger
}

// NewOpenAIEngine builds an engine for the given model and language.
func NewOpenAIEngine(apiKey, model, language string, log *zap.SugaredLogger) *OpenAIEngine {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIEngine{
		client:   openai.NewClient(apiKey),
		model:    model,
		language: LanguageCode(language),
		log:      log,
	}
}

// Transcribe uploads the audio file and maps the verbose response to word
// entries. When word granularity is unavailable the segment timings are
// redistributed evenly across the segment's words.
func (e *OpenAIEngine) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	req := openai.AudioRequest{
		Model:    e.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: e.language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	}

	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("whisper transcription failed: %w", err)
	}

	result := Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}

	for _, w := range resp.Words {
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

	if len(result.Words) == 0 && len(resp.Segments) > 0 {
		e.log.Warnw("no word timestamps in response, spreading segment timings",
			"segments", len(resp.Segments))
		for _, seg := range resp.Segments {
			result.Words = append(result.Words, spreadSegment(seg.Text, seg.Start, seg.End)...)
		}
	}

	return result, nil
}

// spreadSegment splits a segment's text on whitespace and assigns each word
// an equal share of the segment duration.
func spreadSegment(text string, start, end float64) []models.WordEntry {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	step := (end - start) / float64(len(fields))
	words := make([]models.WordEntry, len(fields))
	for i, f := range fields {
		words[i] = models.WordEntry{
			Text:  f,
			Start: start + float64(i)*step,
			End:   start + float64(i+1)*step,
		}
	}
	return words
}
