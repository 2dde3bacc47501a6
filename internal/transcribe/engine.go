// Package transcribe runs speech-to-text over an extracted audio track and
// returns word-level timings. Two engines exist: the OpenAI Whisper API and
// a local whisper process driven over stdout.
package transcribe

import (
	"context"
	"strings"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// Result is the raw engine output before segmentation.
type Result struct {
	Text     string
	Words    []models.WordEntry
	Language string
}

// Engine transcribes one audio file.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// languageAliases maps human-readable names to ISO 639-1 codes accepted by
// both engines.
var languageAliases = map[string]string{
	"english":    "en",
	"russian":    "ru",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
}

// LanguageCode normalizes a configured language to the engine wire code.
// Unknown values pass through unchanged.
func LanguageCode(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if code, ok := languageAliases[l]; ok {
		return code
	}
	return l
}
