// Package analyze derives the per-video learning metadata (CEFR level,
// speech speed, complexity ratings, topics, adult-content flag) from the
// plain transcript.
package analyze

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/gemini"
	"github.com/lingvocast/ingest-worker/internal/jsonx"
	"github.com/lingvocast/ingest-worker/internal/models"
	"github.com/lingvocast/ingest-worker/internal/validate"
)

const maxAttempts = 2

// Analyzer asks a Completer for a structured analysis record and normalizes
// it through the validation layer.
type Analyzer struct {
	llm    gemini.Completer
	topics []string
	log    *zap.SugaredLogger
}

// NewAnalyzer builds an analyzer over the given topic catalog.
func NewAnalyzer(llm gemini.Completer, topics []string, log *zap.SugaredLogger) *Analyzer {
	return &Analyzer{llm: llm, topics: topics, log: log}
}

// Analyze produces a validated Analysis for transcript. An empty transcript
// is a schema violation, not an upstream failure.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (models.Analysis, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return models.Analysis{}, models.Violation("transcript", "cannot analyze an empty transcript")
	}

	prompt := a.buildPrompt(transcript, "")
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.Analysis{}, err
		}

		resp, err := a.llm.Generate(ctx, prompt, gemini.GenOptions{Temperature: 0.3})
		if err == nil {
			var raw models.Analysis
			if perr := jsonx.DecodeObject(resp, &raw); perr != nil {
				err = fmt.Errorf("response was not a JSON object: %w", perr)
			} else {
				applyDefaults(&raw, a.topics)
				normalized, verr := validate.Analysis(raw, a.topics)
				if verr == nil {
					return normalized, nil
				}
				err = verr
			}
		}

		lastErr = err
		a.log.Warnw("analysis attempt failed", "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			// Restate the contract that was broken so the retry can fix it.
			prompt = a.buildPrompt(transcript, err.Error())
			if serr := gemini.SleepForRetry(ctx, attempt, err); serr != nil {
				return models.Analysis{}, serr
			}
		}
	}

	return models.Analysis{}, &models.UpstreamError{Service: "analysis", Attempts: maxAttempts, Err: lastErr}
}

// applyDefaults fills the documented fallbacks before validation so a model
// that omits optional fields does not fail the whole record.
func applyDefaults(a *models.Analysis, catalog []string) {
	if len(a.Topics) == 0 {
		n := 3
		if len(catalog) < n {
			n = len(catalog)
		}
		a.Topics = append([]string(nil), catalog[:n]...)
	}
}

func (a *Analyzer) buildPrompt(transcript, previousError string) string {
	var b strings.Builder

	b.WriteString("Analyze this video transcript for a language-learning catalog.\n\n")
	fmt.Fprintf(&b, "Transcript:\n%s\n\n", transcript)

	b.WriteString("Return a single JSON object with exactly these fields:\n")
	fmt.Fprintf(&b, "- cefrLevel: one of %s\n", strings.Join(models.CEFRLevels, ", "))
	fmt.Fprintf(&b, "- speechSpeed: one of %s\n", strings.Join(models.SpeechSpeeds, ", "))
	fmt.Fprintf(&b, "- grammarComplexity: one of %s\n", strings.Join(models.GrammarComplexities, ", "))
	fmt.Fprintf(&b, "- vocabularyComplexity: one of %s\n", strings.Join(models.VocabularyComplexities, ", "))
	b.WriteString("- topics: up to 3 values chosen ONLY from this catalog:\n")
	fmt.Fprintf(&b, "  %s\n", strings.Join(a.topics, ", "))
	b.WriteString("- isAdultContent: true only for explicit sexual content, graphic violence or hard profanity; mild profanity alone is false\n")

	b.WriteString("\nReturn raw JSON without commentary or markdown fences.\n")
	if previousError != "" {
		fmt.Fprintf(&b, "\nYour previous answer was rejected: %s\nFix exactly that and answer again.\n", previousError)
	}
	return b.String()
}
