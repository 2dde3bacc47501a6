// Package exercise generates the per-video comprehension exercises: a mix
// of vocabulary, topic and statement-check questions written for a
// Russian-speaking learner.
package exercise

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

// Generator asks a Completer for an exercise set and enforces the
// composition rules through the validation layer.
type Generator struct {
	llm gemini.Completer
	log *zap.SugaredLogger
}

// NewGenerator builds a generator.
func NewGenerator(llm gemini.Completer, log *zap.SugaredLogger) *Generator {
	return &Generator{llm: llm, log: log}
}

// Generate produces a validated exercise set for transcript.
func (g *Generator) Generate(ctx context.Context, transcript string) ([]models.Exercise, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, models.Violation("transcript", "cannot generate exercises from an empty transcript")
	}

	prompt := buildPrompt(transcript, "")
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := g.llm.Generate(ctx, prompt, gemini.GenOptions{Temperature: 0.4})
		if err == nil {
			var raw []models.Exercise
			if perr := jsonx.DecodeArray(resp, &raw); perr != nil {
				err = fmt.Errorf("response was not a JSON array: %w", perr)
			} else {
				normalized, verr := validate.Exercises(raw)
				if verr == nil {
					return normalized, nil
				}
				err = verr
			}
		}

		lastErr = err
		g.log.Warnw("exercise generation attempt failed", "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			prompt = buildPrompt(transcript, err.Error())
			if serr := gemini.SleepForRetry(ctx, attempt, err); serr != nil {
				return nil, serr
			}
		}
	}

	return nil, &models.UpstreamError{Service: "exercises", Attempts: maxAttempts, Err: lastErr}
}

func buildPrompt(transcript, previousError string) string {
	var b strings.Builder

	b.WriteString("Create comprehension exercises for a Russian-speaking learner who watched a video with this transcript.\n\n")
	fmt.Fprintf(&b, "Transcript:\n%s\n\n", transcript)

	b.WriteString(`Produce exactly 6 exercises as a JSON array. Each item:
{"type": "...", "word": "...", "question": "...", "options": [...], "correctAnswer": <index>}

Composition:
- 4 exercises of type "vocabulary": pick a word that actually occurs in the transcript, set it as "word", and ask for its translation. If the word is in the source language the options must be Russian translations; if the word is Russian the options must be in the source language.
- 1 exercise of type "topic": ask what the video is about.
- 1 exercise of type "statementCheck": state a claim and ask whether the video confirms it.

Rules:
- Every question is written in Russian.
- Each exercise has 3 or 4 options; exactly one is correct.
- correctAnswer is the zero-based index of the correct option.
- Omit "word" for non-vocabulary exercises.
- Return raw JSON without commentary or markdown fences.
`)

	if previousError != "" {
		fmt.Fprintf(&b, "\nYour previous answer was rejected: %s\nFix exactly that and answer again.\n", previousError)
	}
	return b.String()
}
