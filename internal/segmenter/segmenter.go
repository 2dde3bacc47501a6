// Package segmenter groups word-level timings into the chunk views consumed
// by the subtitle and translation stages.
package segmenter

import (
	"strings"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// Params bounds one chunking pass. MaxDuration <= 0 disables the duration
// constraints (used by the word view).
type Params struct {
	MinWords      int
	MaxWords      int
	MaxGapSeconds float64
	MinDuration   float64
	MaxDuration   float64
}

// PhraseDefaults are the reference phrase-view parameters.
var PhraseDefaults = Params{
	MinWords:      5,
	MaxWords:      9,
	MaxGapSeconds: 1.5,
	MinDuration:   1.0,
	MaxDuration:   4.5,
}

// WordDefaults are the reference word-view parameters.
var WordDefaults = Params{
	MinWords:      1,
	MaxWords:      1,
	MaxGapSeconds: 1.5,
}

// Build produces the three views of one transcription. fullText is the
// canonical text reported by the engine; words must be sorted by start time.
func Build(fullText string, words []models.WordEntry, phrase, word Params) models.TranscriptionVariants {
	fullText = strings.TrimSpace(fullText)
	return models.TranscriptionVariants{
		Plain:    models.TranscriptionView{FullText: fullText, Chunks: []models.Chunk{}},
		Phrases:  models.TranscriptionView{FullText: fullText, Chunks: Group(words, phrase)},
		Words:    models.TranscriptionView{FullText: fullText, Chunks: Group(words, word)},
		FullText: fullText,
	}
}

// Group buffers words in input order and flushes chunks under p. Every input
// word lands in exactly one chunk.
func Group(words []models.WordEntry, p Params) []models.Chunk {
	chunks := []models.Chunk{}
	if len(words) == 0 {
		return chunks
	}

	var buf []models.WordEntry
	var bufEnd float64

	flush := func() {
		if len(buf) == 0 {
			return
		}
		texts := make([]string, len(buf))
		for i, w := range buf {
			texts[i] = w.Text
		}
		chunks = append(chunks, models.Chunk{
			Text:      JoinWords(texts),
			Timestamp: models.Timestamp{buf[0].Start, bufEnd},
		})
		buf = buf[:0]
		bufEnd = 0
	}

	for i, w := range words {
		buf = append(buf, w)
		if w.End > bufEnd {
			bufEnd = w.End
		}
		duration := bufEnd - buf[0].Start
		last := i == len(words)-1

		if last {
			flush()
			break
		}

		next := words[i+1]
		if next.Start-w.End > p.MaxGapSeconds {
			flush()
			continue
		}

		switch {
		case len(buf) >= p.MaxWords:
			flush()
		case p.MaxDuration > 0 && duration >= p.MaxDuration:
			flush()
		case p.MaxDuration > 0 && next.End-buf[0].Start > p.MaxDuration && duration >= p.MinDuration:
			flush()
		case duration >= p.MinDuration && len(buf) >= p.MinWords && endsSentence(w.Text):
			flush()
		}
	}

	return chunks
}

// JoinWords concatenates word texts with standard spacing: no space before
// closing punctuation or apostrophes, none after an opening parenthesis or a
// trailing dash.
func JoinWords(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(t)
			continue
		}
		prev := b.String()
		if noSpaceBefore(t) || strings.HasSuffix(prev, "(") || strings.HasSuffix(prev, "-") {
			b.WriteString(t)
		} else {
			b.WriteByte(' ')
			b.WriteString(t)
		}
	}
	return b.String()
}

func noSpaceBefore(t string) bool {
	switch []rune(t)[0] {
	case '.', ',', '!', '?', ';', ':', ')', ']', '»', '"', '\'', '’':
		return true
	}
	return false
}

func endsSentence(t string) bool {
	t = strings.TrimSpace(t)
	if t == "" {
		return false
	}
	switch []rune(t)[len([]rune(t))-1] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
