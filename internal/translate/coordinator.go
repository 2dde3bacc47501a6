// Package translate turns the phrase view of a transcription into an
// index-aligned subtitle track in the target language. The model is treated
// as unreliable: responses are repaired, realigned by index, padded from the
// source text and retried line-by-line until every line carries the target
// script or the attempt budget runs out.
package translate

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

// Config bounds one coordinator.
type Config struct {
	SourceLanguage string
	TargetLanguage string
	BatchSize      int
	MaxAttempts    int
	ContextLines   int
	ContextChars   int
}

// Coordinator drives batched translation against a Completer.
type Coordinator struct {
	llm gemini.Completer
	cfg Config
	log *zap.SugaredLogger
}

// NewCoordinator applies defaults and returns a ready coordinator.
func NewCoordinator(llm gemini.Completer, cfg Config, log *zap.SugaredLogger) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 60
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = 4
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 4000
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "russian"
	}
	return &Coordinator{llm: llm, cfg: cfg, log: log}
}

// rawLine is one item of the model's response array. Index is a pointer so a
// missing index can be coerced to the positional one.
type rawLine struct {
	Index *int   `json:"index"`
	Text  string `json:"text"`
}

// Translate produces a Translation aligned 1:1 with view.Chunks. Empty input
// short-circuits to an empty track.
func (c *Coordinator) Translate(ctx context.Context, view models.TranscriptionView) (models.Translation, error) {
	out := models.Translation{Chunks: []models.TranslatedChunk{}}
	if len(view.Chunks) == 0 {
		return out, nil
	}

	sourceLines := make([]string, len(view.Chunks))
	for i, ch := range view.Chunks {
		sourceLines[i] = ch.Text
	}
	transcript := truncateContext(view.FullText, c.cfg.ContextChars)

	translated := make([]string, 0, len(view.Chunks))
	for offset := 0; offset < len(view.Chunks); offset += c.cfg.BatchSize {
		end := offset + c.cfg.BatchSize
		if end > len(view.Chunks) {
			end = len(view.Chunks)
		}

		texts, err := c.translateBatch(ctx, transcript, sourceLines, translated, offset, end)
		if err != nil {
			return out, err
		}

		for i, text := range texts {
			src := view.Chunks[offset+i]
			out.Chunks = append(out.Chunks, models.TranslatedChunk{
				Text:       text,
				SourceText: src.Text,
				Timestamp:  src.Timestamp,
			})
		}
		translated = append(translated, texts...)
	}

	joined := make([]string, len(out.Chunks))
	for i, ch := range out.Chunks {
		joined[i] = ch.Text
	}
	out.FullText = strings.Join(joined, " ")
	return out, nil
}

// translateBatch translates sourceLines[offset:end] and returns exactly
// end-offset texts.
func (c *Coordinator) translateBatch(ctx context.Context, transcript string, sourceLines, translated []string, offset, end int) ([]string, error) {
	batch := sourceLines[offset:end]
	prompt := c.buildBatchPrompt(transcript, sourceLines, translated, offset, end)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.llm.Generate(ctx, prompt, gemini.GenOptions{Temperature: 0.2})
		if err == nil {
			var lines []rawLine
			if perr := jsonx.DecodeArray(resp, &lines); perr != nil {
				err = fmt.Errorf("response was not a JSON array: %w", perr)
			} else {
				aligned := c.align(lines, batch, offset)
				return c.repairScript(ctx, aligned, sourceLines, offset), nil
			}
		}

		lastErr = err
		c.log.Warnw("translation batch attempt failed",
			"offset", offset, "attempt", attempt, "error", err)
		if attempt < c.cfg.MaxAttempts {
			if serr := gemini.SleepForRetry(ctx, attempt, err); serr != nil {
				return nil, serr
			}
		}
	}

	return nil, &models.UpstreamError{Service: "translation", Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// align normalizes the model's array into exactly len(batch) texts keyed by
// expected index. Collisions prefer non-empty text; missing indices fall
// back to the source line.
func (c *Coordinator) align(lines []rawLine, batch []string, offset int) []string {
	// Normalize each item: trim, unquote, coerce a missing index to the
	// positional one, substitute source text for empty lines.
	for i := range lines {
		lines[i].Text = stripWrappingQuotes(strings.TrimSpace(lines[i].Text))
		if lines[i].Index == nil && i < len(batch) {
			idx := offset + i
			lines[i].Index = &idx
		}
		if lines[i].Text == "" && i < len(batch) {
			lines[i].Text = batch[i]
		}
	}

	// Truncate or pad to batch length before mapping, using source text as
	// the pad value.
	if len(lines) > len(batch) {
		c.log.Warnw("translation returned extra lines", "offset", offset,
			"expected", len(batch), "got", len(lines))
		lines = lines[:len(batch)]
	}
	for len(lines) < len(batch) {
		idx := offset + len(lines)
		lines = append(lines, rawLine{Index: &idx, Text: batch[len(lines)]})
	}

	byIndex := make(map[int]string, len(lines))
	for _, ln := range lines {
		idx := *ln.Index
		if idx < offset || idx >= offset+len(batch) {
			c.log.Warnw("translation returned unexpected index", "index", idx, "offset", offset)
			continue
		}
		if existing, ok := byIndex[idx]; !ok || existing == "" {
			byIndex[idx] = ln.Text
		}
	}

	out := make([]string, len(batch))
	for i := range batch {
		text, ok := byIndex[offset+i]
		if !ok || text == "" {
			c.log.Warnw("translation missing line, using source text", "index", offset+i)
			text = batch[i]
		}
		out[i] = text
	}
	return out
}

// repairScript retries every line that lacks the target script once, with
// its immediate neighbours as context, then collapses whitespace.
func (c *Coordinator) repairScript(ctx context.Context, texts []string, sourceLines []string, offset int) []string {
	for i, text := range texts {
		if !c.requiresCyrillic() || validate.ContainsCyrillic(text) {
			texts[i] = collapseWhitespace(text)
			continue
		}

		global := offset + i
		retried, err := c.retryLine(ctx, sourceLines, global)
		if err == nil && validate.ContainsCyrillic(retried) {
			texts[i] = collapseWhitespace(retried)
			continue
		}
		c.log.Warnw("line still lacks target script after retry",
			"index", global, "error", err)
		if retried != "" {
			texts[i] = collapseWhitespace(retried)
		} else {
			texts[i] = collapseWhitespace(text)
		}
	}
	return texts
}

// retryLine asks for a single-line retranslation with the previous and next
// source lines as context.
func (c *Coordinator) retryLine(ctx context.Context, sourceLines []string, index int) (string, error) {
	prev, next := "", ""
	if index > 0 {
		prev = sourceLines[index-1]
	}
	if index+1 < len(sourceLines) {
		next = sourceLines[index+1]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate this single subtitle line from %s to %s.\n\n", c.cfg.SourceLanguage, c.cfg.TargetLanguage)
	if prev != "" {
		fmt.Fprintf(&b, "Previous line (context only): %s\n", prev)
	}
	fmt.Fprintf(&b, "Line to translate: %s\n", sourceLines[index])
	if next != "" {
		fmt.Fprintf(&b, "Next line (context only): %s\n", next)
	}
	b.WriteString("\nReturn only the translated line, no quotes, no commentary.")

	resp, err := c.llm.Generate(ctx, b.String(), gemini.GenOptions{Temperature: 0.2})
	if err != nil {
		return "", err
	}
	return stripWrappingQuotes(strings.TrimSpace(resp)), nil
}

// buildBatchPrompt assembles the batch payload with global and neighbouring
// context plus the alignment constraints. translated holds the finished
// lines before offset; the previous-lines block shows those, not the source.
func (c *Coordinator) buildBatchPrompt(transcript string, sourceLines, translated []string, offset, end int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are translating subtitle lines from %s to %s.\n\n", c.cfg.SourceLanguage, c.cfg.TargetLanguage)
	fmt.Fprintf(&b, "Full transcript (truncated, for context only):\n%s\n\n", transcript)

	n := c.cfg.ContextLines
	if offset > 0 && len(translated) >= offset {
		from := offset - n
		if from < 0 {
			from = 0
		}
		b.WriteString("Previous lines (context only, already translated):\n")
		for _, line := range translated[from:offset] {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if end < len(sourceLines) {
		to := end + n
		if to > len(sourceLines) {
			to = len(sourceLines)
		}
		b.WriteString("Upcoming lines (context only, do not translate):\n")
		for _, line := range sourceLines[end:to] {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}

	b.WriteString("Lines to translate:\n[\n")
	for i, line := range sourceLines[offset:end] {
		fmt.Fprintf(&b, "  {\"index\": %d, \"text\": %q}", offset+i, line)
		if offset+i != end-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("]\n\n")

	b.WriteString(`Constraints:
1. Translate every line one-to-one; output exactly as many items as the input.
2. Never merge, split or reorder lines.
3. Never borrow words from neighbouring lines; context lines are context only.
4. Return a JSON array of {"index": <number>, "text": "<translation>"} objects.
5. Keep the index of each item identical to its input index.
6. Return raw JSON without commentary or markdown fences.
7. Preserve punctuation and emphasis of the source line.
8. Transliterate proper names where a standard localization exists.
9. Keep each translation a natural subtitle line, not an explanation.
10. Never leave a text field empty.`)

	return b.String()
}

func (c *Coordinator) requiresCyrillic() bool {
	t := strings.ToLower(c.cfg.TargetLanguage)
	return t == "russian" || t == "ru"
}

// truncateContext keeps the head and tail of the transcript within limit
// characters.
func truncateContext(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	head := limit * 2 / 3
	tail := limit - head
	return s[:head] + "\n...\n" + s[len(s)-tail:]
}

// stripWrappingQuotes removes one layer of matching ASCII or typographic
// quotes around s.
func stripWrappingQuotes(s string) string {
	pairs := [][2]string{
		{`"`, `"`}, {"'", "'"}, {"«", "»"}, {"“", "”"}, {"‘", "’"},
	}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
