// Package validate enforces the typed contracts between pipeline stages.
// Every validator is total: it returns a normalized copy of its input or a
// SchemaViolationError carrying the path of the offending field. Validators
// are idempotent; running one over its own output is a no-op.
package validate

import (
	"fmt"
	"strings"

	"github.com/lingvocast/ingest-worker/internal/models"
)

// Timestamp checks the ordered-pair invariant.
func Timestamp(path string, ts models.Timestamp) error {
	if ts.Start() < 0 || ts.End() < 0 {
		return models.Violation(path, "timestamp seconds must be non-negative, got [%v, %v]", ts.Start(), ts.End())
	}
	if ts.End() < ts.Start() {
		return models.Violation(path, "timestamp end %v precedes start %v", ts.End(), ts.Start())
	}
	return nil
}

// Chunk normalizes one subtitle chunk.
func Chunk(path string, c models.Chunk) (models.Chunk, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return c, models.Violation(path+".text", "chunk text is empty")
	}
	if err := Timestamp(path+".timestamp", c.Timestamp); err != nil {
		return c, err
	}
	return c, nil
}

// TranscriptionView normalizes a view and all of its chunks.
func TranscriptionView(path string, v models.TranscriptionView) (models.TranscriptionView, error) {
	v.FullText = strings.TrimSpace(v.FullText)
	if v.Chunks == nil {
		v.Chunks = []models.Chunk{}
	}
	for i, c := range v.Chunks {
		nc, err := Chunk(fmt.Sprintf("%s.chunks[%d]", path, i), c)
		if err != nil {
			return v, err
		}
		v.Chunks[i] = nc
	}
	return v, nil
}

// Variants enforces the cross-view fullText equality invariant and that the
// plain view carries no chunks.
func Variants(v models.TranscriptionVariants) (models.TranscriptionVariants, error) {
	var err error
	if v.Plain, err = TranscriptionView("transcription.plain", v.Plain); err != nil {
		return v, err
	}
	if v.Phrases, err = TranscriptionView("transcription.phrases", v.Phrases); err != nil {
		return v, err
	}
	if v.Words, err = TranscriptionView("transcription.words", v.Words); err != nil {
		return v, err
	}
	v.FullText = strings.TrimSpace(v.FullText)

	if len(v.Plain.Chunks) != 0 {
		return v, models.Violation("transcription.plain.chunks", "plain view must carry no chunks, got %d", len(v.Plain.Chunks))
	}
	for name, view := range map[string]models.TranscriptionView{
		"transcription.plain":   v.Plain,
		"transcription.phrases": v.Phrases,
		"transcription.words":   v.Words,
	} {
		if view.FullText != v.FullText {
			return v, models.Violation(name+".fullText", "fullText differs across views")
		}
	}
	return v, nil
}

// Translation normalizes a translation against its source phrase view:
// chunk counts match and timestamps are copied bit-identical. Empty
// translated text falls back to the source line rather than violating,
// matching the translator's fallback contract.
func Translation(t models.Translation, phrases models.TranscriptionView) (models.Translation, error) {
	if t.Chunks == nil {
		t.Chunks = []models.TranslatedChunk{}
	}
	if len(t.Chunks) != len(phrases.Chunks) {
		return t, models.Violation("translation.chunks", "expected %d chunks to align with phrase view, got %d", len(phrases.Chunks), len(t.Chunks))
	}
	for i, c := range t.Chunks {
		path := fmt.Sprintf("translation.chunks[%d]", i)
		c.Text = strings.TrimSpace(c.Text)
		c.SourceText = strings.TrimSpace(c.SourceText)
		if c.Text == "" {
			c.Text = c.SourceText
		}
		if c.Text == "" {
			return t, models.Violation(path+".text", "translated text and source fallback are both empty")
		}
		if c.Timestamp != phrases.Chunks[i].Timestamp {
			return t, models.Violation(path+".timestamp", "timestamp differs from phrase chunk %d", i)
		}
		t.Chunks[i] = c
	}
	t.FullText = strings.TrimSpace(t.FullText)
	return t, nil
}

// Analysis normalizes enum casing, maps topics through the catalog and
// applies the documented defaults.
func Analysis(a models.Analysis, catalog []string) (models.Analysis, error) {
	var err error
	if a.CEFRLevel, err = canonical("analysis.cefrLevel", a.CEFRLevel, models.CEFRLevels); err != nil {
		return a, err
	}
	if a.SpeechSpeed, err = canonical("analysis.speechSpeed", a.SpeechSpeed, models.SpeechSpeeds); err != nil {
		return a, err
	}
	if a.GrammarComplexity, err = canonical("analysis.grammarComplexity", a.GrammarComplexity, models.GrammarComplexities); err != nil {
		return a, err
	}
	if a.VocabularyComplexity, err = canonical("analysis.vocabularyComplexity", a.VocabularyComplexity, models.VocabularyComplexities); err != nil {
		return a, err
	}

	a.Topics = NormalizeTopics(a.Topics, catalog)
	return a, nil
}

// NormalizeTopics maps raw topics through a case-insensitive catalog lookup,
// drops unknown values, clamps to three and substitutes the head of the
// catalog when nothing survives.
func NormalizeTopics(raw []string, catalog []string) []string {
	byLower := make(map[string]string, len(catalog))
	for _, t := range catalog {
		byLower[strings.ToLower(t)] = t
	}

	var out []string
	seen := make(map[string]bool)
	for _, t := range raw {
		canon, ok := byLower[strings.ToLower(strings.TrimSpace(t))]
		if !ok || seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		n := 3
		if len(catalog) < n {
			n = len(catalog)
		}
		out = append(out, catalog[:n]...)
	}
	return out
}

// Exercise normalizes a single exercise. path is the indexed prefix, e.g.
// "exercise[2]".
func Exercise(path string, e models.Exercise) (models.Exercise, error) {
	e.Type = strings.TrimSpace(e.Type)
	switch strings.ToLower(e.Type) {
	case strings.ToLower(models.ExerciseVocabulary):
		e.Type = models.ExerciseVocabulary
	case strings.ToLower(models.ExerciseTopic):
		e.Type = models.ExerciseTopic
	case strings.ToLower(models.ExerciseStatementCheck), "statement_check", "statement":
		e.Type = models.ExerciseStatementCheck
	default:
		return e, models.Violation(path+".type", "unknown exercise type %q", e.Type)
	}

	e.Question = strings.TrimSpace(e.Question)
	if e.Question == "" {
		return e, models.Violation(path+".question", "question is empty")
	}
	if !ContainsCyrillic(e.Question) {
		return e, models.Violation(path+".question", "question must contain Cyrillic")
	}

	if len(e.Options) != 3 && len(e.Options) != 4 {
		return e, models.Violation(path+".options", "expected 3 or 4 options, got %d", len(e.Options))
	}
	for i, opt := range e.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return e, models.Violation(fmt.Sprintf("%s.options[%d]", path, i), "option is empty")
		}
		e.Options[i] = opt
	}

	if e.CorrectAnswer < 0 || e.CorrectAnswer >= len(e.Options) {
		return e, models.Violation(path+".correctAnswer", "index %d out of range for %d options", e.CorrectAnswer, len(e.Options))
	}

	e.Word = strings.TrimSpace(e.Word)
	if e.Type == models.ExerciseVocabulary {
		if e.Word == "" {
			return e, models.Violation(path+".word", "vocabulary exercise requires a word")
		}
		// Script rule: the tested word and its options use disjoint alphabets.
		if ContainsLatin(e.Word) {
			for i, opt := range e.Options {
				if !ContainsCyrillic(opt) {
					return e, models.Violation(fmt.Sprintf("%s.options[%d]", path, i), "Latin word requires Cyrillic options")
				}
			}
		} else if ContainsCyrillic(e.Word) {
			for i, opt := range e.Options {
				if !ContainsLatin(opt) {
					return e, models.Violation(fmt.Sprintf("%s.options[%d]", path, i), "Cyrillic word requires Latin options")
				}
			}
		}
	} else {
		e.Word = ""
	}

	return e, nil
}

// Exercises normalizes every exercise and then checks the catalog
// composition: 3-4 vocabulary, exactly 1 topic, at least 1 statement check,
// 5 or 6 in total.
func Exercises(list []models.Exercise) ([]models.Exercise, error) {
	if list == nil {
		list = []models.Exercise{}
	}
	counts := map[string]int{}
	for i, e := range list {
		ne, err := Exercise(fmt.Sprintf("exercise[%d]", i), e)
		if err != nil {
			return list, err
		}
		list[i] = ne
		counts[ne.Type]++
	}

	if n := counts[models.ExerciseVocabulary]; n < 3 || n > 4 {
		return list, models.Violation("exercises", "expected 3 or 4 vocabulary exercises, got %d", n)
	}
	if n := counts[models.ExerciseTopic]; n != 1 {
		return list, models.Violation("exercises", "expected exactly 1 topic exercise, got %d", n)
	}
	if n := counts[models.ExerciseStatementCheck]; n < 1 {
		return list, models.Violation("exercises", "expected at least 1 statement check exercise, got %d", n)
	}
	if len(list) < 5 || len(list) > 6 {
		return list, models.Violation("exercises", "expected 5 or 6 exercises, got %d", len(list))
	}
	return list, nil
}

// ProcessedVideo validates the composite record before persistence.
// allowEmptyExercises admits the no-exercises pipeline mode.
func ProcessedVideo(pv models.ProcessedVideo, catalog []string, allowEmptyExercises bool) (models.ProcessedVideo, error) {
	pv.VideoName = strings.TrimSpace(pv.VideoName)
	if pv.VideoName == "" {
		return pv, models.Violation("videoName", "video name is empty")
	}
	pv.VideoURL = strings.TrimSpace(pv.VideoURL)
	if pv.VideoURL == "" {
		return pv, models.Violation("videoUrl", "video URL is empty")
	}
	if pv.DurationSeconds != nil && *pv.DurationSeconds < 0 {
		return pv, models.Violation("durationSeconds", "duration %d is negative", *pv.DurationSeconds)
	}

	var err error
	if pv.Transcription, err = Variants(pv.Transcription); err != nil {
		return pv, err
	}
	if pv.Translation, err = Translation(pv.Translation, pv.Transcription.Phrases); err != nil {
		return pv, err
	}
	if pv.Analysis, err = Analysis(pv.Analysis, catalog); err != nil {
		return pv, err
	}
	if allowEmptyExercises && len(pv.Exercises) == 0 {
		pv.Exercises = []models.Exercise{}
	} else if pv.Exercises, err = Exercises(pv.Exercises); err != nil {
		return pv, err
	}

	pv.IsAdultContent = pv.Analysis.IsAdultContent
	return pv, nil
}

func canonical(path, value string, allowed []string) (string, error) {
	v := strings.TrimSpace(value)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a, nil
		}
	}
	return value, models.Violation(path, "%q is not one of %v", value, allowed)
}
