package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingvocast/ingest-worker/internal/models"
)

var testCatalog = []string{"Technology", "Science", "Education", "Travel", "Music"}

func validVariants() models.TranscriptionVariants {
	return models.TranscriptionVariants{
		Plain: models.TranscriptionView{FullText: "hello world", Chunks: []models.Chunk{}},
		Phrases: models.TranscriptionView{
			FullText: "hello world",
			Chunks:   []models.Chunk{{Text: "hello world", Timestamp: models.Timestamp{0, 1}}},
		},
		Words: models.TranscriptionView{
			FullText: "hello world",
			Chunks: []models.Chunk{
				{Text: "hello", Timestamp: models.Timestamp{0, 0.5}},
				{Text: "world", Timestamp: models.Timestamp{0.5, 1}},
			},
		},
		FullText: "hello world",
	}
}

func TestTimestampOrdering(t *testing.T) {
	assert.NoError(t, Timestamp("ts", models.Timestamp{0, 1}))
	assert.NoError(t, Timestamp("ts", models.Timestamp{2, 2}))
	assert.Error(t, Timestamp("ts", models.Timestamp{2, 1}))
	assert.Error(t, Timestamp("ts", models.Timestamp{-1, 0}))
}

func TestVariantsFullTextMismatch(t *testing.T) {
	v := validVariants()
	v.Words.FullText = "different text"
	_, err := Variants(v)
	require.Error(t, err)
	assert.True(t, models.IsSchemaViolation(err))
}

func TestVariantsPlainMustHaveNoChunks(t *testing.T) {
	v := validVariants()
	v.Plain.Chunks = []models.Chunk{{Text: "x", Timestamp: models.Timestamp{0, 1}}}
	_, err := Variants(v)
	assert.Error(t, err)
}

func TestVariantsIdempotent(t *testing.T) {
	v, err := Variants(validVariants())
	require.NoError(t, err)
	again, err := Variants(v)
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestTranslationCountMismatch(t *testing.T) {
	phrases := validVariants().Phrases
	_, err := Translation(models.Translation{}, phrases)
	assert.Error(t, err)
}

func TestTranslationEmptyTextFallsBackToSource(t *testing.T) {
	phrases := validVariants().Phrases
	tr := models.Translation{
		FullText: "привет мир",
		Chunks: []models.TranslatedChunk{
			{Text: "  ", SourceText: "hello world", Timestamp: models.Timestamp{0, 1}},
		},
	}
	out, err := Translation(tr, phrases)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Chunks[0].Text)
}

func TestTranslationTimestampMustMatchSource(t *testing.T) {
	phrases := validVariants().Phrases
	tr := models.Translation{
		Chunks: []models.TranslatedChunk{
			{Text: "привет", SourceText: "hello world", Timestamp: models.Timestamp{0, 2}},
		},
	}
	_, err := Translation(tr, phrases)
	assert.Error(t, err)
}

func TestAnalysisCanonicalizesEnums(t *testing.T) {
	a := models.Analysis{
		CEFRLevel:            "b1",
		SpeechSpeed:          "Normal",
		GrammarComplexity:    "SIMPLE",
		VocabularyComplexity: "basic",
		Topics:               []string{"technology"},
	}
	out, err := Analysis(a, testCatalog)
	require.NoError(t, err)
	assert.Equal(t, "B1", out.CEFRLevel)
	assert.Equal(t, "normal", out.SpeechSpeed)
	assert.Equal(t, "simple", out.GrammarComplexity)
	assert.Equal(t, []string{"Technology"}, out.Topics)
}

func TestAnalysisRejectsUnknownLevel(t *testing.T) {
	a := models.Analysis{
		CEFRLevel:            "Z9",
		SpeechSpeed:          "normal",
		GrammarComplexity:    "simple",
		VocabularyComplexity: "basic",
	}
	_, err := Analysis(a, testCatalog)
	require.Error(t, err)
	assert.True(t, models.IsSchemaViolation(err))
}

func TestNormalizeTopics(t *testing.T) {
	out := NormalizeTopics([]string{"MUSIC", "music", "Unknown", "travel", "science", "education"}, testCatalog)
	assert.Equal(t, []string{"Music", "Travel", "Science"}, out)

	// Nothing survives: fall back to the catalog head.
	out = NormalizeTopics([]string{"Nope"}, testCatalog)
	assert.Equal(t, []string{"Technology", "Science", "Education"}, out)
}

func validExercises() []models.Exercise {
	vocab := func(word string) models.Exercise {
		return models.Exercise{
			Type:          models.ExerciseVocabulary,
			Word:          word,
			Question:      "Что означает это слово?",
			Options:       []string{"кошка", "собака", "птица"},
			CorrectAnswer: 0,
		}
	}
	return []models.Exercise{
		vocab("cat"), vocab("dog"), vocab("bird"),
		{
			Type:          models.ExerciseTopic,
			Question:      "О чём это видео?",
			Options:       []string{"О технологиях", "О музыке", "О еде"},
			CorrectAnswer: 0,
		},
		{
			Type:          models.ExerciseStatementCheck,
			Question:      "Подтверждает ли видео это утверждение?",
			Options:       []string{"Да", "Нет", "Не упоминается"},
			CorrectAnswer: 1,
		},
	}
}

func TestExercisesValidSet(t *testing.T) {
	out, err := Exercises(validExercises())
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestExercisesComposition(t *testing.T) {
	// Drop the topic exercise: composition violation.
	list := validExercises()
	var withoutTopic []models.Exercise
	for _, e := range list {
		if e.Type != models.ExerciseTopic {
			withoutTopic = append(withoutTopic, e)
		}
	}
	_, err := Exercises(withoutTopic)
	assert.Error(t, err)
}

func TestExerciseTypeAliases(t *testing.T) {
	e := validExercises()[4]
	e.Type = "statement_check"
	out, err := Exercise("exercise[0]", e)
	require.NoError(t, err)
	assert.Equal(t, models.ExerciseStatementCheck, out.Type)
}

func TestExerciseQuestionMustBeCyrillic(t *testing.T) {
	e := validExercises()[0]
	e.Question = "What does this word mean?"
	_, err := Exercise("exercise[0]", e)
	assert.Error(t, err)
}

func TestVocabularyScriptRule(t *testing.T) {
	// Latin word with a Latin option: violation.
	e := validExercises()[0]
	e.Options = []string{"кошка", "dog", "птица"}
	_, err := Exercise("exercise[0]", e)
	assert.Error(t, err)

	// Cyrillic word requires Latin options.
	e = validExercises()[0]
	e.Word = "кошка"
	e.Options = []string{"cat", "dog", "bird"}
	_, err = Exercise("exercise[0]", e)
	assert.NoError(t, err)
}

func TestNonVocabularyWordCleared(t *testing.T) {
	e := validExercises()[3]
	e.Word = "stray"
	out, err := Exercise("exercise[0]", e)
	require.NoError(t, err)
	assert.Empty(t, out.Word)
}

func TestProcessedVideoMirrorsAdultFlag(t *testing.T) {
	pv := models.ProcessedVideo{
		VideoName:     "sample",
		VideoURL:      "https://cdn.example.com/videos/abc/master.m3u8",
		Transcription: validVariants(),
		Translation: models.Translation{
			FullText: "привет мир",
			Chunks: []models.TranslatedChunk{
				{Text: "привет мир", SourceText: "hello world", Timestamp: models.Timestamp{0, 1}},
			},
		},
		Analysis: models.Analysis{
			CEFRLevel:            "A2",
			SpeechSpeed:          "slow",
			GrammarComplexity:    "simple",
			VocabularyComplexity: "basic",
			Topics:               []string{"Technology"},
			IsAdultContent:       true,
		},
		Exercises: validExercises(),
	}
	out, err := ProcessedVideo(pv, testCatalog, false)
	require.NoError(t, err)
	assert.True(t, out.IsAdultContent)
}

func TestProcessedVideoAllowsEmptyExercisesWhenPolicySaysSo(t *testing.T) {
	pv := models.ProcessedVideo{
		VideoName:     "sample",
		VideoURL:      "https://cdn.example.com/v.mp4",
		Transcription: validVariants(),
		Translation: models.Translation{
			Chunks: []models.TranslatedChunk{
				{Text: "привет", SourceText: "hello world", Timestamp: models.Timestamp{0, 1}},
			},
		},
		Analysis: models.Analysis{
			CEFRLevel:            "A1",
			SpeechSpeed:          "slow",
			GrammarComplexity:    "simple",
			VocabularyComplexity: "basic",
		},
	}
	_, err := ProcessedVideo(pv, testCatalog, true)
	assert.NoError(t, err)

	_, err = ProcessedVideo(pv, testCatalog, false)
	assert.Error(t, err)
}

func TestContainsScripts(t *testing.T) {
	assert.True(t, ContainsCyrillic("привет"))
	assert.False(t, ContainsCyrillic("hello 123"))
	assert.True(t, ContainsLatin("hello"))
	assert.False(t, ContainsLatin("привет 123"))
	assert.True(t, ContainsCyrillic(strings.Repeat("x", 10)+"й"))
}
