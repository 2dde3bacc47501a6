package exercise

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/gemini"
	"github.com/lingvocast/ingest-worker/internal/models"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	prompts   []string
	opts      []gemini.GenOptions
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string, opts gemini.GenOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no more responses queued")
}

const validSet = `[
	{"type": "vocabulary", "word": "cat", "question": "Что значит cat?", "options": ["кошка", "собака", "птица"], "correctAnswer": 0},
	{"type": "vocabulary", "word": "dog", "question": "Что значит dog?", "options": ["кошка", "собака", "птица"], "correctAnswer": 1},
	{"type": "vocabulary", "word": "bird", "question": "Что значит bird?", "options": ["кошка", "собака", "птица"], "correctAnswer": 2},
	{"type": "vocabulary", "word": "fish", "question": "Что значит fish?", "options": ["рыба", "собака", "птица"], "correctAnswer": 0},
	{"type": "topic", "question": "О чём это видео?", "options": ["О животных", "О машинах", "О погоде"], "correctAnswer": 0},
	{"type": "statementCheck", "question": "В видео говорится о кошках?", "options": ["Да", "Нет", "Не упоминается"], "correctAnswer": 0}
]`

func TestGenerateEmptyTranscript(t *testing.T) {
	g := NewGenerator(&fakeCompleter{}, zap.NewNop().Sugar())
	_, err := g.Generate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, models.IsSchemaViolation(err))
}

func TestGenerateHappyPath(t *testing.T) {
	f := &fakeCompleter{responses: []string{validSet}}
	g := NewGenerator(f, zap.NewNop().Sugar())

	out, err := g.Generate(context.Background(), "a cat and a dog")
	require.NoError(t, err)
	require.Len(t, out, 6)
	assert.Equal(t, models.ExerciseVocabulary, out[0].Type)
	assert.Equal(t, models.ExerciseTopic, out[4].Type)
	assert.Equal(t, models.ExerciseStatementCheck, out[5].Type)

	// Structured output needs a low temperature.
	require.Len(t, f.opts, 1)
	assert.LessOrEqual(t, f.opts[0].Temperature, 0.4)
}

func TestGenerateRetriesOnBadComposition(t *testing.T) {
	// First response has no statement check: rejected, retried with the
	// violation restated.
	bad := `[
		{"type": "vocabulary", "word": "cat", "question": "Что значит cat?", "options": ["кошка", "собака", "птица"], "correctAnswer": 0},
		{"type": "vocabulary", "word": "dog", "question": "Что значит dog?", "options": ["кошка", "собака", "птица"], "correctAnswer": 1},
		{"type": "vocabulary", "word": "bird", "question": "Что значит bird?", "options": ["кошка", "собака", "птица"], "correctAnswer": 2},
		{"type": "topic", "question": "О чём это видео?", "options": ["О животных", "О машинах", "О погоде"], "correctAnswer": 0}
	]`
	f := &fakeCompleter{responses: []string{bad, validSet}}
	g := NewGenerator(f, zap.NewNop().Sugar())

	out, err := g.Generate(context.Background(), "a cat and a dog")
	require.NoError(t, err)
	assert.Len(t, out, 6)
	require.Len(t, f.prompts, 2)
	assert.Contains(t, f.prompts[1], "previous answer was rejected")
}

func TestGenerateExhaustion(t *testing.T) {
	f := &fakeCompleter{responses: []string{"garbage", "still garbage"}}
	g := NewGenerator(f, zap.NewNop().Sugar())

	_, err := g.Generate(context.Background(), "transcript")
	var ue *models.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "exercises", ue.Service)
}
