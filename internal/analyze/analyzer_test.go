package analyze

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
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string, opts gemini.GenOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no more responses queued")
}

var catalog = []string{"Technology", "Science", "Education"}

func TestAnalyzeEmptyTranscript(t *testing.T) {
	a := NewAnalyzer(&fakeCompleter{}, catalog, zap.NewNop().Sugar())
	_, err := a.Analyze(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, models.IsSchemaViolation(err))
}

func TestAnalyzeHappyPath(t *testing.T) {
	f := &fakeCompleter{responses: []string{`{
		"cefrLevel": "b2",
		"speechSpeed": "fast",
		"grammarComplexity": "complex",
		"vocabularyComplexity": "advanced",
		"topics": ["science", "Technology"],
		"isAdultContent": false
	}`}}
	a := NewAnalyzer(f, catalog, zap.NewNop().Sugar())

	out, err := a.Analyze(context.Background(), "some transcript text")
	require.NoError(t, err)
	assert.Equal(t, "B2", out.CEFRLevel)
	assert.Equal(t, []string{"Science", "Technology"}, out.Topics)
	assert.False(t, out.IsAdultContent)
}

func TestAnalyzeDefaultsTopicsWhenOmitted(t *testing.T) {
	f := &fakeCompleter{responses: []string{`{
		"cefrLevel": "A1",
		"speechSpeed": "slow",
		"grammarComplexity": "simple",
		"vocabularyComplexity": "basic"
	}`}}
	a := NewAnalyzer(f, catalog, zap.NewNop().Sugar())

	out, err := a.Analyze(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Equal(t, catalog, out.Topics)
}

func TestAnalyzeRetriesWithReinforcedPrompt(t *testing.T) {
	f := &fakeCompleter{responses: []string{
		`{"cefrLevel": "X1", "speechSpeed": "slow", "grammarComplexity": "simple", "vocabularyComplexity": "basic"}`,
		`{"cefrLevel": "A2", "speechSpeed": "slow", "grammarComplexity": "simple", "vocabularyComplexity": "basic"}`,
	}}
	a := NewAnalyzer(f, catalog, zap.NewNop().Sugar())

	out, err := a.Analyze(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Equal(t, "A2", out.CEFRLevel)
	require.Len(t, f.prompts, 2)
	assert.Contains(t, f.prompts[1], "previous answer was rejected")
}

func TestAnalyzeExhaustion(t *testing.T) {
	boom := errors.New("unreachable")
	f := &fakeCompleter{errs: []error{boom, boom}}
	a := NewAnalyzer(f, catalog, zap.NewNop().Sugar())

	_, err := a.Analyze(context.Background(), "transcript")
	var ue *models.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "analysis", ue.Service)
}
