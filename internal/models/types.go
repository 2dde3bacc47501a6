package models

// Timestamp is an ordered [start, end] pair in seconds. It marshals as a
// two-element JSON array, matching the subtitle chunk wire format.
type Timestamp [2]float64

// Start returns the start second of the span.
func (t Timestamp) Start() float64 { return t[0] }

// End returns the end second of the span.
func (t Timestamp) End() float64 { return t[1] }

// WordEntry is the atomic timing unit produced by the transcription engine.
type WordEntry struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Chunk is one subtitle unit at some granularity.
type Chunk struct {
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// TranscriptionView is one segmentation of a transcription. FullText is
// identical across all views of the same video; only Chunks differ.
type TranscriptionView struct {
	FullText string  `json:"fullText"`
	Chunks   []Chunk `json:"chunks"`
}

// TranscriptionVariants bundles the three views of one transcription.
// Plain carries no chunks; Phrases and Words are the two chunked views.
type TranscriptionVariants struct {
	Plain    TranscriptionView `json:"plain"`
	Phrases  TranscriptionView `json:"phrases"`
	Words    TranscriptionView `json:"words"`
	FullText string            `json:"fullText"`
}

// TranslatedChunk is a translated subtitle line. Timestamp is copied
// bit-identical from the source phrase chunk; SourceText is the line it
// translated.
type TranslatedChunk struct {
	Text       string    `json:"text"`
	SourceText string    `json:"sourceText"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Translation is the translated counterpart of the phrase view.
type Translation struct {
	FullText string            `json:"fullText"`
	Chunks   []TranslatedChunk `json:"chunks"`
}

// CEFR levels, canonical casing.
var CEFRLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// Canonical enum values for the analysis record.
var (
	SpeechSpeeds           = []string{"slow", "normal", "fast"}
	GrammarComplexities    = []string{"simple", "intermediate", "complex"}
	VocabularyComplexities = []string{"basic", "intermediate", "advanced"}
)

// Analysis is the content-analysis record produced per video.
type Analysis struct {
	CEFRLevel            string   `json:"cefrLevel"`
	SpeechSpeed          string   `json:"speechSpeed"`
	GrammarComplexity    string   `json:"grammarComplexity"`
	VocabularyComplexity string   `json:"vocabularyComplexity"`
	Topics               []string `json:"topics"`
	IsAdultContent       bool     `json:"isAdultContent"`
}

// Exercise kinds.
const (
	ExerciseVocabulary     = "vocabulary"
	ExerciseTopic          = "topic"
	ExerciseStatementCheck = "statementCheck"
)

// Exercise is one auto-generated exercise. Word is set only for the
// vocabulary kind.
type Exercise struct {
	Type          string   `json:"type"`
	Word          string   `json:"word,omitempty"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// ProcessedVideo is the composite record emitted once all stages succeed.
type ProcessedVideo struct {
	VideoName       string                `json:"videoName"`
	VideoURL        string                `json:"videoUrl"`
	DurationSeconds *int                  `json:"durationSeconds"`
	Transcription   TranscriptionVariants `json:"transcription"`
	Translation     Translation           `json:"translation"`
	Analysis        Analysis              `json:"analysis"`
	Exercises       []Exercise            `json:"exercises"`
	IsAdultContent  bool                  `json:"isAdultContent"`
}

// PendingVideo is one entry listed from the pending prefix.
type PendingVideo struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// ProgressUpdate is published per stage boundary when progress events are
// enabled.
type ProgressUpdate struct {
	VideoName string  `json:"videoName"`
	Stage     string  `json:"stage"`
	Percent   float64 `json:"percent"`
	Message   string  `json:"message"`
}
