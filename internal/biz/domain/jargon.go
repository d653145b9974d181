package domain

import "time"

// InferenceThresholds is the ascending ladder of occurrence counts at which
// a jargon term is re-inferred. Each threshold fires at most once, tracked
// via LastInferenceCount. A term is complete once count reaches the last
// rung.
var InferenceThresholds = []int{3, 6, 10, 20, 40, 60, 100}

// Limits for jargon mining and inference.
const (
	MaxJargonCandidates   = 30
	MinJargonLen          = 2
	MaxJargonLen          = 15
	MaxJargonContexts     = 50 // stored per term
	ContextsPerOccurrence = 5  // gathered per sighting
	ContextsForInference  = 10 // fed into meaning inference
	JargonCompleteCount   = 100
)

// JargonInference is one stored inference result
type JargonInference struct {
	Meaning    string `json:"meaning"`
	Confidence string `json:"confidence,omitempty"`
	InferredAt int64  `json:"inferred_at"`
}

// Jargon is a candidate slang term tracked per chat
type Jargon struct {
	ID                 int64
	Content            string
	Meaning            string
	ChatID             string
	RawContent         []string
	IsGlobal           bool
	Count              int
	IsJargon           *bool // nil = undecided
	LastInferenceCount *int  // count at last inference, nil if never inferred
	IsComplete         bool
	InferenceWithCtx   *JargonInference
	InferenceBare      *JargonInference
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ShouldInferMeaning checks whether crossing to count warrants an inference
// pass given the count at the last inference (nil if never inferred).
func ShouldInferMeaning(count int, lastInferenceCount *int) bool {
	for _, threshold := range InferenceThresholds {
		if count < threshold {
			continue
		}
		if lastInferenceCount == nil || *lastInferenceCount < threshold {
			return true
		}
	}
	return false
}

// AddContexts appends new context lines, keeping at most MaxJargonContexts
// newest entries.
func (j *Jargon) AddContexts(contexts []string) {
	j.RawContent = append(j.RawContent, contexts...)
	if len(j.RawContent) > MaxJargonContexts {
		j.RawContent = j.RawContent[len(j.RawContent)-MaxJargonContexts:]
	}
}
