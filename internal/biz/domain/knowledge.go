package domain

import "time"

// Knowledge extraction limits.
const (
	MaxTriplesPerMessage    = 5
	MinKnowledgeTextLen     = 10
	DefaultTripleConfidence = 0.8
)

// KnowledgeTriple is one subject-predicate-object fact extracted from chat
type KnowledgeTriple struct {
	ID            int64
	Subject       string
	SubjectType   string
	Predicate     string
	Object        string
	ObjectType    string
	Confidence    float64
	SourceChatID  string
	SourceMessage string
	CreatedAt     time.Time
}

// Entity is a named entity with mention statistics
type Entity struct {
	ID           int64
	Name         string
	Type         string
	MentionCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
