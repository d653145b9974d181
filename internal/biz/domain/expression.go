package domain

import "time"

// MaxExpressionFieldLen caps situation/style length; longer entries are
// discarded by the learner rather than truncated.
const MaxExpressionFieldLen = 30

// Expression is a learned speaking-style rule for a chat
type Expression struct {
	ID             int64
	Situation      string
	Style          string
	ChatID         string
	ContentList    []string
	Count          int
	LastActiveTime time.Time
	CreateDate     time.Time
	Checked        bool
	Rejected       bool
	ModifiedBy     string // "ai" or "user"
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable checks whether the expression may be injected into a reply prompt
func (e *Expression) Usable() bool {
	return e.Checked && !e.Rejected
}
