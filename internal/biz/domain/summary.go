package domain

import "time"

// Summarization gates.
const (
	MinMessagesForSummary = 10
	SummaryInterval       = 30 * time.Minute
)

// ChatHistorySummary is one periodic digest of a chat segment
type ChatHistorySummary struct {
	ID           int64
	ChatID       string
	StartTime    time.Time
	EndTime      time.Time
	OriginalText string
	Summary      string
	Theme        string
	Participants []string
	Keywords     []string
	KeyPoints    []string
	Count        int // retrieval count
	CreatedAt    time.Time
}
