package repo

import (
	"context"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// SummaryRepo stores periodic chat digests
type SummaryRepo interface {
	// SaveSummary persists one digest
	SaveSummary(ctx context.Context, s *domain.ChatHistorySummary) error

	// LastSummaryEnd returns the end time of the newest digest for a chat,
	// zero time if none exists
	LastSummaryEnd(ctx context.Context, chatID string) (time.Time, error)

	// RecentSummaries returns digests for a chat, newest first
	RecentSummaries(ctx context.Context, chatID string, limit int) ([]*domain.ChatHistorySummary, error)
}
