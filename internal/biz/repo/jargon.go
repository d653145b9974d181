package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// JargonRepo stores candidate slang terms and their inference state
type JargonRepo interface {
	// FindJargon looks up a term for a chat
	FindJargon(ctx context.Context, chatID, content string) (*domain.Jargon, error)

	// SaveJargon inserts or fully updates a jargon row
	SaveJargon(ctx context.Context, j *domain.Jargon) error

	// KnownJargons returns confirmed jargon terms (is_jargon=true) with a
	// meaning, for the explanation layer
	KnownJargons(ctx context.Context, chatID string, limit int) ([]*domain.Jargon, error)
}
