package repo

import (
	"context"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// MessageRepo stores and queries raw message records
type MessageRepo interface {
	// SaveMessage persists one inbound or outbound message
	SaveMessage(ctx context.Context, msg *domain.MessageRecord) error

	// RecentMessages returns up to limit newest messages for a chat,
	// oldest first. excludeBot drops the bot's own messages.
	RecentMessages(ctx context.Context, chatID string, limit int, excludeBot bool) ([]*domain.MessageRecord, error)

	// MessagesSince returns messages for a chat newer than since, oldest first
	MessagesSince(ctx context.Context, chatID string, since time.Time, limit int) ([]*domain.MessageRecord, error)

	// RecentMessagesByUser returns up to limit newest messages a user sent
	// in a chat, oldest first
	RecentMessagesByUser(ctx context.Context, chatID, userID string, limit int) ([]*domain.MessageRecord, error)

	// ActiveChats returns chat IDs with at least one message newer than since
	ActiveChats(ctx context.Context, since time.Time) ([]string, error)

	Close() error
}
