package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// StickerRepo stores learned expressive elements
type StickerRepo interface {
	// FindSticker looks up a sticker by (type, chat, identifier)
	FindSticker(ctx context.Context, chatID, stickerType, stickerID string) (*domain.Sticker, error)

	// SaveSticker inserts or fully updates a sticker
	SaveSticker(ctx context.Context, s *domain.Sticker) error

	// UsableStickers returns non-rejected stickers for a chat, most used first
	UsableStickers(ctx context.Context, chatID string, limit int) ([]*domain.Sticker, error)
}
