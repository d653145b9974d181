package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type stickerRepo struct {
	db *sql.DB
}

func newStickerRepo(db *sql.DB) (repo.StickerRepo, error) {
	r := &stickerRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *stickerRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS stickers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		sticker_type TEXT NOT NULL,
		sticker_id TEXT NOT NULL,
		sticker_url TEXT NOT NULL DEFAULT '',
		sticker_file TEXT NOT NULL DEFAULT '',
		situation TEXT NOT NULL DEFAULT '',
		emotion TEXT NOT NULL DEFAULT '',
		meaning TEXT NOT NULL DEFAULT '',
		context_list TEXT NOT NULL DEFAULT '[]',
		count INTEGER NOT NULL DEFAULT 0,
		last_active_time INTEGER NOT NULL DEFAULT 0,
		create_date INTEGER NOT NULL DEFAULT 0,
		checked INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE(chat_id, sticker_type, sticker_id)
	);
	CREATE INDEX IF NOT EXISTS idx_stickers_chat ON stickers(chat_id, rejected);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create stickers table: %w", err)
	}
	return nil
}

func (r *stickerRepo) FindSticker(ctx context.Context, chatID, stickerType, stickerID string) (*domain.Sticker, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sticker_type, sticker_id, sticker_url, sticker_file,
			situation, emotion, meaning, context_list, count,
			last_active_time, create_date, checked, rejected, created_at, updated_at
		FROM stickers WHERE chat_id = ? AND sticker_type = ? AND sticker_id = ?`,
		chatID, stickerType, stickerID,
	)
	s, err := scanSticker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sticker: %w", err)
	}
	return s, nil
}

func (r *stickerRepo) SaveSticker(ctx context.Context, s *domain.Sticker) error {
	now := time.Now()
	if s.CreateDate.IsZero() {
		s.CreateDate = now
	}
	if s.LastActiveTime.IsZero() {
		s.LastActiveTime = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stickers (chat_id, sticker_type, sticker_id, sticker_url,
			sticker_file, situation, emotion, meaning, context_list, count,
			last_active_time, create_date, checked, rejected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, sticker_type, sticker_id) DO UPDATE SET
			sticker_url = excluded.sticker_url,
			sticker_file = excluded.sticker_file,
			situation = excluded.situation,
			emotion = excluded.emotion,
			meaning = excluded.meaning,
			context_list = excluded.context_list,
			count = excluded.count,
			last_active_time = excluded.last_active_time,
			checked = excluded.checked,
			rejected = excluded.rejected,
			updated_at = excluded.updated_at`,
		s.ChatID, s.StickerType, s.StickerID, s.StickerURL, s.StickerFile,
		s.Situation, s.Emotion, s.Meaning, marshalStrings(s.ContextList), s.Count,
		s.LastActiveTime.Unix(), s.CreateDate.Unix(),
		boolToInt(s.Checked), boolToInt(s.Rejected), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save sticker: %w", err)
	}
	return nil
}

func (r *stickerRepo) UsableStickers(ctx context.Context, chatID string, limit int) ([]*domain.Sticker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sticker_type, sticker_id, sticker_url, sticker_file,
			situation, emotion, meaning, context_list, count,
			last_active_time, create_date, checked, rejected, created_at, updated_at
		FROM stickers WHERE chat_id = ? AND rejected = 0
		ORDER BY count DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usable stickers: %w", err)
	}
	defer rows.Close()

	var stickers []*domain.Sticker
	for rows.Next() {
		s, err := scanSticker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sticker: %w", err)
		}
		stickers = append(stickers, s)
	}
	return stickers, rows.Err()
}

func scanSticker(row rowScanner) (*domain.Sticker, error) {
	var (
		s                                            domain.Sticker
		contextList                                  string
		lastActive, createDate, createdAt, updatedAt int64
		checked, rejected                            int
	)
	err := row.Scan(&s.ID, &s.ChatID, &s.StickerType, &s.StickerID,
		&s.StickerURL, &s.StickerFile, &s.Situation, &s.Emotion, &s.Meaning,
		&contextList, &s.Count, &lastActive, &createDate,
		&checked, &rejected, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.ContextList = unmarshalStrings(contextList)
	s.LastActiveTime = time.Unix(lastActive, 0)
	s.CreateDate = time.Unix(createDate, 0)
	s.Checked = checked != 0
	s.Rejected = rejected != 0
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}
