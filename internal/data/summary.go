package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type summaryRepo struct {
	db *sql.DB
}

func newSummaryRepo(db *sql.DB) (repo.SummaryRepo, error) {
	r := &summaryRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *summaryRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		original_text TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		theme TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		keywords TEXT NOT NULL DEFAULT '[]',
		key_points TEXT NOT NULL DEFAULT '[]',
		count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_chat_end ON chat_summaries(chat_id, end_time);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create chat_summaries table: %w", err)
	}
	return nil
}

func (r *summaryRepo) SaveSummary(ctx context.Context, s *domain.ChatHistorySummary) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_summaries (chat_id, start_time, end_time, original_text,
			summary, theme, participants, keywords, key_points, count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ChatID, s.StartTime.Unix(), s.EndTime.Unix(), s.OriginalText,
		s.Summary, s.Theme, marshalStrings(s.Participants),
		marshalStrings(s.Keywords), marshalStrings(s.KeyPoints),
		s.Count, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		s.ID = id
	}
	return nil
}

func (r *summaryRepo) LastSummaryEnd(ctx context.Context, chatID string) (time.Time, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT MAX(end_time) FROM chat_summaries WHERE chat_id = ?`,
		chatID,
	)
	var endTime sql.NullInt64
	if err := row.Scan(&endTime); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last summary end: %w", err)
	}
	if !endTime.Valid {
		return time.Time{}, nil
	}
	return time.Unix(endTime.Int64, 0), nil
}

func (r *summaryRepo) RecentSummaries(ctx context.Context, chatID string, limit int) ([]*domain.ChatHistorySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, start_time, end_time, original_text, summary,
			theme, participants, keywords, key_points, count, created_at
		FROM chat_summaries WHERE chat_id = ?
		ORDER BY end_time DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.ChatHistorySummary
	for rows.Next() {
		var (
			s                                 domain.ChatHistorySummary
			participants, keywords, keyPoints string
			startTime, endTime, createdAt     int64
		)
		err := rows.Scan(&s.ID, &s.ChatID, &startTime, &endTime, &s.OriginalText,
			&s.Summary, &s.Theme, &participants, &keywords, &keyPoints,
			&s.Count, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.StartTime = time.Unix(startTime, 0)
		s.EndTime = time.Unix(endTime, 0)
		s.Participants = unmarshalStrings(participants)
		s.Keywords = unmarshalStrings(keywords)
		s.KeyPoints = unmarshalStrings(keyPoints)
		s.CreatedAt = time.Unix(createdAt, 0)
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}
