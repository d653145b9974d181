package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type jargonRepo struct {
	db *sql.DB
}

func newJargonRepo(db *sql.DB) (repo.JargonRepo, error) {
	r := &jargonRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *jargonRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS jargons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		content TEXT NOT NULL,
		meaning TEXT NOT NULL DEFAULT '',
		raw_content TEXT NOT NULL DEFAULT '[]',
		is_global INTEGER NOT NULL DEFAULT 0,
		count INTEGER NOT NULL DEFAULT 0,
		is_jargon INTEGER,
		last_inference_count INTEGER,
		is_complete INTEGER NOT NULL DEFAULT 0,
		inference_with_ctx TEXT NOT NULL DEFAULT '',
		inference_bare TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE(chat_id, content)
	);
	CREATE INDEX IF NOT EXISTS idx_jargons_chat ON jargons(chat_id, is_jargon);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create jargons table: %w", err)
	}
	return nil
}

func (r *jargonRepo) FindJargon(ctx context.Context, chatID, content string) (*domain.Jargon, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, content, meaning, raw_content, is_global, count,
			is_jargon, last_inference_count, is_complete,
			inference_with_ctx, inference_bare, created_at, updated_at
		FROM jargons WHERE chat_id = ? AND content = ?`,
		chatID, content,
	)
	j, err := scanJargon(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find jargon: %w", err)
	}
	return j, nil
}

func (r *jargonRepo) SaveJargon(ctx context.Context, j *domain.Jargon) error {
	now := time.Now().Unix()
	var isJargon sql.NullInt64
	if j.IsJargon != nil {
		isJargon = sql.NullInt64{Int64: int64(boolToInt(*j.IsJargon)), Valid: true}
	}
	var lastInference sql.NullInt64
	if j.LastInferenceCount != nil {
		lastInference = sql.NullInt64{Int64: int64(*j.LastInferenceCount), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jargons (chat_id, content, meaning, raw_content, is_global,
			count, is_jargon, last_inference_count, is_complete,
			inference_with_ctx, inference_bare, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, content) DO UPDATE SET
			meaning = excluded.meaning,
			raw_content = excluded.raw_content,
			is_global = excluded.is_global,
			count = excluded.count,
			is_jargon = excluded.is_jargon,
			last_inference_count = excluded.last_inference_count,
			is_complete = excluded.is_complete,
			inference_with_ctx = excluded.inference_with_ctx,
			inference_bare = excluded.inference_bare,
			updated_at = excluded.updated_at`,
		j.ChatID, j.Content, j.Meaning, marshalStrings(j.RawContent),
		boolToInt(j.IsGlobal), j.Count, isJargon, lastInference,
		boolToInt(j.IsComplete), marshalInference(j.InferenceWithCtx),
		marshalInference(j.InferenceBare), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save jargon: %w", err)
	}
	return nil
}

func (r *jargonRepo) KnownJargons(ctx context.Context, chatID string, limit int) ([]*domain.Jargon, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, content, meaning, raw_content, is_global, count,
			is_jargon, last_inference_count, is_complete,
			inference_with_ctx, inference_bare, created_at, updated_at
		FROM jargons
		WHERE (chat_id = ? OR is_global = 1) AND is_jargon = 1 AND meaning != ''
		ORDER BY count DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query known jargons: %w", err)
	}
	defer rows.Close()

	var jargons []*domain.Jargon
	for rows.Next() {
		j, err := scanJargon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan jargon: %w", err)
		}
		jargons = append(jargons, j)
	}
	return jargons, rows.Err()
}

func scanJargon(row rowScanner) (*domain.Jargon, error) {
	var (
		j                         domain.Jargon
		rawContent, withCtx, bare string
		isJargon, lastInference   sql.NullInt64
		isGlobal, isComplete      int
		createdAt, updatedAt      int64
	)
	err := row.Scan(&j.ID, &j.ChatID, &j.Content, &j.Meaning, &rawContent,
		&isGlobal, &j.Count, &isJargon, &lastInference, &isComplete,
		&withCtx, &bare, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.RawContent = unmarshalStrings(rawContent)
	j.IsGlobal = isGlobal != 0
	j.IsComplete = isComplete != 0
	if isJargon.Valid {
		b := isJargon.Int64 != 0
		j.IsJargon = &b
	}
	if lastInference.Valid {
		n := int(lastInference.Int64)
		j.LastInferenceCount = &n
	}
	j.InferenceWithCtx = unmarshalInference(withCtx)
	j.InferenceBare = unmarshalInference(bare)
	j.CreatedAt = time.Unix(createdAt, 0)
	j.UpdatedAt = time.Unix(updatedAt, 0)
	return &j, nil
}

func marshalInference(inf *domain.JargonInference) string {
	if inf == nil {
		return ""
	}
	b, err := json.Marshal(inf)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalInference(raw string) *domain.JargonInference {
	if raw == "" {
		return nil
	}
	var inf domain.JargonInference
	if err := json.Unmarshal([]byte(raw), &inf); err != nil {
		return nil
	}
	return &inf
}
