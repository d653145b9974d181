package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type expressionRepo struct {
	db *sql.DB
}

func newExpressionRepo(db *sql.DB) (repo.ExpressionRepo, error) {
	r := &expressionRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *expressionRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS expressions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		situation TEXT NOT NULL,
		style TEXT NOT NULL,
		content_list TEXT NOT NULL DEFAULT '[]',
		count INTEGER NOT NULL DEFAULT 0,
		last_active_time INTEGER NOT NULL DEFAULT 0,
		create_date INTEGER NOT NULL DEFAULT 0,
		checked INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		modified_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE(chat_id, situation, style)
	);
	CREATE INDEX IF NOT EXISTS idx_expressions_chat ON expressions(chat_id, checked, rejected);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create expressions table: %w", err)
	}
	return nil
}

func (r *expressionRepo) FindExpression(ctx context.Context, chatID, situation, style string) (*domain.Expression, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, situation, style, content_list, count,
			last_active_time, create_date, checked, rejected, modified_by,
			created_at, updated_at
		FROM expressions WHERE chat_id = ? AND situation = ? AND style = ?`,
		chatID, situation, style,
	)
	expr, err := scanExpression(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find expression: %w", err)
	}
	return expr, nil
}

func (r *expressionRepo) SaveExpression(ctx context.Context, expr *domain.Expression) error {
	now := time.Now()
	if expr.CreateDate.IsZero() {
		expr.CreateDate = now
	}
	if expr.LastActiveTime.IsZero() {
		expr.LastActiveTime = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expressions (chat_id, situation, style, content_list, count,
			last_active_time, create_date, checked, rejected, modified_by,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, situation, style) DO UPDATE SET
			content_list = excluded.content_list,
			count = excluded.count,
			last_active_time = excluded.last_active_time,
			checked = excluded.checked,
			rejected = excluded.rejected,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at`,
		expr.ChatID, expr.Situation, expr.Style, marshalStrings(expr.ContentList),
		expr.Count, expr.LastActiveTime.Unix(), expr.CreateDate.Unix(),
		boolToInt(expr.Checked), boolToInt(expr.Rejected), expr.ModifiedBy,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save expression: %w", err)
	}
	return nil
}

func (r *expressionRepo) IncrementExpression(ctx context.Context, chatID, situation, style string) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		UPDATE expressions SET count = count + 1, last_active_time = ?, updated_at = ?
		WHERE chat_id = ? AND situation = ? AND style = ?`,
		now, now, chatID, situation, style,
	)
	if err != nil {
		return fmt.Errorf("failed to increment expression: %w", err)
	}
	return nil
}

func (r *expressionRepo) UsableExpressions(ctx context.Context, chatID string, minCount, limit int) ([]*domain.Expression, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, situation, style, content_list, count,
			last_active_time, create_date, checked, rejected, modified_by,
			created_at, updated_at
		FROM expressions
		WHERE chat_id = ? AND checked = 1 AND rejected = 0 AND count > ?
		ORDER BY last_active_time DESC LIMIT ?`,
		chatID, minCount, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usable expressions: %w", err)
	}
	defer rows.Close()

	return scanExpressions(rows)
}

func (r *expressionRepo) UncheckedExpressions(ctx context.Context, limit int) ([]*domain.Expression, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, situation, style, content_list, count,
			last_active_time, create_date, checked, rejected, modified_by,
			created_at, updated_at
		FROM expressions WHERE checked = 0 AND rejected = 0
		ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unchecked expressions: %w", err)
	}
	defer rows.Close()

	return scanExpressions(rows)
}

func (r *expressionRepo) SetExpressionReview(ctx context.Context, id int64, checked, rejected bool, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expressions SET checked = ?, rejected = ?, modified_by = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(checked), boolToInt(rejected), modifiedBy, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set expression review: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpression(row rowScanner) (*domain.Expression, error) {
	var (
		expr                                         domain.Expression
		contentList                                  string
		lastActive, createDate, createdAt, updatedAt int64
		checked, rejected                            int
	)
	err := row.Scan(&expr.ID, &expr.ChatID, &expr.Situation, &expr.Style,
		&contentList, &expr.Count, &lastActive, &createDate,
		&checked, &rejected, &expr.ModifiedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	expr.ContentList = unmarshalStrings(contentList)
	expr.LastActiveTime = time.Unix(lastActive, 0)
	expr.CreateDate = time.Unix(createDate, 0)
	expr.Checked = checked != 0
	expr.Rejected = rejected != 0
	expr.CreatedAt = time.Unix(createdAt, 0)
	expr.UpdatedAt = time.Unix(updatedAt, 0)
	return &expr, nil
}

func scanExpressions(rows *sql.Rows) ([]*domain.Expression, error) {
	var expressions []*domain.Expression
	for rows.Next() {
		expr, err := scanExpression(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expression: %w", err)
		}
		expressions = append(expressions, expr)
	}
	return expressions, rows.Err()
}
