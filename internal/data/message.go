package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type messageRepo struct {
	db *sql.DB
}

func newMessageRepo(db *sql.DB) (repo.MessageRepo, error) {
	r := &messageRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *messageRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_nickname TEXT NOT NULL DEFAULT '',
		user_cardname TEXT NOT NULL DEFAULT '',
		plain_text TEXT NOT NULL DEFAULT '',
		raw_message TEXT NOT NULL DEFAULT '',
		group_id TEXT NOT NULL DEFAULT '',
		time INTEGER NOT NULL,
		is_bot_message INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_id, time);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_user ON messages(chat_id, user_id);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

func (r *messageRepo) SaveMessage(ctx context.Context, msg *domain.MessageRecord) error {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, chat_id, user_id, user_nickname, user_cardname,
			plain_text, raw_message, group_id, time, is_bot_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ChatID, msg.UserID, msg.UserNickname, msg.UserCardname,
		msg.PlainText, msg.RawMessage, msg.GroupID, msg.Time.Unix(), boolToInt(msg.IsBotMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	}
	return nil
}

func (r *messageRepo) RecentMessages(ctx context.Context, chatID string, limit int, excludeBot bool) ([]*domain.MessageRecord, error) {
	query := `
		SELECT id, message_id, chat_id, user_id, user_nickname, user_cardname,
			plain_text, raw_message, group_id, time, is_bot_message
		FROM messages WHERE chat_id = ?`
	if excludeBot {
		query += ` AND is_bot_message = 0`
	}
	query += ` ORDER BY time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

func (r *messageRepo) MessagesSince(ctx context.Context, chatID string, since time.Time, limit int) ([]*domain.MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, chat_id, user_id, user_nickname, user_cardname,
			plain_text, raw_message, group_id, time, is_bot_message
		FROM messages WHERE chat_id = ? AND time > ?
		ORDER BY time ASC, id ASC LIMIT ?`,
		chatID, since.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages since: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *messageRepo) RecentMessagesByUser(ctx context.Context, chatID, userID string, limit int) ([]*domain.MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, chat_id, user_id, user_nickname, user_cardname,
			plain_text, raw_message, group_id, time, is_bot_message
		FROM messages WHERE chat_id = ? AND user_id = ?
		ORDER BY time DESC, id DESC LIMIT ?`,
		chatID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages by user: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

func (r *messageRepo) ActiveChats(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT chat_id FROM messages WHERE time > ? ORDER BY chat_id`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active chats: %w", err)
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		chats = append(chats, chatID)
	}
	return chats, rows.Err()
}

func (r *messageRepo) Close() error {
	return nil
}

func scanMessages(rows *sql.Rows) ([]*domain.MessageRecord, error) {
	var messages []*domain.MessageRecord
	for rows.Next() {
		var (
			msg      domain.MessageRecord
			unixTime int64
			isBot    int
		)
		err := rows.Scan(&msg.ID, &msg.MessageID, &msg.ChatID, &msg.UserID,
			&msg.UserNickname, &msg.UserCardname, &msg.PlainText, &msg.RawMessage,
			&msg.GroupID, &unixTime, &isBot)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Time = time.Unix(unixTime, 0)
		msg.IsBotMessage = isBot != 0
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func reverseMessages(messages []*domain.MessageRecord) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
