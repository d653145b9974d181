package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type knowledgeRepo struct {
	db *sql.DB
}

func newKnowledgeRepo(db *sql.DB) (repo.KnowledgeRepo, error) {
	r := &knowledgeRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *knowledgeRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS knowledge_triples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		subject_type TEXT NOT NULL DEFAULT '',
		predicate TEXT NOT NULL,
		object TEXT NOT NULL,
		object_type TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		source_chat_id TEXT NOT NULL DEFAULT '',
		source_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_triples_subject ON knowledge_triples(subject);

	CREATE TABLE IF NOT EXISTS knowledge_entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL DEFAULT '',
		mention_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create knowledge tables: %w", err)
	}
	return nil
}

func (r *knowledgeRepo) SaveTriple(ctx context.Context, triple *domain.KnowledgeTriple) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge_triples (subject, subject_type, predicate, object,
			object_type, confidence, source_chat_id, source_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		triple.Subject, triple.SubjectType, triple.Predicate, triple.Object,
		triple.ObjectType, triple.Confidence, triple.SourceChatID,
		triple.SourceMessage, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save triple: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		triple.ID = id
	}
	return nil
}

func (r *knowledgeRepo) UpsertEntity(ctx context.Context, name, entityType string) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO knowledge_entities (name, type, mention_count, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			mention_count = mention_count + 1,
			updated_at = excluded.updated_at`,
		name, entityType, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

func (r *knowledgeRepo) TriplesBySubject(ctx context.Context, subject string, limit int) ([]*domain.KnowledgeTriple, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject, subject_type, predicate, object, object_type,
			confidence, source_chat_id, source_message, created_at
		FROM knowledge_triples WHERE subject = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		subject, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query triples: %w", err)
	}
	defer rows.Close()

	var triples []*domain.KnowledgeTriple
	for rows.Next() {
		var (
			t         domain.KnowledgeTriple
			createdAt int64
		)
		err := rows.Scan(&t.ID, &t.Subject, &t.SubjectType, &t.Predicate,
			&t.Object, &t.ObjectType, &t.Confidence, &t.SourceChatID,
			&t.SourceMessage, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		triples = append(triples, &t)
	}
	return triples, rows.Err()
}
