package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// KnowledgeRepo stores extracted triples and entity mention stats
type KnowledgeRepo interface {
	// SaveTriple persists one extracted fact
	SaveTriple(ctx context.Context, triple *domain.KnowledgeTriple) error

	// UpsertEntity creates the entity or increments its mention count
	UpsertEntity(ctx context.Context, name, entityType string) error

	// TriplesBySubject returns facts about a subject, newest first
	TriplesBySubject(ctx context.Context, subject string, limit int) ([]*domain.KnowledgeTriple, error)
}
