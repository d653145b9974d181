package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// ExpressionRepo stores learned speaking-style rules
type ExpressionRepo interface {
	// FindExpression looks up an expression by its natural key
	FindExpression(ctx context.Context, chatID, situation, style string) (*domain.Expression, error)

	// SaveExpression inserts or fully updates an expression
	SaveExpression(ctx context.Context, expr *domain.Expression) error

	// IncrementExpression bumps count and last_active_time by natural key
	IncrementExpression(ctx context.Context, chatID, situation, style string) error

	// UsableExpressions returns checked, non-rejected expressions for a
	// chat with count above minCount, newest-active first
	UsableExpressions(ctx context.Context, chatID string, minCount, limit int) ([]*domain.Expression, error)

	// UncheckedExpressions returns expressions awaiting quality review
	UncheckedExpressions(ctx context.Context, limit int) ([]*domain.Expression, error)

	// SetExpressionReview records the auto-checker verdict
	SetExpressionReview(ctx context.Context, id int64, checked, rejected bool, modifiedBy string) error
}
