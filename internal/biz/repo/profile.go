package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// ProfileRepo stores person and group impressions
type ProfileRepo interface {
	GetPerson(ctx context.Context, personID string) (*domain.PersonProfile, error)
	SavePerson(ctx context.Context, p *domain.PersonProfile) error

	GetGroup(ctx context.Context, groupID string) (*domain.GroupProfile, error)
	SaveGroup(ctx context.Context, g *domain.GroupProfile) error
}
