package repo

import (
	"context"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// Config scope types. Group and user layers inherit from global.
const (
	ConfigTypeGlobal = "global"
	ConfigTypeGroup  = "group"
	ConfigTypeUser   = "user"
)

// ConfigRepo stores raw configuration layers
type ConfigRepo interface {
	// GetLayer returns the raw layer for (configType, targetID), nil if unset
	GetLayer(ctx context.Context, configType, targetID string) (domain.ConfigLayer, error)

	// SaveLayer stores the raw layer for (configType, targetID)
	SaveLayer(ctx context.Context, configType, targetID string, layer domain.ConfigLayer) error
}
