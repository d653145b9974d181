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

type configRepo struct {
	db *sql.DB
}

func newConfigRepo(db *sql.DB) (repo.ConfigRepo, error) {
	r := &configRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *configRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS config_layers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_type TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		layer TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		UNIQUE(config_type, target_id)
	);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create config_layers table: %w", err)
	}
	return nil
}

func (r *configRepo) GetLayer(ctx context.Context, configType, targetID string) (domain.ConfigLayer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT layer FROM config_layers WHERE config_type = ? AND target_id = ?`,
		configType, targetID,
	)
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config layer: %w", err)
	}

	var layer domain.ConfigLayer
	if err := json.Unmarshal([]byte(raw), &layer); err != nil {
		return nil, fmt.Errorf("failed to decode config layer: %w", err)
	}
	return layer, nil
}

func (r *configRepo) SaveLayer(ctx context.Context, configType, targetID string, layer domain.ConfigLayer) error {
	raw, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("failed to encode config layer: %w", err)
	}
	now := time.Now().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_layers (config_type, target_id, layer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(config_type, target_id) DO UPDATE SET
			layer = excluded.layer,
			updated_at = excluded.updated_at`,
		configType, targetID, string(raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save config layer: %w", err)
	}
	return nil
}
