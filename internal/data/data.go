package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/anthropics/ruabot/internal/biz/repo"
)

// Repositories contains all storage-backed repositories
type Repositories struct {
	Message    repo.MessageRepo
	Expression repo.ExpressionRepo
	Jargon     repo.JargonRepo
	Sticker    repo.StickerRepo
	Knowledge  repo.KnowledgeRepo
	Profile    repo.ProfileRepo
	Summary    repo.SummaryRepo
	Config     repo.ConfigRepo

	db *sql.DB
}

// NewRepositories opens the database and creates all repositories over it
func NewRepositories(dbPath string) (*Repositories, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repos := &Repositories{db: db}
	builders := []func(*sql.DB) error{
		func(db *sql.DB) (err error) { repos.Message, err = newMessageRepo(db); return },
		func(db *sql.DB) (err error) { repos.Expression, err = newExpressionRepo(db); return },
		func(db *sql.DB) (err error) { repos.Jargon, err = newJargonRepo(db); return },
		func(db *sql.DB) (err error) { repos.Sticker, err = newStickerRepo(db); return },
		func(db *sql.DB) (err error) { repos.Knowledge, err = newKnowledgeRepo(db); return },
		func(db *sql.DB) (err error) { repos.Profile, err = newProfileRepo(db); return },
		func(db *sql.DB) (err error) { repos.Summary, err = newSummaryRepo(db); return },
		func(db *sql.DB) (err error) { repos.Config, err = newConfigRepo(db); return },
	}
	for _, build := range builders {
		if err := build(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return repos, nil
}

// Close closes the shared database connection
func (r *Repositories) Close() error {
	return r.db.Close()
}

// marshalStrings encodes a string list for a JSON column
func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalStrings decodes a JSON column into a string list
func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
