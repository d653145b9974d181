package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

type profileRepo struct {
	db *sql.DB
}

func newProfileRepo(db *sql.DB) (repo.ProfileRepo, error) {
	r := &profileRepo{db: db}
	if err := r.createTable(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *profileRepo) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS person_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		person_name TEXT NOT NULL DEFAULT '',
		name_reason TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		is_known INTEGER NOT NULL DEFAULT 0,
		memory_points TEXT NOT NULL DEFAULT '[]',
		know_since INTEGER NOT NULL DEFAULT 0,
		last_know INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS group_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL DEFAULT '',
		group_name TEXT NOT NULL DEFAULT '',
		impression TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		member_list TEXT NOT NULL DEFAULT '[]',
		member_count INTEGER NOT NULL DEFAULT 0,
		create_time INTEGER NOT NULL DEFAULT 0,
		last_active INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create profile tables: %w", err)
	}
	return nil
}

func (r *profileRepo) GetPerson(ctx context.Context, personID string) (*domain.PersonProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, person_id, platform, user_id, person_name, name_reason,
			nickname, is_known, memory_points, know_since, last_know,
			created_at, updated_at
		FROM person_profiles WHERE person_id = ?`,
		personID,
	)

	var (
		p                                         domain.PersonProfile
		memoryPoints                              string
		isKnown                                   int
		knowSince, lastKnow, createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.PersonID, &p.Platform, &p.UserID, &p.PersonName,
		&p.NameReason, &p.Nickname, &isKnown, &memoryPoints,
		&knowSince, &lastKnow, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person profile: %w", err)
	}
	p.IsKnown = isKnown != 0
	p.MemoryPoints = unmarshalStrings(memoryPoints)
	p.KnowSince = time.Unix(knowSince, 0)
	p.LastKnow = time.Unix(lastKnow, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

func (r *profileRepo) SavePerson(ctx context.Context, p *domain.PersonProfile) error {
	now := time.Now()
	if p.KnowSince.IsZero() {
		p.KnowSince = now
	}
	if p.LastKnow.IsZero() {
		p.LastKnow = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO person_profiles (person_id, platform, user_id, person_name,
			name_reason, nickname, is_known, memory_points, know_since, last_know,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			platform = excluded.platform,
			user_id = excluded.user_id,
			person_name = excluded.person_name,
			name_reason = excluded.name_reason,
			nickname = excluded.nickname,
			is_known = excluded.is_known,
			memory_points = excluded.memory_points,
			last_know = excluded.last_know,
			updated_at = excluded.updated_at`,
		p.PersonID, p.Platform, p.UserID, p.PersonName, p.NameReason, p.Nickname,
		boolToInt(p.IsKnown), marshalStrings(p.MemoryPoints),
		p.KnowSince.Unix(), p.LastKnow.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save person profile: %w", err)
	}
	return nil
}

func (r *profileRepo) GetGroup(ctx context.Context, groupID string) (*domain.GroupProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, group_id, platform, group_name, impression, topic,
			member_list, member_count, create_time, last_active,
			created_at, updated_at
		FROM group_profiles WHERE group_id = ?`,
		groupID,
	)

	var (
		g                                            domain.GroupProfile
		memberList                                   string
		createTime, lastActive, createdAt, updatedAt int64
	)
	err := row.Scan(&g.ID, &g.GroupID, &g.Platform, &g.GroupName, &g.Impression,
		&g.Topic, &memberList, &g.MemberCount,
		&createTime, &lastActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group profile: %w", err)
	}
	g.MemberList = unmarshalStrings(memberList)
	g.CreateTime = time.Unix(createTime, 0)
	g.LastActive = time.Unix(lastActive, 0)
	g.CreatedAt = time.Unix(createdAt, 0)
	g.UpdatedAt = time.Unix(updatedAt, 0)
	return &g, nil
}

func (r *profileRepo) SaveGroup(ctx context.Context, g *domain.GroupProfile) error {
	now := time.Now()
	if g.CreateTime.IsZero() {
		g.CreateTime = now
	}
	if g.LastActive.IsZero() {
		g.LastActive = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_profiles (group_id, platform, group_name, impression,
			topic, member_list, member_count, create_time, last_active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			platform = excluded.platform,
			group_name = excluded.group_name,
			impression = excluded.impression,
			topic = excluded.topic,
			member_list = excluded.member_list,
			member_count = excluded.member_count,
			last_active = excluded.last_active,
			updated_at = excluded.updated_at`,
		g.GroupID, g.Platform, g.GroupName, g.Impression, g.Topic,
		marshalStrings(g.MemberList), g.MemberCount,
		g.CreateTime.Unix(), g.LastActive.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save group profile: %w", err)
	}
	return nil
}
