package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// Compile-time contract assertion.
var _ Store = (*PostgresStore)(nil)

const (
	pgMaxConns        = 10
	pgMinConns        = 2
	pgMaxConnIdleTime = time.Minute
	pgConnectTimeout  = 5 * time.Second
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS skills (
		seq                BIGSERIAL,
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		name               TEXT NOT NULL,
		category           TEXT NOT NULL DEFAULT '',
		proficiency        INTEGER NOT NULL,
		target_proficiency INTEGER NOT NULL,
		recent_improvement BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS skills_user_idx ON skills (user_id)`,
	`CREATE TABLE IF NOT EXISTS projects (
		seq         BIGSERIAL,
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		skills      JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS projects_owner_idx ON projects (owner_id)`,
	`CREATE INDEX IF NOT EXISTS projects_assigned_idx ON projects (assigned_to)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore persists the collections in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgresStore connects to dsn, pings the server and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := buildOptions("repository.postgres", opts)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = pgMaxConns
	poolCfg.MinConns = pgMinConns
	poolCfg.MaxConnIdleTime = pgMaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, pgConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(connectCtx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	o.logger.Info(ctx, "postgres store ready", logger.Int("maxConns", pgMaxConns))
	return &PostgresStore{pool: pool, opts: o}, nil
}

// Pool exposes the connection pool so a LISTEN/NOTIFY feed can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// GetUserSkills implements Store.
func (s *PostgresStore) GetUserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, category, proficiency, target_proficiency, recent_improvement
		FROM skills WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	var out []model.Skill
	for rows.Next() {
		var sk model.Skill
		if err := rows.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Category,
			&sk.Proficiency, &sk.TargetProficiency, &sk.RecentImprovement); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// UpdateSkill implements Store.
func (s *PostgresStore) UpdateSkill(ctx context.Context, skillID string, patch model.SkillPatch) (model.Skill, error) {
	if err := validatePatch(patch); err != nil {
		return model.Skill{}, err
	}
	var sk model.Skill
	err := s.pool.QueryRow(ctx, `
		UPDATE skills SET proficiency = $2, recent_improvement = $3
		WHERE id = $1
		RETURNING id, user_id, name, category, proficiency, target_proficiency, recent_improvement`,
		skillID, patch.Proficiency, patch.RecentImprovement,
	).Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Category, &sk.Proficiency, &sk.TargetProficiency, &sk.RecentImprovement)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Skill{}, fmt.Errorf("skill %q: %w", skillID, ErrNotFound)
	}
	if err != nil {
		return model.Skill{}, fmt.Errorf("update skill: %w", err)
	}
	notify(ctx, s.opts, model.SourceSkills, feed.Update(sk))
	return sk, nil
}

// AddSkill implements Store.
func (s *PostgresStore) AddSkill(ctx context.Context, skill model.Skill) (model.Skill, error) {
	if err := validateSkill(skill); err != nil {
		return model.Skill{}, err
	}
	skill.ID = newID(skill.ID)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO skills (id, user_id, name, category, proficiency, target_proficiency, recent_improvement)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		skill.ID, skill.UserID, skill.Name, skill.Category,
		skill.Proficiency, skill.TargetProficiency, skill.RecentImprovement,
	)
	if err != nil {
		return model.Skill{}, fmt.Errorf("insert skill: %w", err)
	}
	notify(ctx, s.opts, model.SourceSkills, feed.Insert(skill))
	return skill, nil
}

const pgProjectColumns = `id, owner_id, title, status, assigned_to, skills`

// GetUserProjects implements Store.
func (s *PostgresStore) GetUserProjects(ctx context.Context, userID string) ([]model.Project, error) {
	return s.queryProjects(ctx, `SELECT `+pgProjectColumns+` FROM projects WHERE owner_id = $1 ORDER BY seq`, userID)
}

// GetAssignedProjects implements Store.
func (s *PostgresStore) GetAssignedProjects(ctx context.Context, userID string) ([]model.Project, error) {
	return s.queryProjects(ctx, `SELECT `+pgProjectColumns+` FROM projects WHERE assigned_to = $1 ORDER BY seq`, userID)
}

// GetProject implements Store.
func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (model.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+pgProjectColumns+` FROM projects WHERE id = $1`, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %q: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

// GetProjectSkills implements Store.
func (s *PostgresStore) GetProjectSkills(ctx context.Context, projectID string) ([]model.ProjectSkill, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Skills, nil
}

// SaveProject implements Store.
func (s *PostgresStore) SaveProject(ctx context.Context, project model.Project) (model.Project, error) {
	project, err := normalizeProject(project)
	if err != nil {
		return model.Project{}, err
	}
	skills, err := encodeProjectSkills(project.Skills)
	if err != nil {
		return model.Project{}, err
	}

	// xmax is zero only for a freshly inserted row.
	var inserted bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, owner_id, title, status, assigned_to, skills)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, title = EXCLUDED.title, status = EXCLUDED.status,
			assigned_to = EXCLUDED.assigned_to, skills = EXCLUDED.skills
		RETURNING (xmax = 0)`,
		project.ID, project.OwnerID, project.Title, string(project.Status), project.AssignedTo, skills,
	).Scan(&inserted)
	if err != nil {
		return model.Project{}, fmt.Errorf("upsert project: %w", err)
	}

	if inserted {
		notify(ctx, s.opts, model.SourceProjects, feed.Insert(project))
	} else {
		notify(ctx, s.opts, model.SourceProjects, feed.Update(project))
	}
	return project, nil
}

// GetUserMessages implements Store.
func (s *PostgresStore) GetUserMessages(ctx context.Context, userID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, body, created_at FROM messages WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMessage implements Store.
func (s *PostgresStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.UserID == "" {
		return model.Message{}, fmt.Errorf("%w: message without user", ErrInvalidRecord)
	}
	msg.ID = newID(msg.ID)
	msg.CreatedAt = stamp(msg.CreatedAt)
	if _, err := s.pool.Exec(ctx, `INSERT INTO messages (id, user_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		msg.ID, msg.UserID, msg.Body, msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	notify(ctx, s.opts, model.SourceMessages, feed.Insert(msg))
	return msg, nil
}

// GetUserNotifications implements Store.
func (s *PostgresStore) GetUserNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, read, created_at FROM notifications WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddNotification implements Store.
func (s *PostgresStore) AddNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.UserID == "" {
		return model.Notification{}, fmt.Errorf("%w: notification without user", ErrInvalidRecord)
	}
	n.ID = newID(n.ID)
	n.CreatedAt = stamp(n.CreatedAt)
	if _, err := s.pool.Exec(ctx, `INSERT INTO notifications (id, user_id, title, read, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.Title, n.Read, n.CreatedAt); err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	notify(ctx, s.opts, model.SourceNotifications, feed.Insert(n))
	return n, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryProjects(ctx context.Context, query, userID string) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (model.Project, error) {
	var (
		p      model.Project
		status string
		skills []byte
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &status, &p.AssignedTo, &skills); err != nil {
		return model.Project{}, err
	}
	p.Status = model.ProjectStatus(status)
	if err := json.Unmarshal(skills, &p.Skills); err != nil {
		return model.Project{}, fmt.Errorf("decode project skills: %w", err)
	}
	return p, nil
}

func encodeProjectSkills(skills []model.ProjectSkill) (string, error) {
	if skills == nil {
		skills = []model.ProjectSkill{}
	}
	raw, err := json.Marshal(skills)
	if err != nil {
		return "", fmt.Errorf("encode project skills: %w", err)
	}
	return string(raw), nil
}
