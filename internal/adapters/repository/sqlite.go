package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// Compile-time contract assertion.
var _ Store = (*SQLiteStore)(nil)

const defaultSQLitePath = "skillsync.db"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS skills (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		name               TEXT NOT NULL,
		category           TEXT NOT NULL DEFAULT '',
		proficiency        INTEGER NOT NULL,
		target_proficiency INTEGER NOT NULL,
		recent_improvement INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS skills_user_idx ON skills (user_id)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		skills      TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		read       INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
}

// SQLiteStore persists the collections in a single SQLite file.
// Insertion order is the implicit rowid.
type SQLiteStore struct {
	db   *sql.DB
	opts options
	path string
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions("repository.sqlite", opts)
	if path == "" {
		path = defaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	o.logger.Info(ctx, "sqlite store ready", logger.String("path", path))
	return &SQLiteStore{db: db, opts: o, path: path}, nil
}

// GetUserSkills implements Store.
func (s *SQLiteStore) GetUserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, category, proficiency, target_proficiency, recent_improvement
		FROM skills WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("select skills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Skill
	for rows.Next() {
		sk, err := scanSQLiteSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// UpdateSkill implements Store.
func (s *SQLiteStore) UpdateSkill(ctx context.Context, skillID string, patch model.SkillPatch) (model.Skill, error) {
	if err := validatePatch(patch); err != nil {
		return model.Skill{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE skills SET proficiency = ?, recent_improvement = ? WHERE id = ?`,
		patch.Proficiency, patch.RecentImprovement, skillID)
	if err != nil {
		return model.Skill{}, fmt.Errorf("update skill: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Skill{}, fmt.Errorf("skill %q: %w", skillID, ErrNotFound)
	}
	sk, err := scanSQLiteSkill(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, category, proficiency, target_proficiency, recent_improvement
		FROM skills WHERE id = ?`, skillID))
	if err != nil {
		return model.Skill{}, err
	}
	notify(ctx, s.opts, model.SourceSkills, feed.Update(sk))
	return sk, nil
}

// AddSkill implements Store.
func (s *SQLiteStore) AddSkill(ctx context.Context, skill model.Skill) (model.Skill, error) {
	if err := validateSkill(skill); err != nil {
		return model.Skill{}, err
	}
	skill.ID = newID(skill.ID)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, user_id, name, category, proficiency, target_proficiency, recent_improvement)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.UserID, skill.Name, skill.Category,
		skill.Proficiency, skill.TargetProficiency, skill.RecentImprovement,
	); err != nil {
		return model.Skill{}, fmt.Errorf("insert skill: %w", err)
	}
	notify(ctx, s.opts, model.SourceSkills, feed.Insert(skill))
	return skill, nil
}

const sqliteProjectColumns = `id, owner_id, title, status, assigned_to, skills`

// GetUserProjects implements Store.
func (s *SQLiteStore) GetUserProjects(ctx context.Context, userID string) ([]model.Project, error) {
	return s.queryProjects(ctx, `SELECT `+sqliteProjectColumns+` FROM projects WHERE owner_id = ? ORDER BY rowid`, userID)
}

// GetAssignedProjects implements Store.
func (s *SQLiteStore) GetAssignedProjects(ctx context.Context, userID string) ([]model.Project, error) {
	return s.queryProjects(ctx, `SELECT `+sqliteProjectColumns+` FROM projects WHERE assigned_to = ? ORDER BY rowid`, userID)
}

// GetProject implements Store.
func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (model.Project, error) {
	p, err := scanSQLiteProject(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProjectColumns+` FROM projects WHERE id = ?`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %q: %w", projectID, ErrNotFound)
	}
	return p, err
}

// GetProjectSkills implements Store.
func (s *SQLiteStore) GetProjectSkills(ctx context.Context, projectID string) ([]model.ProjectSkill, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Skills, nil
}

// SaveProject implements Store.
func (s *SQLiteStore) SaveProject(ctx context.Context, project model.Project) (_ model.Project, retErr error) {
	project, err := normalizeProject(project)
	if err != nil {
		return model.Project{}, err
	}
	skills, err := encodeProjectSkills(project.Skills)
	if err != nil {
		return model.Project{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Project{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = ?)`, project.ID).Scan(&exists); err != nil {
		return model.Project{}, fmt.Errorf("check project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, title, status, assigned_to, skills)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id, title = excluded.title, status = excluded.status,
			assigned_to = excluded.assigned_to, skills = excluded.skills`,
		project.ID, project.OwnerID, project.Title, string(project.Status), project.AssignedTo, skills,
	); err != nil {
		return model.Project{}, fmt.Errorf("upsert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Project{}, fmt.Errorf("commit: %w", err)
	}

	if exists {
		notify(ctx, s.opts, model.SourceProjects, feed.Update(project))
	} else {
		notify(ctx, s.opts, model.SourceProjects, feed.Insert(project))
	}
	return project, nil
}

// GetUserMessages implements Store.
func (s *SQLiteStore) GetUserMessages(ctx context.Context, userID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, body, created_at FROM messages WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		var (
			m       model.Message
			created string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Body, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode message time: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMessage implements Store.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.UserID == "" {
		return model.Message{}, fmt.Errorf("%w: message without user", ErrInvalidRecord)
	}
	msg.ID = newID(msg.ID)
	msg.CreatedAt = stamp(msg.CreatedAt)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO messages (id, user_id, body, created_at) VALUES (?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Body, msg.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	notify(ctx, s.opts, model.SourceMessages, feed.Insert(msg))
	return msg, nil
}

// GetUserNotifications implements Store.
func (s *SQLiteStore) GetUserNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, read, created_at FROM notifications WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			created string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Read, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode notification time: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddNotification implements Store.
func (s *SQLiteStore) AddNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.UserID == "" {
		return model.Notification{}, fmt.Errorf("%w: notification without user", ErrInvalidRecord)
	}
	n.ID = newID(n.ID)
	n.CreatedAt = stamp(n.CreatedAt)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, title, read, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Read, n.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	notify(ctx, s.opts, model.SourceNotifications, feed.Insert(n))
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryProjects(ctx context.Context, query, userID string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Project
	for rows.Next() {
		p, err := scanSQLiteProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSkill(row sqlScanner) (model.Skill, error) {
	var sk model.Skill
	if err := row.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Category,
		&sk.Proficiency, &sk.TargetProficiency, &sk.RecentImprovement); err != nil {
		return model.Skill{}, fmt.Errorf("scan skill: %w", err)
	}
	return sk, nil
}

func scanSQLiteProject(row sqlScanner) (model.Project, error) {
	var (
		p      model.Project
		status string
		skills string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &status, &p.AssignedTo, &skills); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, err
		}
		return model.Project{}, fmt.Errorf("scan project: %w", err)
	}
	p.Status = model.ProjectStatus(status)
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return model.Project{}, fmt.Errorf("decode project skills: %w", err)
	}
	return p, nil
}
