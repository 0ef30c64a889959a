package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
)

// Compile-time contract assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps every collection in process. It backs tests, local runs
// and the memory store driver.
type MemoryStore struct {
	mu            sync.RWMutex
	skills        []model.Skill
	projects      []model.Project
	messages      []model.Message
	notifications []model.Notification
	opts          options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions("repository.memory", opts)}
}

// GetUserSkills implements Store.
func (s *MemoryStore) GetUserSkills(_ context.Context, userID string) ([]model.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.skills, func(sk model.Skill) bool { return sk.UserID == userID }), nil
}

// UpdateSkill implements Store.
func (s *MemoryStore) UpdateSkill(ctx context.Context, skillID string, patch model.SkillPatch) (model.Skill, error) {
	if err := validatePatch(patch); err != nil {
		return model.Skill{}, err
	}
	s.mu.Lock()
	i := slices.IndexFunc(s.skills, func(sk model.Skill) bool { return sk.ID == skillID })
	if i < 0 {
		s.mu.Unlock()
		return model.Skill{}, fmt.Errorf("skill %q: %w", skillID, ErrNotFound)
	}
	s.skills[i].Proficiency = patch.Proficiency
	s.skills[i].RecentImprovement = patch.RecentImprovement
	updated := s.skills[i]
	s.mu.Unlock()

	notify(ctx, s.opts, model.SourceSkills, feed.Update(updated))
	return updated, nil
}

// AddSkill implements Store.
func (s *MemoryStore) AddSkill(ctx context.Context, skill model.Skill) (model.Skill, error) {
	if err := validateSkill(skill); err != nil {
		return model.Skill{}, err
	}
	skill.ID = newID(skill.ID)
	s.mu.Lock()
	if slices.ContainsFunc(s.skills, func(sk model.Skill) bool { return sk.ID == skill.ID }) {
		s.mu.Unlock()
		return model.Skill{}, fmt.Errorf("%w: duplicate skill id %q", ErrInvalidRecord, skill.ID)
	}
	s.skills = append(s.skills, skill)
	s.mu.Unlock()

	notify(ctx, s.opts, model.SourceSkills, feed.Insert(skill))
	return skill, nil
}

// GetUserProjects implements Store.
func (s *MemoryStore) GetUserProjects(_ context.Context, userID string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProjects(filter(s.projects, func(p model.Project) bool { return p.OwnerID == userID })), nil
}

// GetAssignedProjects implements Store.
func (s *MemoryStore) GetAssignedProjects(_ context.Context, userID string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProjects(filter(s.projects, func(p model.Project) bool { return p.AssignedTo == userID })), nil
}

// GetProject implements Store.
func (s *MemoryStore) GetProject(_ context.Context, projectID string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.projects, func(p model.Project) bool { return p.ID == projectID })
	if i < 0 {
		return model.Project{}, fmt.Errorf("project %q: %w", projectID, ErrNotFound)
	}
	p := s.projects[i]
	p.Skills = slices.Clone(p.Skills)
	return p, nil
}

// GetProjectSkills implements Store.
func (s *MemoryStore) GetProjectSkills(ctx context.Context, projectID string) ([]model.ProjectSkill, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Skills, nil
}

// SaveProject implements Store.
func (s *MemoryStore) SaveProject(ctx context.Context, project model.Project) (model.Project, error) {
	project, err := normalizeProject(project)
	if err != nil {
		return model.Project{}, err
	}
	project.Skills = slices.Clone(project.Skills)

	s.mu.Lock()
	i := slices.IndexFunc(s.projects, func(p model.Project) bool { return p.ID == project.ID })
	if i < 0 {
		s.projects = append(s.projects, project)
	} else {
		s.projects[i] = project
	}
	s.mu.Unlock()

	if i < 0 {
		notify(ctx, s.opts, model.SourceProjects, feed.Insert(project))
	} else {
		notify(ctx, s.opts, model.SourceProjects, feed.Update(project))
	}
	return project, nil
}

// GetUserMessages implements Store.
func (s *MemoryStore) GetUserMessages(_ context.Context, userID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.messages, func(m model.Message) bool { return m.UserID == userID }), nil
}

// AddMessage implements Store.
func (s *MemoryStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.UserID == "" {
		return model.Message{}, fmt.Errorf("%w: message without user", ErrInvalidRecord)
	}
	msg.ID = newID(msg.ID)
	msg.CreatedAt = stamp(msg.CreatedAt)
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	notify(ctx, s.opts, model.SourceMessages, feed.Insert(msg))
	return msg, nil
}

// GetUserNotifications implements Store.
func (s *MemoryStore) GetUserNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.notifications, func(n model.Notification) bool { return n.UserID == userID }), nil
}

// AddNotification implements Store.
func (s *MemoryStore) AddNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.UserID == "" {
		return model.Notification{}, fmt.Errorf("%w: notification without user", ErrInvalidRecord)
	}
	n.ID = newID(n.ID)
	n.CreatedAt = stamp(n.CreatedAt)
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()

	notify(ctx, s.opts, model.SourceNotifications, feed.Insert(n))
	return n, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func cloneProjects(ps []model.Project) []model.Project {
	for i := range ps {
		ps[i].Skills = slices.Clone(ps[i].Skills)
	}
	return ps
}
