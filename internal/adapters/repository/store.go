// Package repository holds the skill, project and inbox stores behind the
// skill engine and the live projections.
package repository

import (
	"context"

	"github.com/okian/skillsync/internal/domain/model"
)

// Store provides read/write access to the persisted collections.
//
// Lists are returned in insertion order. Single-record lookups return
// ErrNotFound for unknown ids.
type Store interface {
	// GetUserSkills returns every skill tracked for userID.
	GetUserSkills(ctx context.Context, userID string) ([]model.Skill, error)
	// UpdateSkill applies patch to a skill and returns the stored result.
	UpdateSkill(ctx context.Context, skillID string, patch model.SkillPatch) (model.Skill, error)
	// AddSkill inserts a skill, assigning an id when it has none.
	AddSkill(ctx context.Context, skill model.Skill) (model.Skill, error)

	// GetUserProjects returns the projects owned by userID.
	GetUserProjects(ctx context.Context, userID string) ([]model.Project, error)
	// GetAssignedProjects returns the projects assigned to userID.
	GetAssignedProjects(ctx context.Context, userID string) ([]model.Project, error)
	// GetProject returns one project with its skills.
	GetProject(ctx context.Context, projectID string) (model.Project, error)
	// GetProjectSkills returns the skills a project exercises.
	GetProjectSkills(ctx context.Context, projectID string) ([]model.ProjectSkill, error)
	// SaveProject inserts or replaces a project, assigning an id when it has none.
	SaveProject(ctx context.Context, project model.Project) (model.Project, error)

	// GetUserMessages returns the messages addressed to userID.
	GetUserMessages(ctx context.Context, userID string) ([]model.Message, error)
	// AddMessage inserts a message.
	AddMessage(ctx context.Context, msg model.Message) (model.Message, error)
	// GetUserNotifications returns the notifications addressed to userID.
	GetUserNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	// AddNotification inserts a notification.
	AddNotification(ctx context.Context, n model.Notification) (model.Notification, error)

	// Close releases the underlying connections.
	Close() error
}
