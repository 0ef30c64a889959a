package model

import (
	"fmt"
	"strings"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

// Project statuses.
const (
	StatusPending    ProjectStatus = "pending"
	StatusInProgress ProjectStatus = "in_progress"
	StatusCompleted  ProjectStatus = "completed"
	StatusBlocked    ProjectStatus = "blocked"
)

// ParseProjectStatus validates a raw status string.
func ParseProjectStatus(raw string) (ProjectStatus, error) {
	switch s := ProjectStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return s, nil
	default:
		return "", fmt.Errorf("unknown project status %q", raw)
	}
}

// ProjectSkill is a skill a project exercises, with its difficulty level (1-10).
type ProjectSkill struct {
	SkillName  string `json:"skill_name"`
	SkillLevel int    `json:"skill_level"`
}

// Project is owned by the project store; the engine only reads and ranks it.
type Project struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Title      string         `json:"title"`
	Status     ProjectStatus  `json:"status"`
	AssignedTo string         `json:"assigned_to,omitempty"` // empty when unassigned
	Skills     []ProjectSkill `json:"skills"`
}

// Key returns the record identity used by projections.
func (p Project) Key() string { return p.ID }

// CompletionJob asks the worker pool to apply a finished project to a user's skills.
type CompletionJob struct {
	JobID     string
	UserID    string
	ProjectID string
}
