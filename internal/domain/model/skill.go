// Package model contains domain models passed between layers.
package model

// Proficiency bounds shared by skills and role requirements.
const (
	MinProficiency = 0
	MaxProficiency = 100
)

// Skill is a user's tracked proficiency in a named skill.
// Names are matched case-insensitively against requirements and project skills.
type Skill struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	Proficiency       int    `json:"proficiency"`        // current level, 0-100
	TargetProficiency int    `json:"target_proficiency"` // personal goal, 0-100
	RecentImprovement bool   `json:"recent_improvement"` // proficiency increased in the last update cycle
}

// Key returns the record identity used by projections.
func (s Skill) Key() string { return s.ID }

// SkillPatch carries the fields a proficiency update may change.
type SkillPatch struct {
	Proficiency       int
	RecentImprovement bool
}

// RoleSkillRequirement is a required level for one skill of a target role.
type RoleSkillRequirement struct {
	Name          string `json:"name" koanf:"name"`
	RequiredLevel int    `json:"required_level" koanf:"required_level"`
}

// Role is a target role and the skill levels it requires.
type Role struct {
	Name         string                 `json:"name" koanf:"name"`
	Requirements []RoleSkillRequirement `json:"requirements" koanf:"requirements"`
}

// SkillGap is the derived distance between a current and a required level.
type SkillGap struct {
	Skill   string `json:"skill"`
	Current int    `json:"current"`
	Target  int    `json:"target"`
	Gap     int    `json:"gap"`
}

// Timeline is the estimate for reaching a target role.
type Timeline struct {
	MonthsToTarget       int     `json:"months_to_target"`
	CompletionPercentage float64 `json:"completion_percentage"`
	NextMilestone        string  `json:"next_milestone"`
}
