package repository

import (
	"fmt"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
)

func validateSkill(s model.Skill) error {
	switch {
	case s.UserID == "":
		return fmt.Errorf("%w: skill without user", ErrInvalidRecord)
	case s.Name == "":
		return fmt.Errorf("%w: skill without name", ErrInvalidRecord)
	case !inRange(s.Proficiency) || !inRange(s.TargetProficiency):
		return fmt.Errorf("%w: skill %q proficiency out of range", ErrInvalidRecord, s.Name)
	}
	return nil
}

func validatePatch(p model.SkillPatch) error {
	if !inRange(p.Proficiency) {
		return fmt.Errorf("%w: proficiency %d out of range", ErrInvalidRecord, p.Proficiency)
	}
	return nil
}

// normalizeProject assigns an id and a pending status when missing.
func normalizeProject(p model.Project) (model.Project, error) {
	if p.OwnerID == "" {
		return p, fmt.Errorf("%w: project without owner", ErrInvalidRecord)
	}
	if p.Status == "" {
		p.Status = model.StatusPending
	}
	status, err := model.ParseProjectStatus(string(p.Status))
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	p.Status = status
	p.ID = newID(p.ID)
	return p, nil
}

func inRange(v int) bool {
	return v >= model.MinProficiency && v <= model.MaxProficiency
}

// stamp fills a missing creation time at the precision every driver keeps.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return t
}
