package skillgap

import (
	"context"

	"github.com/okian/skillsync/internal/domain/model"
)

// Policy constants for skills introduced by a completed project.
const (
	NewSkillCategory     = "New"
	newSkillCap          = 50
	newSkillTargetOffset = 30
	maxProjectSkillLevel = 10
)

// SkillWriter is the part of the skill store a completion writes through.
type SkillWriter interface {
	UpdateSkill(ctx context.Context, skillID string, patch model.SkillPatch) (model.Skill, error)
	AddSkill(ctx context.Context, skill model.Skill) (model.Skill, error)
}

// UpdateResult is the outcome of applying one completed project.
type UpdateResult struct {
	// Skills lists the touched skills in project order: increased, created,
	// or matched but already at the cap (returned unchanged).
	Skills []model.Skill
	// Failures holds one *PersistenceError per skill whose write failed.
	Failures []error
}

// ProficiencyIncrease is ceil(remaining * (0.1 + level/10 * 0.1)) where
// remaining is the distance to 100. Computed in integers to keep ceil exact.
func ProficiencyIncrease(current, level int) int {
	remaining := model.MaxProficiency - clamp(current, model.MinProficiency, model.MaxProficiency)
	level = clamp(level, 0, maxProjectSkillLevel)
	n := remaining * (maxProjectSkillLevel + level)
	return (n + 99) / 100
}

// UpdateSkillsFromCompletedProject raises the user's skills for every skill a
// completed project exercised and creates the ones not tracked yet.
//
// Writes happen one at a time in project order. A failed write drops that skill
// from the result and is reported in Failures; the rest still run. current is
// never modified.
func UpdateSkillsFromCompletedProject(ctx context.Context, store SkillWriter, userID string, current []model.Skill, projectSkills []model.ProjectSkill) UpdateResult {
	var res UpdateResult
	for _, ps := range projectSkills {
		existing, ok := findSkill(current, ps.SkillName)
		if !ok {
			created, err := createSkill(ctx, store, userID, ps)
			if err != nil {
				res.Failures = append(res.Failures, &PersistenceError{SkillName: ps.SkillName, Op: "create", Err: err})
				continue
			}
			res.Skills = append(res.Skills, created)
			continue
		}

		next := min(model.MaxProficiency, existing.Proficiency+ProficiencyIncrease(existing.Proficiency, ps.SkillLevel))
		if next <= existing.Proficiency {
			res.Skills = append(res.Skills, existing)
			continue
		}

		patch := model.SkillPatch{Proficiency: next, RecentImprovement: true}
		if _, err := store.UpdateSkill(ctx, existing.ID, patch); err != nil {
			res.Failures = append(res.Failures, &PersistenceError{SkillName: existing.Name, Op: "update", Err: err})
			continue
		}
		existing.Proficiency = next
		existing.RecentImprovement = true
		res.Skills = append(res.Skills, existing)
	}
	return res
}

func createSkill(ctx context.Context, store SkillWriter, userID string, ps model.ProjectSkill) (model.Skill, error) {
	initial := clamp(ps.SkillLevel*10, model.MinProficiency, newSkillCap)
	skill := model.Skill{
		UserID:            userID,
		Name:              ps.SkillName,
		Category:          NewSkillCategory,
		Proficiency:       initial,
		TargetProficiency: min(model.MaxProficiency, initial+newSkillTargetOffset),
		RecentImprovement: true,
	}
	created, err := store.AddSkill(ctx, skill)
	if err != nil {
		return model.Skill{}, err
	}
	if created.ID == "" {
		return skill, nil
	}
	created.RecentImprovement = true
	return created, nil
}
