// Package skillgap turns tracked skills and role requirements into gap
// analysis, project recommendations, proficiency updates and timelines.
package skillgap

import (
	"slices"

	"github.com/okian/skillsync/internal/domain/model"
)

// FindSkillGaps compares current skills with a role's requirements.
// The result is ordered by gap, largest first; equal gaps keep requirement order.
func FindSkillGaps(current []model.Skill, requirements []model.RoleSkillRequirement) []model.SkillGap {
	gaps := make([]model.SkillGap, 0, len(requirements))
	for _, req := range requirements {
		cur := currentLevel(current, req.Name)
		gaps = append(gaps, model.SkillGap{
			Skill:   req.Name,
			Current: cur,
			Target:  req.RequiredLevel,
			Gap:     max(0, req.RequiredLevel-cur),
		})
	}
	slices.SortStableFunc(gaps, func(a, b model.SkillGap) int {
		return b.Gap - a.Gap
	})
	return gaps
}

// RecommendProjectsForSkillGaps ranks the projects that exercise at least one
// skill with a positive gap. Completed projects and projects already assigned
// to userID are skipped. A project's score is the sum of the gaps its skills
// close; ties keep input order. The list is not truncated.
func RecommendProjectsForSkillGaps(candidates []model.Project, gaps []model.SkillGap, userID string) []model.Project {
	open := make(map[string]int, len(gaps))
	for _, g := range gaps {
		if g.Gap <= 0 {
			continue
		}
		name := NormalizeName(g.Skill)
		if _, seen := open[name]; !seen {
			open[name] = g.Gap
		}
	}

	type ranked struct {
		project model.Project
		score   int
	}
	var out []ranked
	for _, p := range candidates {
		if p.Status == model.StatusCompleted {
			continue
		}
		if userID != "" && p.AssignedTo == userID {
			continue
		}
		score, matched := 0, false
		for _, ps := range p.Skills {
			if gap, ok := open[NormalizeName(ps.SkillName)]; ok {
				score += gap
				matched = true
			}
		}
		if matched {
			out = append(out, ranked{project: p, score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b ranked) int {
		return b.score - a.score
	})
	projects := make([]model.Project, len(out))
	for i, r := range out {
		projects[i] = r.project
	}
	return projects
}

// TopRecommendations truncates a ranked list for display.
func TopRecommendations(ranked []model.Project, n int) []model.Project {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
