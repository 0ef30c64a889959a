package skillgap

import (
	"strings"

	"github.com/okian/skillsync/internal/domain/model"
)

// NormalizeName is the single matching rule for skill names across
// requirements, projects and tracked skills.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// findSkill returns the first skill whose name matches name.
func findSkill(skills []model.Skill, name string) (model.Skill, bool) {
	want := NormalizeName(name)
	for _, s := range skills {
		if NormalizeName(s.Name) == want {
			return s, true
		}
	}
	return model.Skill{}, false
}

// currentLevel returns the matched proficiency or 0.
func currentLevel(skills []model.Skill, name string) int {
	if s, ok := findSkill(skills, name); ok {
		return s.Proficiency
	}
	return 0
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
