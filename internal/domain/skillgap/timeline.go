package skillgap

import (
	"fmt"
	"math"

	"github.com/okian/skillsync/internal/domain/model"
)

// pointsPerMonth is how much average gap one month of work is assumed to close.
const pointsPerMonth = 5.0

// ReadyMilestone is reported when no required skill has a gap.
const ReadyMilestone = "Ready for this role!"

// EstimateCareerTimeline estimates how far a user is from a role.
//
// The model is linear: completion is 100 minus the average gap, which assumes
// requirements use the same 0-100 scale as proficiency.
func EstimateCareerTimeline(required []model.RoleSkillRequirement, current []model.Skill) model.Timeline {
	total := 0
	largest, largestName := 0, ""
	for _, req := range required {
		gap := max(0, req.RequiredLevel-currentLevel(current, req.Name))
		total += gap
		if gap > largest {
			largest, largestName = gap, req.Name
		}
	}

	count := max(1, len(required))
	avg := float64(total) / float64(count)

	tl := model.Timeline{
		MonthsToTarget:       int(math.Ceil(avg / pointsPerMonth)),
		CompletionPercentage: math.Max(0, math.Min(100, 100-avg)),
		NextMilestone:        ReadyMilestone,
	}
	if largest > 0 {
		tl.NextMilestone = fmt.Sprintf("Improve %s skill (%d points gap)", largestName, largest)
	}
	return tl
}
