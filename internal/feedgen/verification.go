package feedgen

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/skillgap"
)

type skillsView struct {
	Records []model.Skill `json:"records"`
}

type projectsView struct {
	Records []model.Project `json:"records"`
}

type gapsView struct {
	Gaps []model.SkillGap `json:"gaps"`
}

// verifyPlans checks that every user's live views converged on the state
// their envelopes describe, and that the gap report matches a local
// computation over that state.
func verifyPlans(ctx context.Context, config *Config, client *HTTPClient, role model.Role, plans []UserPlan, stats *Stats) error {
	log.Println("🔍 Verifying live views...")

	var mismatches []string
	for _, plan := range plans {
		if err := verifyUser(ctx, config, client, role, plan); err != nil {
			stats.UsersMismatched++
			mismatches = append(mismatches, err.Error())
			if config.Verbose {
				log.Printf("⚠️  %v", err)
			}
			continue
		}
		stats.UsersVerified++
	}

	log.Printf("✅ Verified %d users, %d mismatched", stats.UsersVerified, stats.UsersMismatched)
	if len(mismatches) > 0 {
		return fmt.Errorf("%d users did not converge, first: %s", len(mismatches), mismatches[0])
	}
	return nil
}

func verifyUser(ctx context.Context, config *Config, client *HTTPClient, role model.Role, plan UserPlan) error {
	user := url.PathEscape(plan.UserID)
	deadline := time.Now().Add(config.Settle)

	var lastErr error
	for {
		lastErr = checkUser(ctx, client, user, role, plan)
		if lastErr == nil || time.Now().After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

func checkUser(ctx context.Context, client *HTTPClient, user string, role model.Role, plan UserPlan) error {
	var skills skillsView
	if err := client.getJSON(ctx, "/projections/skills/"+user, &skills); err != nil {
		return err
	}
	if err := compareSkills(plan, skills.Records); err != nil {
		return err
	}

	var projects projectsView
	if err := client.getJSON(ctx, "/projections/projects/"+user, &projects); err != nil {
		return err
	}
	if len(projects.Records) != len(plan.Projects) {
		return fmt.Errorf("user %s: %d projects in view, want %d", plan.UserID, len(projects.Records), len(plan.Projects))
	}

	var gaps gapsView
	if err := client.getJSON(ctx, "/skills/"+user+"/gaps?role="+url.QueryEscape(role.Name), &gaps); err != nil {
		return err
	}
	return compareGaps(plan, gaps.Gaps, expectedGaps(plan, role))
}

// compareSkills reports the first difference between the view and the plan.
func compareSkills(plan UserPlan, got []model.Skill) error {
	if len(got) != len(plan.Skills) {
		return fmt.Errorf("user %s: %d skills in view, want %d", plan.UserID, len(got), len(plan.Skills))
	}
	for _, s := range got {
		want, ok := plan.Skills[s.ID]
		if !ok {
			return fmt.Errorf("user %s: unexpected skill %s", plan.UserID, s.ID)
		}
		if s.Proficiency != want.Proficiency {
			return fmt.Errorf("user %s: skill %s at %d, want %d", plan.UserID, s.Name, s.Proficiency, want.Proficiency)
		}
	}
	return nil
}

func expectedGaps(plan UserPlan, role model.Role) []model.SkillGap {
	skills := make([]model.Skill, 0, len(plan.Skills))
	for _, s := range plan.Skills {
		skills = append(skills, s)
	}
	return skillgap.FindSkillGaps(skills, role.Requirements)
}

// compareGaps matches gaps by skill name; ties may be ordered differently.
func compareGaps(plan UserPlan, got, want []model.SkillGap) error {
	if len(got) != len(want) {
		return fmt.Errorf("user %s: %d gaps, want %d", plan.UserID, len(got), len(want))
	}
	byName := func(gaps []model.SkillGap) []model.SkillGap {
		out := append([]model.SkillGap(nil), gaps...)
		sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
		return out
	}
	g, w := byName(got), byName(want)
	for i := range w {
		if g[i] != w[i] {
			return fmt.Errorf("user %s: gap %+v, want %+v", plan.UserID, g[i], w[i])
		}
	}
	return nil
}
