package feedgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// Constants for generated values.
const (
	maxProjectSkills = 3
	minSkillLevel    = 1
	maxSkillLevel    = 10
	deleteOneIn      = 10
)

// extraSkills pad the role's requirements so users also hold unrelated skills.
var extraSkills = []string{"Go", "SQL", "Docker", "React", "Python", "Terraform", "Rust", "GraphQL", "Kafka", "CSS"}

// generatePlans builds one ordered envelope stream per user. Streams are
// generated concurrently but each stream stays in causal order.
func generatePlans(ctx context.Context, config *Config, skillNames []string, stats *Stats) ([]UserPlan, error) {
	logger.Get().Info(ctx, "generating change envelopes",
		logger.Int("users", config.Users),
		logger.Int("skillsPerUser", config.SkillsPerUser),
		logger.Int("updatesPerUser", config.UpdatesPerUser))

	names := pool(skillNames)
	plans := make([]UserPlan, config.Users)

	type planResult struct {
		index int
		plan  UserPlan
		err   error
	}
	resultChan := make(chan planResult, config.Users)

	workerCount := max(1, min(config.Workers, config.Users))
	perWorker := config.Users / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.Users
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					resultChan <- planResult{index: i, err: err}
					continue
				}
				rng := rand.New(rand.NewPCG(config.Seed, uint64(i)))
				plan, err := generateUserPlan(rng, uuid.NewString(), names, config)
				resultChan <- planResult{index: i, plan: plan, err: err}
			}
		}(start, end)
	}

	for i := 0; i < config.Users; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate user %d: %w", result.index, result.err)
			}
			plans[result.index] = result.plan
			stats.EnvelopesGenerated += len(result.plan.Envelopes)
		}
	}

	logger.Get().Info(ctx, "generated envelopes", logger.Int("count", stats.EnvelopesGenerated))
	return plans, nil
}

// generateUserPlan emits skill inserts, a run of updates with occasional
// deletes, and owned projects for one user. The expected maps track the
// state a live view must end up in.
func generateUserPlan(rng *rand.Rand, userID string, names []string, config *Config) (UserPlan, error) {
	plan := UserPlan{
		UserID:   userID,
		Skills:   make(map[string]model.Skill),
		Projects: make(map[string]model.Project),
	}
	var order []string

	emit := func(env feed.Envelope, err error) error {
		if err != nil {
			return err
		}
		plan.Envelopes = append(plan.Envelopes, env)
		return nil
	}

	picked := pick(rng, names, config.SkillsPerUser)
	for _, name := range picked {
		s := model.Skill{
			ID:                uuid.NewString(),
			UserID:            userID,
			Name:              name,
			Proficiency:       rng.IntN(model.MaxProficiency + 1),
			TargetProficiency: model.MaxProficiency,
		}
		if err := emit(feed.Encode(model.SourceSkills, uuid.NewString(), feed.Insert(s))); err != nil {
			return plan, err
		}
		plan.Skills[s.ID] = s
		order = append(order, s.ID)
	}

	for u := 0; u < config.UpdatesPerUser && len(order) > 0; u++ {
		idx := rng.IntN(len(order))
		id := order[idx]
		if rng.IntN(deleteOneIn) == 0 {
			if err := emit(feed.Encode(model.SourceSkills, uuid.NewString(), feed.Delete[model.Skill](id))); err != nil {
				return plan, err
			}
			delete(plan.Skills, id)
			order = slices.Delete(order, idx, idx+1)
			continue
		}
		s := plan.Skills[id]
		next := min(model.MaxProficiency, s.Proficiency+1+rng.IntN(10))
		s.RecentImprovement = next > s.Proficiency
		s.Proficiency = next
		if err := emit(feed.Encode(model.SourceSkills, uuid.NewString(), feed.Update(s))); err != nil {
			return plan, err
		}
		plan.Skills[id] = s
	}

	for p := 0; p < config.ProjectsPerUser; p++ {
		project := model.Project{
			ID:      uuid.NewString(),
			OwnerID: userID,
			Title:   fmt.Sprintf("project-%d", p+1),
			Status:  model.StatusPending,
		}
		for _, name := range pick(rng, names, 1+rng.IntN(maxProjectSkills)) {
			project.Skills = append(project.Skills, model.ProjectSkill{
				SkillName:  name,
				SkillLevel: minSkillLevel + rng.IntN(maxSkillLevel),
			})
		}
		if err := emit(feed.Encode(model.SourceProjects, uuid.NewString(), feed.Insert(project))); err != nil {
			return plan, err
		}
		plan.Projects[project.ID] = project
	}

	return plan, nil
}

// pool merges the role's skill names with the padding names, keeping the
// first spelling of each.
func pool(roleSkills []string) []string {
	out := slices.Clone(roleSkills)
	for _, name := range extraSkills {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// pick returns n distinct names, or all of them when n exceeds the pool.
func pick(rng *rand.Rand, names []string, n int) []string {
	shuffled := slices.Clone(names)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:min(n, len(shuffled))]
}
