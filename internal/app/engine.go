package service

import (
	"context"
	"fmt"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/skillgap"
	"github.com/okian/skillsync/pkg/metrics"
)

func (s *Service) role(name string) (model.Role, error) {
	s.mu.RLock()
	catalog := s.catalog
	s.mu.RUnlock()
	if catalog == nil {
		return model.Role{}, ErrNotStarted
	}
	return catalog.Get(name)
}

// SkillGaps returns how far the user is from each requirement of a role,
// largest gap first.
func (s *Service) SkillGaps(ctx context.Context, userID, roleName string) ([]model.SkillGap, error) {
	role, err := s.role(roleName)
	if err != nil {
		return nil, err
	}
	current, err := s.Skills(ctx, userID)
	if err != nil {
		return nil, err
	}
	return skillgap.FindSkillGaps(current, role.Requirements), nil
}

// Timeline estimates how long the user needs to reach a role.
func (s *Service) Timeline(ctx context.Context, userID, roleName string) (model.Timeline, error) {
	role, err := s.role(roleName)
	if err != nil {
		return model.Timeline{}, err
	}
	current, err := s.Skills(ctx, userID)
	if err != nil {
		return model.Timeline{}, err
	}
	return skillgap.EstimateCareerTimeline(role.Requirements, current), nil
}

// Recommendations ranks the user's open projects by how well they close the
// gaps to a role. limit <= 0 uses the configured default.
func (s *Service) Recommendations(ctx context.Context, userID, roleName string, limit int) ([]model.Project, error) {
	gaps, err := s.SkillGaps(ctx, userID, roleName)
	if err != nil {
		return nil, err
	}
	candidates, err := s.Projects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recommendation candidates: %w", err)
	}
	if limit <= 0 {
		s.mu.RLock()
		limit = s.recommendationLimit
		s.mu.RUnlock()
	}

	ranked := skillgap.RecommendProjectsForSkillGaps(candidates, gaps, userID)
	top := skillgap.TopRecommendations(ranked, limit)
	metrics.RecordRecommendations(len(top))
	return top, nil
}
