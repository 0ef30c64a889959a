package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/skillsync/internal/domain/feed"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// userView holds the live projections of one watched user.
type userView struct {
	skills        *feed.Projection[model.Skill]
	projects      *feed.Projection[model.Project]
	messages      *feed.Projection[model.Message]
	notifications *feed.Projection[model.Notification]
}

func (v *userView) close() error {
	var errs []error
	if v.skills != nil {
		errs = append(errs, v.skills.Close())
	}
	if v.projects != nil {
		errs = append(errs, v.projects.Close())
	}
	if v.messages != nil {
		errs = append(errs, v.messages.Close())
	}
	if v.notifications != nil {
		errs = append(errs, v.notifications.Close())
	}
	return errors.Join(errs...)
}

// Watch opens live views of a user's skills, projects, messages and
// notifications, seeded from the store. Watching a user again replaces the
// previous views.
func (s *Service) Watch(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	s.mu.RLock()
	if err := s.requireStarted(); err != nil {
		s.mu.RUnlock()
		return err
	}
	src, lg := s.source, s.logger
	s.mu.RUnlock()

	v, err := s.openView(ctx, src, userID, lg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.views[userID]
	s.views[userID] = v
	s.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			lg.Warn(ctx, "closing replaced user view", logger.String("userID", userID), logger.Error(err))
		}
	}
	lg.Info(ctx, "watching user", logger.String("userID", userID))
	return nil
}

// Unwatch closes a user's live views. Unwatching an unknown user is a no-op.
func (s *Service) Unwatch(userID string) error {
	s.mu.Lock()
	v := s.views[userID]
	delete(s.views, userID)
	s.mu.Unlock()

	if v == nil {
		return nil
	}
	return v.close()
}

// Watching reports whether the user has live views open.
func (s *Service) Watching(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.views[userID]
	return ok
}

func (s *Service) openView(ctx context.Context, src feed.Source, userID string, lg logger.Logger) (*userView, error) {
	store := s.Store()

	skills, err := store.GetUserSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("seed skills: %w", err)
	}
	projects, err := s.candidateProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := store.GetUserMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("seed messages: %w", err)
	}
	notifications, err := store.GetUserNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("seed notifications: %w", err)
	}

	v := &userView{}
	// Projections opened before a failure still hold subscriptions.
	fail := func(err error) (*userView, error) {
		if cerr := v.close(); cerr != nil {
			lg.Warn(ctx, "closing partial user view", logger.String("userID", userID), logger.Error(cerr))
		}
		return nil, err
	}

	plog := lg.Named("projection")
	if v.skills, err = feed.Open(ctx, src, model.SourceSkills, skills,
		feed.WithFilter(func(r model.Skill) bool { return r.UserID == userID }),
		feed.WithLogger[model.Skill](plog),
	); err != nil {
		return fail(err)
	}
	if v.projects, err = feed.Open(ctx, src, model.SourceProjects, projects,
		feed.WithFilter(func(r model.Project) bool { return r.OwnerID == userID || r.AssignedTo == userID }),
		feed.WithLogger[model.Project](plog),
	); err != nil {
		return fail(err)
	}
	if v.messages, err = feed.Open(ctx, src, model.SourceMessages, messages,
		feed.WithFilter(func(r model.Message) bool { return r.UserID == userID }),
		feed.WithLogger[model.Message](plog),
	); err != nil {
		return fail(err)
	}
	if v.notifications, err = feed.Open(ctx, src, model.SourceNotifications, notifications,
		feed.WithFilter(func(r model.Notification) bool { return r.UserID == userID }),
		feed.WithLogger[model.Notification](plog),
	); err != nil {
		return fail(err)
	}
	return v, nil
}

func (s *Service) view(userID string) *userView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[userID]
}

// Skills returns the user's skills from the live view when watched, otherwise
// from the store.
func (s *Service) Skills(ctx context.Context, userID string) ([]model.Skill, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if v := s.view(userID); v != nil {
		return v.skills.Snapshot(), nil
	}
	if err := s.readyErr(); err != nil {
		return nil, err
	}
	return s.Store().GetUserSkills(ctx, userID)
}

// Projects returns the projects the user owns or is assigned, owned first.
func (s *Service) Projects(ctx context.Context, userID string) ([]model.Project, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if v := s.view(userID); v != nil {
		return v.projects.Snapshot(), nil
	}
	if err := s.readyErr(); err != nil {
		return nil, err
	}
	return s.candidateProjects(ctx, userID)
}

// View returns the records of one source for a user.
func (s *Service) View(ctx context.Context, source, userID string) (any, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	switch source {
	case model.SourceSkills:
		return s.Skills(ctx, userID)
	case model.SourceProjects:
		return s.Projects(ctx, userID)
	case model.SourceMessages:
		if v := s.view(userID); v != nil {
			return v.messages.Snapshot(), nil
		}
		if err := s.readyErr(); err != nil {
			return nil, err
		}
		return s.Store().GetUserMessages(ctx, userID)
	case model.SourceNotifications:
		if v := s.view(userID); v != nil {
			return v.notifications.Snapshot(), nil
		}
		if err := s.readyErr(); err != nil {
			return nil, err
		}
		return s.Store().GetUserNotifications(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

func (s *Service) readyErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requireStarted()
}

// candidateProjects merges owned and assigned projects, dropping repeats.
func (s *Service) candidateProjects(ctx context.Context, userID string) ([]model.Project, error) {
	store := s.Store()
	owned, err := store.GetUserProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("owned projects: %w", err)
	}
	assigned, err := store.GetAssignedProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("assigned projects: %w", err)
	}

	seen := make(map[string]struct{}, len(owned)+len(assigned))
	out := make([]model.Project, 0, len(owned)+len(assigned))
	for _, p := range append(owned, assigned...) {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
