package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	eventqueue "github.com/okian/skillsync/internal/adapters/mq/queue"
	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/skillgap"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// CompleteProject queues a finished project so its skills are credited to
// the user. It returns the job id.
func (s *Service) CompleteProject(ctx context.Context, userID, projectID string) (string, error) {
	if err := requireUser(userID); err != nil {
		return "", err
	}
	if projectID == "" {
		return "", fmt.Errorf("%w: project id is required", ErrInvalidArgument)
	}

	s.mu.RLock()
	if err := s.requireStarted(); err != nil {
		s.mu.RUnlock()
		return "", err
	}
	store, q := s.store, s.queue
	s.mu.RUnlock()

	project, err := store.GetProject(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("project %q: %w", projectID, err)
	}
	if project.OwnerID != userID && project.AssignedTo != userID {
		return "", fmt.Errorf("%w: project %q", ErrNotParticipant, projectID)
	}
	if project.Status == model.StatusCompleted {
		return "", fmt.Errorf("%w: %q", ErrAlreadyCompleted, projectID)
	}

	job := model.CompletionJob{JobID: uuid.NewString(), UserID: userID, ProjectID: projectID}
	if err := q.Enqueue(ctx, job); err != nil {
		if errors.Is(err, eventqueue.ErrFull) {
			return "", fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return "", fmt.Errorf("enqueue completion: %w", err)
	}
	s.logger.Debug(ctx, "completion queued",
		logger.String("jobID", job.JobID),
		logger.String("userID", userID),
		logger.String("projectID", projectID),
	)
	return job.JobID, nil
}

// completionProcessor credits a completed project's skills and marks the
// project completed.
// Jobs touching the same user or project run one at a time; the
// read-compute-write cycle over a user's skills is not atomic in the store.
type completionProcessor struct {
	store  repository.Store
	logger logger.Logger
	locks  keyedLocks
}

func (p *completionProcessor) Process(ctx context.Context, job model.CompletionJob) error {
	unlock := p.locks.lock("user:"+job.UserID, "project:"+job.ProjectID)
	defer unlock()

	project, err := p.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %q: %w", job.ProjectID, err)
	}
	// A second job for the same project must not credit it twice.
	if project.Status == model.StatusCompleted {
		p.logger.Warn(ctx, "project already completed, skipping",
			logger.String("jobID", job.JobID),
			logger.String("projectID", job.ProjectID),
		)
		return nil
	}
	current, err := p.store.GetUserSkills(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load skills of %q: %w", job.UserID, err)
	}

	res := skillgap.UpdateSkillsFromCompletedProject(ctx, p.store, job.UserID, current, project.Skills)
	recordOutcome(current, res.Skills)
	for _, ferr := range res.Failures {
		metrics.RecordPersistenceFailure()
		p.logger.Error(ctx, "skill update failed",
			logger.String("jobID", job.JobID),
			logger.String("userID", job.UserID),
			logger.String("projectID", job.ProjectID),
			logger.Error(ferr),
		)
	}

	project.Status = model.StatusCompleted
	if _, err := p.store.SaveProject(ctx, project); err != nil {
		res.Failures = append(res.Failures, fmt.Errorf("mark project %q completed: %w", project.ID, err))
	}

	p.logger.Info(ctx, "project completed",
		logger.String("jobID", job.JobID),
		logger.String("projectID", job.ProjectID),
		logger.Int("skills", len(res.Skills)),
		logger.Int("failures", len(res.Failures)),
	)
	return errors.Join(res.Failures...)
}

// recordOutcome counts raised and created skills.
func recordOutcome(before, after []model.Skill) {
	prev := make(map[string]int, len(before))
	for _, s := range before {
		prev[s.ID] = s.Proficiency
	}
	for _, s := range after {
		old, ok := prev[s.ID]
		switch {
		case !ok:
			metrics.RecordSkillCreated()
		case s.Proficiency > old:
			metrics.RecordSkillUpdated()
		}
	}
}

// keyedLocks hands out mutexes by key and forgets a key once nobody holds
// or waits for it.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires every key in sorted order and returns the release func.
func (l *keyedLocks) lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyedLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		if l.locks == nil {
			l.locks = make(map[string]*keyedLock)
		}
		kl := l.locks[k]
		if kl == nil {
			kl = &keyedLock{}
			l.locks[k] = kl
		}
		kl.refs++
		l.mu.Unlock()

		kl.mu.Lock()
		held = append(held, kl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

// size reports how many keys are tracked.
func (l *keyedLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
