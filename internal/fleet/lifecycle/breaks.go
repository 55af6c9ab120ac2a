package lifecycle

import (
	"context"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/google/uuid"
)

// StartBreak opens a break on an In Progress job. at defaults to now.
func (s *Service) StartBreak(ctx context.Context, companyID, jobID uuid.UUID, at *time.Time) (domain.Job, error) {
	return s.mutateBreak(ctx, "StartBreak", companyID, jobID, at, (*domain.Job).StartBreak)
}

// EndBreak closes the open break. at defaults to now.
func (s *Service) EndBreak(ctx context.Context, companyID, jobID uuid.UUID, at *time.Time) (domain.Job, error) {
	return s.mutateBreak(ctx, "EndBreak", companyID, jobID, at, (*domain.Job).EndBreak)
}

func (s *Service) mutateBreak(ctx context.Context, op string, companyID, jobID uuid.UUID, at *time.Time, apply func(*domain.Job, time.Time) error) (domain.Job, error) {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status != domain.StatusInProgress {
		return domain.Job{}, apperr.Conflict("Breaks can only be recorded while the job is In Progress")
	}

	when := s.now()
	if at != nil {
		when = *at
	}
	if err := apply(&job, when); err != nil {
		return domain.Job{}, apperr.Wrap(apperr.KindConflict, err.Error(), err)
	}

	b := repository.NewBatch()
	b.PutJob(&job)
	if err := s.commit(ctx, op, b); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}
