package lifecycle

import (
	"context"
	"fmt"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// TransitionStatus moves a job along the state machine and applies the side
// effects of the target status in one batch.
func (s *Service) TransitionStatus(ctx context.Context, companyID, jobID uuid.UUID, to domain.JobStatus) (domain.Job, error) {
	if !to.Valid() {
		return domain.Job{}, apperr.ValidationFields(apperr.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", to)})
	}

	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	from := job.Status
	if from == to {
		return job, nil
	}
	if !domain.CanTransition(from, to) {
		return domain.Job{}, apperr.Conflict(fmt.Sprintf("A job cannot move from %s to %s", from, to))
	}

	switch {
	case to == domain.StatusAssigned && from == domain.StatusPending:
		return domain.Job{}, apperr.BadRequest("Assign a technician to move the job to Assigned")
	case to == domain.StatusPending && from.IsActive():
		return s.UnassignJob(ctx, companyID, jobID, fmt.Sprintf("status reset from %s", from))
	}

	var tech *domain.Technician
	if job.AssignedTechnicianID != nil {
		t, err := s.store.GetTechnician(ctx, companyID, *job.AssignedTechnicianID)
		switch {
		case err == nil:
			tech = &t
		case !errors.Is(err, repository.ErrNotFound):
			return domain.Job{}, apperr.Unavailable(err)
		}
	}

	now := s.now()
	at := now
	techChanged := false

	switch to {
	case domain.StatusAssigned:
		// Reset from En Route.
		job.EnRouteAt = nil

	case domain.StatusEnRoute, domain.StatusInProgress:
		if tech == nil {
			return domain.Job{}, apperr.NotFound(MsgTechnicianNotFound)
		}
		if err := s.ensureNotBusyElsewhere(ctx, *tech, job.ID); err != nil {
			return domain.Job{}, err
		}
		if to == domain.StatusEnRoute {
			if domain.IsReset(from, to) {
				job.InProgressAt = nil
			} else {
				job.EnRouteAt = &at
			}
		} else {
			job.InProgressAt = &at
		}
		if !tech.IsCurrentJob(job.ID) {
			tech.TakeJob(job.ID)
			techChanged = true
		}

	case domain.StatusCompleted:
		job.CompletedAt = &at
		profit := job.Financials.ComputeProfit()
		job.Financials.ActualProfit = &profit
		if tech != nil && tech.IsCurrentJob(job.ID) {
			tech.Release()
			techChanged = true
		}

	case domain.StatusCancelled:
		if tech != nil && tech.IsCurrentJob(job.ID) {
			tech.Release()
			techChanged = true
		}
		job.AssignedTechnicianID = nil
		job.AddNote(now, fmt.Sprintf("Cancelled while %s", from))
	}

	if !to.IsRouted() {
		job.RouteOrder = nil
	}
	job.Status = to

	b := repository.NewBatch()
	b.PutJob(&job)
	if techChanged {
		b.PutTechnician(tech)
	}
	if err := s.commit(ctx, "TransitionStatus", b); err != nil {
		return domain.Job{}, err
	}

	s.publish(ctx, events.JobStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		CompanyID: companyID,
		JobID:     job.ID,
		From:      string(from),
		To:        string(to),
	})
	return job, nil
}

// ensureNotBusyElsewhere refuses to start a job while the technician is
// executing a different one.
func (s *Service) ensureNotBusyElsewhere(ctx context.Context, tech domain.Technician, jobID uuid.UUID) error {
	if tech.CurrentJobID == nil || *tech.CurrentJobID == jobID {
		return nil
	}
	other, err := s.store.GetJob(ctx, tech.CompanyID, *tech.CurrentJobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Unavailable(err)
	}
	if other.Status.IsExecuting() {
		return apperr.Conflict(msgTechnicianBusy).WithDetails(map[string]any{"currentJobId": other.ID})
	}
	return nil
}
