package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	msgInterruptionRequired = "Technician is working on another job. Confirm the interruption to reassign them."
	msgTechnicianOffDuty    = "Technician is marked unavailable"
	msgTechnicianBusy       = "Technician is already working on another job"
)

// AssignOptions controls AssignJob.
type AssignOptions struct {
	// AllowInterruption lets the assignment bounce the technician's
	// current job back to Pending.
	AllowInterruption bool
}

// Assignment is the committed result of AssignJob.
type Assignment struct {
	Job         domain.Job        `json:"job"`
	Technician  domain.Technician `json:"technician"`
	Interrupted *domain.Job       `json:"interrupted,omitempty"`
}

// AssignJob gives a Pending (or reassigns an Assigned) job to a technician.
// If the technician holds another active job that job returns to Pending in
// the same batch, which requires AllowInterruption.
func (s *Service) AssignJob(ctx context.Context, companyID, jobID, techID uuid.UUID, opts AssignOptions) (Assignment, error) {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return Assignment{}, err
	}
	tech, err := s.loadTechnician(ctx, companyID, techID)
	if err != nil {
		return Assignment{}, err
	}

	if job.Status != domain.StatusPending && job.Status != domain.StatusAssigned {
		return Assignment{}, apperr.Conflict(fmt.Sprintf("A job in status %s cannot be assigned", job.Status))
	}
	if tech.Unavailability != nil {
		return Assignment{}, apperr.Conflict(msgTechnicianOffDuty)
	}
	if job.Status == domain.StatusAssigned && tech.IsCurrentJob(job.ID) {
		return Assignment{Job: job, Technician: tech}, nil
	}

	now := s.now()
	b := repository.NewBatch()

	if job.AssignedTechnicianID != nil && *job.AssignedTechnicianID != tech.ID {
		prev, err := s.store.GetTechnician(ctx, companyID, *job.AssignedTechnicianID)
		switch {
		case err == nil:
			if prev.IsCurrentJob(job.ID) {
				prev.Release()
				b.PutTechnician(&prev)
			}
		case !errors.Is(err, repository.ErrNotFound):
			return Assignment{}, apperr.Unavailable(err)
		}
	}

	var interrupted *domain.Job
	if tech.CurrentJobID != nil && *tech.CurrentJobID != job.ID {
		current, err := s.store.GetJob(ctx, companyID, *tech.CurrentJobID)
		switch {
		case err == nil:
			if current.Status.IsActive() {
				if !opts.AllowInterruption {
					return Assignment{}, apperr.Conflict(msgInterruptionRequired).WithDetails(map[string]any{
						"currentJobId": current.ID,
					})
				}
				current.Unassign(now, fmt.Sprintf("Returned to Pending: technician %s was reassigned to %q", tech.Name, job.Title))
				b.PutJob(&current)
				interrupted = &current
			}
		case !errors.Is(err, repository.ErrNotFound):
			return Assignment{}, apperr.Unavailable(err)
		}
	}

	job.AssignTo(tech.ID, now)
	tech.TakeJob(job.ID)
	b.PutJob(&job)
	b.PutTechnician(&tech)

	if err := s.commit(ctx, "AssignJob", b); err != nil {
		return Assignment{}, err
	}

	evt := events.JobAssigned{
		BaseEvent:    events.NewBaseEvent(),
		CompanyID:    companyID,
		JobID:        job.ID,
		JobTitle:     job.Title,
		TechnicianID: tech.ID,
	}
	if interrupted != nil {
		id := interrupted.ID
		evt.InterruptedJobID = &id
		s.publish(ctx, events.JobUnassigned{
			BaseEvent:    events.NewBaseEvent(),
			CompanyID:    companyID,
			JobID:        interrupted.ID,
			TechnicianID: &evt.TechnicianID,
			Reason:       "interrupted",
		})
	}
	s.publish(ctx, evt)

	return Assignment{Job: job, Technician: tech, Interrupted: interrupted}, nil
}

// UnassignJob returns an active job to Pending with an audit note and frees
// the technician if it was their current job.
func (s *Service) UnassignJob(ctx context.Context, companyID, jobID uuid.UUID, reason string) (domain.Job, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Job{}, apperr.ValidationFields(apperr.FieldError{Field: "reason", Message: "is required"})
	}

	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if !job.Status.IsActive() {
		return domain.Job{}, apperr.Conflict(fmt.Sprintf("A job in status %s has no technician to remove", job.Status))
	}

	b := repository.NewBatch()
	prevTech := job.AssignedTechnicianID
	if err := s.releaseHolder(ctx, b, job); err != nil {
		return domain.Job{}, err
	}
	job.Unassign(s.now(), "Unassigned: "+reason)
	b.PutJob(&job)

	if err := s.commit(ctx, "UnassignJob", b); err != nil {
		return domain.Job{}, err
	}

	s.publish(ctx, events.JobUnassigned{
		BaseEvent:    events.NewBaseEvent(),
		CompanyID:    companyID,
		JobID:        job.ID,
		TechnicianID: prevTech,
		Reason:       reason,
	})
	return job, nil
}

// releaseHolder stages freeing the job's technician when the job is their
// current one. A dangling technician reference is ignored.
func (s *Service) releaseHolder(ctx context.Context, b *repository.Batch, job domain.Job) error {
	if job.AssignedTechnicianID == nil {
		return nil
	}
	tech, err := s.store.GetTechnician(ctx, job.CompanyID, *job.AssignedTechnicianID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Unavailable(err)
	}
	if tech.IsCurrentJob(job.ID) {
		tech.Release()
		b.PutTechnician(&tech)
	}
	return nil
}
