package lifecycle

import (
	"context"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/sanitize"

	"github.com/google/uuid"
)

// CreateJob creates a Pending job, or a Draft when requested.
func (s *Service) CreateJob(ctx context.Context, companyID uuid.UUID, req transport.CreateJobRequest) (domain.Job, error) {
	status := domain.StatusPending
	if req.Draft {
		status = domain.StatusDraft
	}

	job := domain.Job{
		ID:                uuid.New(),
		CompanyID:         companyID,
		Title:             sanitize.Text(req.Title),
		Description:       sanitize.Text(req.Description),
		Priority:          req.Priority,
		Status:            status,
		ScheduledTime:     req.ScheduledTime,
		EstimatedDuration: time.Duration(req.EstimatedDurationMinutes) * time.Minute,
		Location:          req.Location.ToDomain(),
		RequiredSkills:    transport.CleanSkills(req.RequiredSkills),
		Customer:          req.Customer.ToDomain(),
	}
	if job.Title == "" {
		return domain.Job{}, apperr.ValidationFields(apperr.FieldError{Field: "title", Message: "is required"})
	}
	if req.Financials != nil {
		job.Financials = financialsFrom(*req.Financials)
	}

	b := repository.NewBatch()
	b.PutJob(&job)
	if err := s.commit(ctx, "CreateJob", b); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// UpdateJob edits descriptive fields. Status and assignment are untouched.
func (s *Service) UpdateJob(ctx context.Context, companyID, jobID uuid.UUID, req transport.UpdateJobRequest) (domain.Job, error) {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, err
	}

	if req.Title != nil {
		title := sanitize.Text(*req.Title)
		if title == "" {
			return domain.Job{}, apperr.ValidationFields(apperr.FieldError{Field: "title", Message: "is required"})
		}
		job.Title = title
	}
	if req.Description != nil {
		job.Description = sanitize.Text(*req.Description)
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}
	if req.ScheduledTime != nil {
		job.ScheduledTime = req.ScheduledTime
	}
	if req.EstimatedDurationMinutes != nil {
		job.EstimatedDuration = time.Duration(*req.EstimatedDurationMinutes) * time.Minute
	}
	if req.Location != nil {
		job.Location = req.Location.ToDomain()
	}
	if req.RequiredSkills != nil {
		job.RequiredSkills = transport.CleanSkills(*req.RequiredSkills)
	}
	if req.Customer != nil {
		job.Customer = req.Customer.ToDomain()
	}
	if req.Financials != nil {
		profit := job.Financials.ActualProfit
		job.Financials = financialsFrom(*req.Financials)
		job.Financials.ActualProfit = profit
	}

	b := repository.NewBatch()
	b.PutJob(&job)
	if err := s.commit(ctx, "UpdateJob", b); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// GetJob returns one job of the company.
func (s *Service) GetJob(ctx context.Context, companyID, jobID uuid.UUID) (domain.Job, error) {
	return s.loadJob(ctx, companyID, jobID)
}

// ListJobs returns the company's jobs matching the query. An empty result is
// an empty slice.
func (s *Service) ListJobs(ctx context.Context, companyID uuid.UUID, req transport.ListJobsRequest) ([]domain.Job, error) {
	filter := repository.JobFilter{
		TechnicianID:   req.TechnicianID,
		ScheduledFrom:  req.From,
		ScheduledUntil: req.Until,
		Limit:          req.Limit,
	}
	for _, raw := range req.Status {
		status := domain.JobStatus(raw)
		if !status.Valid() {
			return nil, apperr.ValidationFields(apperr.FieldError{Field: "status", Message: "unknown status " + raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	jobs, err := s.store.ListJobs(ctx, companyID, filter)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return jobs, nil
}

// DeleteJob removes a job. The technician whose current job it is gets freed
// in the same batch.
func (s *Service) DeleteJob(ctx context.Context, companyID, jobID uuid.UUID) error {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return err
	}

	// Match on CurrentJobID, not AssignedTechnicianID: only the technician
	// actually holding the job is released.
	techs, err := s.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return apperr.Unavailable(err)
	}

	b := repository.NewBatch()
	b.DeleteJob(job)
	for i := range techs {
		if techs[i].IsCurrentJob(job.ID) {
			techs[i].Release()
			b.PutTechnician(&techs[i])
		}
	}
	if err := s.commit(ctx, "DeleteJob", b); err != nil {
		return err
	}

	s.publish(ctx, events.JobDeleted{
		BaseEvent: events.NewBaseEvent(),
		CompanyID: companyID,
		JobID:     job.ID,
	})
	return nil
}

func financialsFrom(f transport.FinancialsDTO) domain.Financials {
	return domain.Financials{
		QuotedValue:       f.QuotedValue,
		ExpectedPartsCost: f.ExpectedPartsCost,
		ActualPartsCost:   f.ActualPartsCost,
		LaborHours:        f.LaborHours,
		LaborRate:         f.LaborRate,
	}
}
