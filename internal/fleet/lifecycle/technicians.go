package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/phone"
	"dispatch_backend/platform/sanitize"

	"github.com/google/uuid"
)

// CreateTechnician registers an available technician.
func (s *Service) CreateTechnician(ctx context.Context, companyID uuid.UUID, req transport.CreateTechnicianRequest) (domain.Technician, error) {
	tech := domain.Technician{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Name:        sanitize.Text(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Skills:      transport.CleanSkills(req.Skills),
		Location:    req.Location.ToDomain(),
		IsAvailable: true,
		IsOnCall:    req.IsOnCall,
	}
	if tech.Name == "" {
		return domain.Technician{}, apperr.ValidationFields(apperr.FieldError{Field: "name", Message: "is required"})
	}
	if req.Phone != "" {
		formatted, err := phone.Parse(req.Phone, phone.DefaultRegion)
		if err != nil {
			return domain.Technician{}, apperr.ValidationFields(apperr.FieldError{Field: "phone", Message: "must be a valid phone number"})
		}
		tech.Phone = formatted
	}
	if req.WorkingHours != nil {
		tech.WorkingHours = *req.WorkingHours
	}

	b := repository.NewBatch()
	b.PutTechnician(&tech)
	if err := s.commit(ctx, "CreateTechnician", b); err != nil {
		return domain.Technician{}, err
	}
	return tech, nil
}

// GetTechnician returns one technician of the company.
func (s *Service) GetTechnician(ctx context.Context, companyID, techID uuid.UUID) (domain.Technician, error) {
	return s.loadTechnician(ctx, companyID, techID)
}

// ListTechnicians returns the company's technicians ordered by name.
func (s *Service) ListTechnicians(ctx context.Context, companyID uuid.UUID) ([]domain.Technician, error) {
	techs, err := s.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return techs, nil
}

// UpdateTechnicianLocation records the technician's live position.
func (s *Service) UpdateTechnicianLocation(ctx context.Context, companyID, techID uuid.UUID, loc domain.Location) (domain.Technician, error) {
	tech, err := s.loadTechnician(ctx, companyID, techID)
	if err != nil {
		return domain.Technician{}, err
	}
	tech.Location = loc

	b := repository.NewBatch()
	b.PutTechnician(&tech)
	if err := s.commit(ctx, "UpdateTechnicianLocation", b); err != nil {
		return domain.Technician{}, err
	}
	return tech, nil
}

// Unavailable is the result of MarkTechnicianUnavailable.
type Unavailable struct {
	Technician domain.Technician `json:"technician"`
	FreedJobs  []domain.Job      `json:"freedJobs"`
}

// MarkTechnicianUnavailable takes a technician off duty and returns every
// job they hold to Pending. The technician and all freed jobs commit in one
// batch; on failure nothing changes.
func (s *Service) MarkTechnicianUnavailable(ctx context.Context, companyID, techID uuid.UUID, req transport.MarkUnavailableRequest) (Unavailable, error) {
	reason := sanitize.Text(req.Reason)
	if reason == "" {
		return Unavailable{}, apperr.ValidationFields(apperr.FieldError{Field: "reason", Message: "is required"})
	}
	now := s.now()
	from := now
	if req.From != nil {
		from = *req.From
	}
	if req.Until != nil && !req.Until.After(from) {
		return Unavailable{}, apperr.ValidationFields(apperr.FieldError{Field: "until", Message: "must be after from"})
	}

	tech, err := s.loadTechnician(ctx, companyID, techID)
	if err != nil {
		return Unavailable{}, err
	}
	jobs, err := s.store.ListJobs(ctx, companyID, repository.JobFilter{
		Statuses:     []domain.JobStatus{domain.StatusAssigned, domain.StatusEnRoute, domain.StatusInProgress},
		TechnicianID: &tech.ID,
	})
	if err != nil {
		return Unavailable{}, apperr.Unavailable(err)
	}

	b := repository.NewBatch()
	note := fmt.Sprintf("Returned to Pending: technician %s marked unavailable (%s)", tech.Name, reason)
	for i := range jobs {
		jobs[i].Unassign(now, note)
		b.PutJob(&jobs[i])
	}

	tech.IsAvailable = false
	tech.CurrentJobID = nil
	tech.Unavailability = &domain.Unavailability{
		Reason: reason,
		From:   from,
		Until:  cloneTime(req.Until),
	}
	b.PutTechnician(&tech)

	if err := s.commit(ctx, "MarkTechnicianUnavailable", b); err != nil {
		return Unavailable{}, err
	}

	freed := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		freed[i] = j.ID
	}
	s.publish(ctx, events.TechnicianUnavailable{
		BaseEvent:    events.NewBaseEvent(),
		CompanyID:    companyID,
		TechnicianID: tech.ID,
		Reason:       reason,
		FreedJobIDs:  freed,
	})
	return Unavailable{Technician: tech, FreedJobs: jobs}, nil
}

// MarkTechnicianAvailable clears the unavailability window.
func (s *Service) MarkTechnicianAvailable(ctx context.Context, companyID, techID uuid.UUID) (domain.Technician, error) {
	tech, err := s.loadTechnician(ctx, companyID, techID)
	if err != nil {
		return domain.Technician{}, err
	}
	if tech.Unavailability == nil && tech.IsAvailable {
		return tech, nil
	}
	tech.Unavailability = nil
	tech.IsAvailable = tech.CurrentJobID == nil

	b := repository.NewBatch()
	b.PutTechnician(&tech)
	if err := s.commit(ctx, "MarkTechnicianAvailable", b); err != nil {
		return domain.Technician{}, err
	}
	return tech, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
