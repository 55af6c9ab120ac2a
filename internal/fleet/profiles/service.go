// Package profiles handles technician-initiated profile edits that a
// dispatcher reviews before they take effect.
package profiles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/phone"
	"dispatch_backend/platform/sanitize"
	"dispatch_backend/platform/validator"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const msgRequestNotFound = "Change request not found or you do not have permission to modify it"

var fieldCheck = validator.New()

// Service implements the profile change request workflow.
type Service struct {
	store    repository.Store
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a profile change service.
func New(store repository.Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, eventBus: eventBus, log: log, now: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Submit records a pending change request for a technician.
func (s *Service) Submit(ctx context.Context, companyID uuid.UUID, req transport.SubmitProfileChangeRequest) (domain.ProfileChangeRequest, error) {
	if _, err := s.store.GetTechnician(ctx, companyID, req.TechnicianID); err != nil {
		return domain.ProfileChangeRequest{}, lifecycle.StoreError(err, lifecycle.MsgTechnicianNotFound)
	}
	changes, err := normalize(req.Changes.ToDomain())
	if err != nil {
		return domain.ProfileChangeRequest{}, err
	}
	if changes.IsEmpty() {
		return domain.ProfileChangeRequest{}, apperr.Validation("At least one field must change")
	}

	r := domain.ProfileChangeRequest{
		ID:           uuid.New(),
		CompanyID:    companyID,
		TechnicianID: req.TechnicianID,
		Requested:    changes,
		Status:       domain.ChangeRequestPending,
	}
	b := repository.NewBatch()
	b.PutChangeRequest(&r)
	if err := s.commit(ctx, "SubmitProfileChange", b); err != nil {
		return domain.ProfileChangeRequest{}, err
	}
	return r, nil
}

// ListPending returns the requests awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, companyID uuid.UUID) ([]domain.ProfileChangeRequest, error) {
	out, err := s.store.ListChangeRequests(ctx, companyID, domain.ChangeRequestPending)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return out, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (domain.ProfileChangeRequest, error) {
	r, err := s.store.GetChangeRequest(ctx, companyID, id)
	if err != nil {
		return domain.ProfileChangeRequest{}, lifecycle.StoreError(err, msgRequestNotFound)
	}
	return r, nil
}

// Approve applies approved to the technician and closes the request. A nil
// approved means "as requested". The technician and the request are written
// together.
func (s *Service) Approve(ctx context.Context, companyID, requestID uuid.UUID, approved *domain.ProfileChanges, notes string) (domain.ProfileChangeRequest, domain.Technician, error) {
	r, err := s.pending(ctx, companyID, requestID)
	if err != nil {
		return domain.ProfileChangeRequest{}, domain.Technician{}, err
	}

	changes := r.Requested.Clone()
	if approved != nil {
		changes = approved.Clone()
	}
	changes, err = normalize(changes)
	if err != nil {
		return domain.ProfileChangeRequest{}, domain.Technician{}, err
	}

	tech, err := s.store.GetTechnician(ctx, companyID, r.TechnicianID)
	if err != nil {
		return domain.ProfileChangeRequest{}, domain.Technician{}, lifecycle.StoreError(err, lifecycle.MsgTechnicianNotFound)
	}
	changes.ApplyTo(&tech)

	now := s.now()
	r.Status = domain.ChangeRequestApproved
	r.Approved = &changes
	r.ReviewNotes = sanitize.Text(notes)
	r.ReviewedAt = &now

	b := repository.NewBatch()
	b.PutChangeRequest(&r)
	b.PutTechnician(&tech)
	if err := s.commit(ctx, "ApproveProfileChange", b); err != nil {
		return domain.ProfileChangeRequest{}, domain.Technician{}, err
	}
	s.reviewed(ctx, r)
	return r, tech, nil
}

// Reject closes the request without touching the technician.
func (s *Service) Reject(ctx context.Context, companyID, requestID uuid.UUID, notes string) (domain.ProfileChangeRequest, error) {
	r, err := s.pending(ctx, companyID, requestID)
	if err != nil {
		return domain.ProfileChangeRequest{}, err
	}
	now := s.now()
	r.Status = domain.ChangeRequestRejected
	r.ReviewNotes = sanitize.Text(notes)
	r.ReviewedAt = &now

	b := repository.NewBatch()
	b.PutChangeRequest(&r)
	if err := s.commit(ctx, "RejectProfileChange", b); err != nil {
		return domain.ProfileChangeRequest{}, err
	}
	s.reviewed(ctx, r)
	return r, nil
}

func (s *Service) pending(ctx context.Context, companyID, id uuid.UUID) (domain.ProfileChangeRequest, error) {
	r, err := s.Get(ctx, companyID, id)
	if err != nil {
		return domain.ProfileChangeRequest{}, err
	}
	if r.IsTerminal() {
		return domain.ProfileChangeRequest{}, apperr.Conflict(fmt.Sprintf("This request was already %s", r.Status))
	}
	return r, nil
}

// normalize cleans free text and validates contact fields.
func normalize(c domain.ProfileChanges) (domain.ProfileChanges, error) {
	var fields []apperr.FieldError
	if c.Name != nil {
		name := sanitize.Text(*c.Name)
		if name == "" {
			fields = append(fields, apperr.FieldError{Field: "name", Message: "must not be empty"})
		}
		c.Name = &name
	}
	if c.Email != nil {
		email := strings.TrimSpace(*c.Email)
		if err := fieldCheck.Var(email, "required,email"); err != nil {
			fields = append(fields, apperr.FieldError{Field: "email", Message: "must be a valid email address"})
		}
		c.Email = &email
	}
	if c.Phone != nil {
		formatted, err := phone.Parse(*c.Phone, phone.DefaultRegion)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "phone", Message: "must be a valid phone number"})
		} else {
			c.Phone = &formatted
		}
	}
	if c.Skills != nil {
		skills := transport.CleanSkills(*c.Skills)
		c.Skills = &skills
	}
	if len(fields) > 0 {
		return domain.ProfileChanges{}, apperr.ValidationFields(fields...)
	}
	return c, nil
}

func (s *Service) commit(ctx context.Context, op string, b *repository.Batch) error {
	if err := s.store.Commit(ctx, b); err != nil {
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.log.WithContext(ctx).ActionFailed(op, err)
		}
		return lifecycle.CommitError(op, err)
	}
	return nil
}

func (s *Service) reviewed(ctx context.Context, r domain.ProfileChangeRequest) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.ProfileChangeReviewed{
		BaseEvent:    events.NewBaseEvent(),
		CompanyID:    r.CompanyID,
		RequestID:    r.ID,
		TechnicianID: r.TechnicianID,
		Status:       string(r.Status),
	})
}
