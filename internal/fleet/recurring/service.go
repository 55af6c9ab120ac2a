// Package recurring expands service contracts into concrete jobs.
package recurring

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const msgContractNotFound = "Contract not found or you do not have permission to modify it"

// GenerateResult counts what one run produced. Zero values mean nothing
// was due, which is not an error.
type GenerateResult struct {
	CompanyID        uuid.UUID `json:"companyId"`
	Target           time.Time `json:"target"`
	JobsCreated      int       `json:"jobsCreated"`
	ContractsUpdated int       `json:"contractsUpdated"`
}

// Service generates recurring jobs.
type Service struct {
	store    repository.Store
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// New creates a recurring job service.
func New(store repository.Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, eventBus: eventBus, log: log, now: time.Now, newID: uuid.New}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateContract registers an active contract.
func (s *Service) CreateContract(ctx context.Context, companyID uuid.UUID, req transport.CreateContractRequest) (domain.Contract, error) {
	if !req.Frequency.Valid() {
		return domain.Contract{}, apperr.ValidationFields(apperr.FieldError{
			Field:   "frequency",
			Message: "must be one of [Weekly Bi-Weekly Monthly Quarterly Semi-Annually Annually]",
		})
	}
	tmpl := req.Template.ToDomain()
	if tmpl.Title == "" {
		return domain.Contract{}, apperr.ValidationFields(apperr.FieldError{Field: "jobTemplate.title", Message: "is required"})
	}

	c := domain.Contract{
		ID:        s.newID(),
		CompanyID: companyID,
		Customer:  req.Customer.ToDomain(),
		Frequency: req.Frequency,
		StartDate: req.StartDate,
		Template:  tmpl,
		IsActive:  true,
	}
	b := repository.NewBatch()
	b.PutContract(&c)
	if err := s.store.Commit(ctx, b); err != nil {
		s.log.WithContext(ctx).ActionFailed("CreateContract", err)
		return domain.Contract{}, lifecycle.CommitError("CreateContract", err)
	}
	return c, nil
}

// GetContract returns one contract of the company.
func (s *Service) GetContract(ctx context.Context, companyID, id uuid.UUID) (domain.Contract, error) {
	c, err := s.store.GetContract(ctx, companyID, id)
	if err != nil {
		return domain.Contract{}, lifecycle.StoreError(err, msgContractNotFound)
	}
	return c, nil
}

// ListContracts returns the company's active contracts.
func (s *Service) ListContracts(ctx context.Context, companyID uuid.UUID) ([]domain.Contract, error) {
	out, err := s.store.ListActiveContracts(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return out, nil
}

// DeactivateContract stops a contract from producing further jobs. Jobs
// already generated are left alone.
func (s *Service) DeactivateContract(ctx context.Context, companyID, id uuid.UUID) (domain.Contract, error) {
	c, err := s.GetContract(ctx, companyID, id)
	if err != nil {
		return domain.Contract{}, err
	}
	if !c.IsActive {
		return c, nil
	}
	c.IsActive = false
	b := repository.NewBatch()
	b.PutContract(&c)
	if err := s.store.Commit(ctx, b); err != nil {
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.log.WithContext(ctx).ActionFailed("DeactivateContract", err)
		}
		return domain.Contract{}, lifecycle.CommitError("DeactivateContract", err)
	}
	return c, nil
}

// Generate walks every active contract from its cursor up to and including
// the target date, creating one Pending job per period, and moves each
// contract's LastGeneratedUntil to the target. Contracts already generated
// past the target are left untouched. Everything commits in one
// batch. An unknown frequency on any contract aborts the run before
// anything is written.
func (s *Service) Generate(ctx context.Context, companyID uuid.UUID, target time.Time) (GenerateResult, error) {
	if target.IsZero() {
		return GenerateResult{}, apperr.ValidationFields(apperr.FieldError{Field: "target", Message: "is required"})
	}
	limit := dateOf(target)
	res := GenerateResult{CompanyID: companyID, Target: limit}

	contracts, err := s.store.ListActiveContracts(ctx, companyID)
	if err != nil {
		return GenerateResult{}, apperr.Unavailable(err)
	}
	for _, c := range contracts {
		if !c.Frequency.Valid() {
			return GenerateResult{}, unknownFrequency(c.ID, c.Frequency)
		}
	}

	now := s.now()
	b := repository.NewBatch()
	jobs := make([]*domain.Job, 0)
	updated := make([]*domain.Contract, 0, len(contracts))

	for i := range contracts {
		c := &contracts[i]
		// Never move a cursor backwards; that would regenerate covered periods.
		if c.LastGeneratedUntil != nil && dateOf(*c.LastGeneratedUntil).After(limit) {
			continue
		}
		for cursor := c.Cursor(); !dateOf(cursor).After(limit); {
			job := c.NewJob(s.newID(), cursor, now)
			jobs = append(jobs, &job)

			next, err := c.Frequency.Advance(cursor)
			if err != nil {
				return GenerateResult{}, unknownFrequency(c.ID, c.Frequency)
			}
			cursor = next
		}
		until := limit
		c.LastGeneratedUntil = &until
		updated = append(updated, c)
	}

	for _, j := range jobs {
		b.PutJob(j)
	}
	for _, c := range updated {
		b.PutContract(c)
	}
	if b.Len() > 0 {
		if err := s.store.Commit(ctx, b); err != nil {
			if !errors.Is(err, repository.ErrVersionConflict) {
				s.log.WithContext(ctx).ActionFailed("Generate", err)
			}
			return GenerateResult{}, lifecycle.CommitError("Generate", err)
		}
	}

	res.JobsCreated = len(jobs)
	res.ContractsUpdated = len(updated)
	s.log.WithContext(ctx).Info("recurring jobs generated",
		"company_id", companyID.String(),
		"target", limit.Format(time.DateOnly),
		"jobs", res.JobsCreated,
		"contracts", res.ContractsUpdated,
	)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.RecurringJobsGenerated{
			BaseEvent:        events.NewBaseEvent(),
			CompanyID:        companyID,
			Target:           limit,
			JobsCreated:      res.JobsCreated,
			ContractsUpdated: res.ContractsUpdated,
		})
	}
	return res, nil
}

// GenerateAll runs Generate for every company. A failing company does not
// stop the others; the first error is returned after all have run.
func (s *Service) GenerateAll(ctx context.Context, target time.Time) ([]GenerateResult, error) {
	ids, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	var firstErr error
	out := make([]GenerateResult, 0, len(ids))
	for _, id := range ids {
		res, err := s.Generate(ctx, id, target)
		if err != nil {
			s.log.WithContext(ctx).ActionFailed("GenerateAll", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, res)
	}
	return out, firstErr
}

func unknownFrequency(id uuid.UUID, f domain.Frequency) error {
	return apperr.Validation(fmt.Sprintf("Contract %s has an unknown frequency %q; no jobs were generated", id, f))
}

// dateOf drops the time of day, keeping the location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
