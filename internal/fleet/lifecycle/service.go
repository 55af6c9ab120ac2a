// Package lifecycle owns the job status state machine and every write that
// couples a job to a technician: assignment, unassignment, status changes,
// unavailability, deletion, route order and capability tokens.
package lifecycle

import (
	"context"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// User-facing messages.
const (
	MsgJobNotFound        = "Job not found or you do not have permission to modify it"
	MsgTechnicianNotFound = "Technician not found or you do not have permission to modify it"
	MsgConcurrentChange   = "This record was changed by someone else. Reload and try again."
	MsgInvalidLink        = "This link is invalid"
	MsgExpiredLink        = "This link has expired"
)

// Service implements the job lifecycle operations.
type Service struct {
	store      repository.Store
	gateway    ports.AIGateway
	eventBus   events.Bus
	policy     config.DispatchPolicy
	publicBase string
	log        *logger.Logger
	now        func() time.Time
}

// New creates a lifecycle service. publicBaseURL prefixes tracking links.
func New(store repository.Store, gateway ports.AIGateway, eventBus events.Bus, policy config.DispatchPolicy, publicBaseURL string, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		gateway:    gateway,
		eventBus:   eventBus,
		policy:     policy,
		publicBase: publicBaseURL,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) loadJob(ctx context.Context, companyID, jobID uuid.UUID) (domain.Job, error) {
	job, err := s.store.GetJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, storeError(err, MsgJobNotFound)
	}
	return job, nil
}

func (s *Service) loadTechnician(ctx context.Context, companyID, techID uuid.UUID) (domain.Technician, error) {
	tech, err := s.store.GetTechnician(ctx, companyID, techID)
	if err != nil {
		return domain.Technician{}, storeError(err, MsgTechnicianNotFound)
	}
	return tech, nil
}

// commit applies the batch and maps store failures to user-facing errors.
func (s *Service) commit(ctx context.Context, op string, b *repository.Batch) error {
	err := s.store.Commit(ctx, b)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrVersionConflict) {
		s.log.WithContext(ctx).ActionFailed(op, err)
	}
	return CommitError(op, err)
}

// storeError converts a read failure. Missing and foreign documents share
// one message.
func storeError(err error, notFound string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	}
	return apperr.Unavailable(err)
}

// StoreError is storeError for sibling fleet services.
func StoreError(err error, notFound string) error { return storeError(err, notFound) }

// CommitError maps a failed Commit the same way the lifecycle service does.
func CommitError(op string, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperr.Wrap(apperr.KindConflict, MsgConcurrentChange, err).WithOp(op)
	}
	return apperr.Unavailable(err).WithOp(op)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, evt)
	}
}
