// Package assignment turns AI allocation suggestions into dispatcher-approved
// assignments. Suggestions are advisory: every one is re-validated against
// the technician pool before it is shown and again before it is committed.
package assignment

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	msgNoSuggestion      = "No suggestion is available right now. Assign the job manually."
	msgUnknownTechnician = "suggested technician does not exist"
	msgOffDuty           = "technician is marked unavailable"
)

// Assigner commits a single assignment. Implemented by lifecycle.Service.
type Assigner interface {
	AssignJob(ctx context.Context, companyID, jobID, techID uuid.UUID, opts lifecycle.AssignOptions) (lifecycle.Assignment, error)
}

// Proposal is one advisory assignment. A nil TechnicianID means "no
// suggestion"; Interrupts names the job the technician would have to drop.
type Proposal struct {
	JobID          uuid.UUID  `json:"jobId"`
	JobTitle       string     `json:"jobTitle"`
	TechnicianID   *uuid.UUID `json:"technicianId,omitempty"`
	TechnicianName string     `json:"technicianName,omitempty"`
	Reasoning      string     `json:"reasoning"`
	Interrupts     *uuid.UUID `json:"interrupts,omitempty"`
	Feasible       bool       `json:"feasible"`
	Issues         []string   `json:"issues,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// HasSuggestion reports whether the gateway named a known technician.
func (p Proposal) HasSuggestion() bool { return p.TechnicianID != nil }

// Service implements the assignment reconciliation operations.
type Service struct {
	store    repository.Store
	gateway  ports.AIGateway
	assigner Assigner
	cache    ProposalCache
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates an assignment service.
func New(store repository.Store, gateway ports.AIGateway, assigner Assigner, cache ProposalCache, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		assigner: assigner,
		cache:    cache,
		eventBus: eventBus,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ProposeForJob asks the gateway for a technician for one Pending job and
// re-validates the answer against the live pool.
func (s *Service) ProposeForJob(ctx context.Context, companyID, jobID uuid.UUID) (Proposal, error) {
	job, err := s.store.GetJob(ctx, companyID, jobID)
	if err != nil {
		return Proposal{}, lifecycle.StoreError(err, lifecycle.MsgJobNotFound)
	}
	if job.Status != domain.StatusPending {
		return Proposal{}, apperr.Conflict(fmt.Sprintf("Only Pending jobs can be proposed; this job is %s", job.Status))
	}

	pool, err := s.snapshot(ctx, companyID)
	if err != nil {
		return Proposal{}, err
	}
	p := s.propose(ctx, job, pool)
	if p.HasSuggestion() && s.cache != nil {
		if err := s.cache.PutProposal(ctx, companyID, p); err != nil {
			s.log.WithContext(ctx).ActionFailed("ProposeForJob.cache", err)
		}
	}
	return p, nil
}

// snapshot builds the technician availability view for the company.
func (s *Service) snapshot(ctx context.Context, companyID uuid.UUID) ([]ports.TechnicianSnapshot, error) {
	techs, err := s.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	active, err := s.store.ListJobs(ctx, companyID, repository.JobFilter{
		Statuses: []domain.JobStatus{domain.StatusAssigned, domain.StatusEnRoute, domain.StatusInProgress},
	})
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	pool := ports.BuildSnapshots(techs, active)

	// Off-duty technicians stay in the pool so the gateway can explain
	// why it skipped them, but they are flagged unavailable.
	for i, t := range techs {
		if t.Unavailability != nil {
			pool[i].IsAvailable = false
		}
	}
	return pool, nil
}

// propose calls the gateway and re-validates its answer. Gateway failures
// and malformed replies become a zero proposal, never an error.
func (s *Service) propose(ctx context.Context, job domain.Job, pool []ports.TechnicianSnapshot) Proposal {
	p := Proposal{
		JobID:     job.ID,
		JobTitle:  job.Title,
		CreatedAt: s.now(),
	}

	suggestion, err := s.gateway.Allocate(ctx, ports.AllocationRequest{
		CompanyID:      job.CompanyID,
		JobID:          job.ID,
		JobDescription: job.Title + "\n" + job.Description,
		Priority:       job.Priority,
		RequiredSkills: job.RequiredSkills,
		ScheduledTime:  job.ScheduledTime,
		Technicians:    pool,
	})
	if err != nil {
		s.log.WithContext(ctx).GatewayDegraded("Allocate", err)
		p.Reasoning = msgNoSuggestion
		return p
	}

	p.Reasoning = suggestion.Reasoning
	if suggestion.SuggestedTechnicianID == nil {
		if p.Reasoning == "" {
			p.Reasoning = msgNoSuggestion
		}
		return p
	}

	tech, ok := findSnapshot(pool, *suggestion.SuggestedTechnicianID)
	if !ok {
		p.Issues = []string{msgUnknownTechnician}
		return p
	}

	id := tech.ID
	p.TechnicianID = &id
	p.TechnicianName = tech.Name
	p.Interrupts, p.Issues = checkFeasibility(job, tech)
	p.Feasible = len(p.Issues) == 0
	return p
}

// checkFeasibility returns the job the technician would have to drop and
// any reason the assignment cannot stand.
func checkFeasibility(job domain.Job, tech ports.TechnicianSnapshot) (*uuid.UUID, []string) {
	var issues []string
	candidate := domain.Technician{Skills: tech.Skills}
	if missing := candidate.MissingSkills(job.RequiredSkills); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("technician lacks required skills: %v", missing))
	}

	if tech.IsAvailable {
		return nil, issues
	}
	if tech.CurrentJobID == nil {
		return nil, append(issues, msgOffDuty)
	}
	id := *tech.CurrentJobID
	return &id, issues
}

func findSnapshot(pool []ports.TechnicianSnapshot, id uuid.UUID) (ports.TechnicianSnapshot, bool) {
	for _, t := range pool {
		if t.ID == id {
			return t, true
		}
	}
	return ports.TechnicianSnapshot{}, false
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, evt)
	}
}
