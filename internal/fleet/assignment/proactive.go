package assignment

import (
	"context"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"

	"github.com/google/uuid"
)

// DetectProactiveCandidates returns the jobs in current that were not in
// previous and are High priority and Pending. The previous snapshot is an
// explicit argument so the watcher owns its own state.
func DetectProactiveCandidates(previous, current []domain.Job) []domain.Job {
	seen := make(map[uuid.UUID]struct{}, len(previous))
	for _, j := range previous {
		seen[j.ID] = struct{}{}
	}
	var out []domain.Job
	for _, j := range current {
		if _, ok := seen[j.ID]; ok {
			continue
		}
		if j.Priority == domain.PriorityHigh && j.Status == domain.StatusPending {
			out = append(out, j)
		}
	}
	return out
}

// RunProactive proposes a technician for every new urgent job, caches the
// proposals and announces them. It returns the proposals it made.
func (s *Service) RunProactive(ctx context.Context, companyID uuid.UUID, previous, current []domain.Job) []Proposal {
	candidates := DetectProactiveCandidates(previous, current)
	if len(candidates) == 0 {
		return nil
	}

	pool, err := s.snapshot(ctx, companyID)
	if err != nil {
		s.log.WithContext(ctx).ActionFailed("RunProactive.snapshot", err)
		return nil
	}

	out := make([]Proposal, 0, len(candidates))
	for _, job := range candidates {
		if job.CompanyID != companyID {
			continue
		}
		p := s.propose(ctx, job, pool)
		if s.cache != nil {
			if err := s.cache.PutProposal(ctx, companyID, p); err != nil {
				s.log.WithContext(ctx).ActionFailed("RunProactive.cache", err)
			}
		}
		s.publish(ctx, events.ProposalReady{
			BaseEvent:    events.NewBaseEvent(),
			CompanyID:    companyID,
			JobID:        job.ID,
			TechnicianID: p.TechnicianID,
			Interrupts:   p.Interrupts != nil,
			Reasoning:    p.Reasoning,
		})
		out = append(out, p)
	}
	return out
}
