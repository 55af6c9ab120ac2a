package assignment

import (
	"context"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/google/uuid"
)

// ConfirmProposal assigns jobID to techID. When the technician holds
// another job the call fails with a conflict unless confirmInterruption is
// set; the caller must have shown the dispatcher which job gets dropped.
func (s *Service) ConfirmProposal(ctx context.Context, companyID, jobID, techID uuid.UUID, confirmInterruption bool) (lifecycle.Assignment, error) {
	var suggested *uuid.UUID
	var reasoning string
	if s.cache != nil {
		p, ok, err := s.cache.GetProposal(ctx, companyID, jobID)
		if err != nil {
			s.log.WithContext(ctx).ActionFailed("ConfirmProposal.cache", err)
		} else if ok {
			suggested, reasoning = p.TechnicianID, p.Reasoning
		}
	}

	res, err := s.assigner.AssignJob(ctx, companyID, jobID, techID, lifecycle.AssignOptions{
		AllowInterruption: confirmInterruption,
	})
	if err != nil {
		return lifecycle.Assignment{}, err
	}

	s.dropCached(ctx, companyID, jobID)
	chosen := techID
	if err := s.RecordFeedback(ctx, companyID, Decision{
		JobID:        jobID,
		TechnicianID: &chosen,
		Suggested:    suggested,
		Reasoning:    reasoning,
	}); err != nil {
		// The assignment already committed; feedback is best effort.
		s.log.WithContext(ctx).ActionFailed("ConfirmProposal.feedback", err)
	}
	return res, nil
}

// DeclineProposal discards a cached proposal and records that the
// dispatcher did not take it.
func (s *Service) DeclineProposal(ctx context.Context, companyID, jobID uuid.UUID) error {
	if s.cache == nil {
		return apperr.NotFound("No open proposal for this job")
	}
	p, ok, err := s.cache.GetProposal(ctx, companyID, jobID)
	if err != nil {
		return apperr.Unavailable(err)
	}
	if !ok {
		return apperr.NotFound("No open proposal for this job")
	}
	s.dropCached(ctx, companyID, jobID)

	if p.TechnicianID == nil {
		return nil
	}
	return s.RecordFeedback(ctx, companyID, Decision{
		JobID:     jobID,
		Suggested: p.TechnicianID,
		Reasoning: p.Reasoning,
	})
}

// ListProposals returns the open proposals for the company.
func (s *Service) ListProposals(ctx context.Context, companyID uuid.UUID) ([]Proposal, error) {
	if s.cache == nil {
		return []Proposal{}, nil
	}
	out, err := s.cache.ListProposals(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return out, nil
}

// RecordFeedback appends one suggestion-versus-choice record.
func (s *Service) RecordFeedback(ctx context.Context, companyID uuid.UUID, d Decision) error {
	b := repository.NewBatch()
	b.AppendFeedback(feedbackFor(companyID, d, s.now()))
	return s.commitFeedback(ctx, b)
}

func (s *Service) commitFeedback(ctx context.Context, b *repository.Batch) error {
	if err := s.store.Commit(ctx, b); err != nil {
		s.log.WithContext(ctx).ActionFailed("RecordFeedback", err)
		return lifecycle.CommitError("RecordFeedback", err)
	}
	return nil
}

func feedbackFor(companyID uuid.UUID, d Decision, now time.Time) domain.DispatcherFeedback {
	accepted := d.Suggested != nil && d.TechnicianID != nil && *d.Suggested == *d.TechnicianID
	return domain.DispatcherFeedback{
		ID:                    uuid.New(),
		CompanyID:             companyID,
		JobID:                 d.JobID,
		SuggestedTechnicianID: d.Suggested,
		ChosenTechnicianID:    d.TechnicianID,
		Accepted:              accepted,
		Reasoning:             d.Reasoning,
		CreatedAt:             now,
	}
}

func (s *Service) dropCached(ctx context.Context, companyID, jobID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteProposal(ctx, companyID, jobID); err != nil {
		s.log.WithContext(ctx).ActionFailed("DeleteProposal", err)
	}
}
