package assignment

import (
	"context"
	"fmt"
	"slices"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Skip reasons reported by ConfirmBatch.
const (
	SkipDeselected        = "deselected"
	SkipWasUnavailable    = "technician was not available when the batch was planned"
	SkipNowUnavailable    = "technician is no longer available"
	SkipTechnicianReused  = "technician already assigned earlier in this batch"
	SkipUnknownTechnician = "technician not found"
	SkipJobGone           = "job no longer exists"
	SkipJobNotPending     = "job is no longer Pending"
)

// BatchProposal is the result of one planning pass over several jobs,
// together with the pool as it was before the pass.
type BatchProposal struct {
	BatchID   uuid.UUID                  `json:"batchId"`
	Proposals []Proposal                 `json:"proposals"`
	Snapshot  []ports.TechnicianSnapshot `json:"snapshot"`
}

// Decision is the dispatcher's final choice for one job. A nil
// TechnicianID deselects the job.
type Decision struct {
	JobID        uuid.UUID  `json:"jobId"`
	TechnicianID *uuid.UUID `json:"technicianId,omitempty"`
	// Suggested is what the gateway proposed, kept for feedback.
	Suggested *uuid.UUID `json:"suggested,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// SkippedDecision explains why a decision was not applied.
type SkippedDecision struct {
	JobID  uuid.UUID `json:"jobId"`
	Reason string    `json:"reason"`
}

// BatchResult reports what a confirmation actually committed.
type BatchResult struct {
	Applied []uuid.UUID       `json:"applied"`
	Skipped []SkippedDecision `json:"skipped"`
}

// ProposeBatch proposes a technician for each job in order. Jobs are
// processed one at a time against a working copy of the pool: once a free
// technician is proposed they are marked busy with that job before the next
// job is evaluated, and they are never proposed twice in one pass.
func (s *Service) ProposeBatch(ctx context.Context, companyID uuid.UUID, jobIDs []uuid.UUID) (BatchProposal, error) {
	if len(jobIDs) == 0 {
		return BatchProposal{}, apperr.ValidationFields(apperr.FieldError{Field: "jobIds", Message: "is required"})
	}

	jobs := make([]domain.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := s.store.GetJob(ctx, companyID, id)
		if err != nil {
			return BatchProposal{}, lifecycle.StoreError(err, lifecycle.MsgJobNotFound)
		}
		jobs = append(jobs, job)
	}

	original, err := s.snapshot(ctx, companyID)
	if err != nil {
		return BatchProposal{}, err
	}
	work := clonePool(original)

	out := BatchProposal{
		BatchID:   uuid.New(),
		Proposals: make([]Proposal, 0, len(jobs)),
		Snapshot:  original,
	}
	claimedBy := make(map[uuid.UUID]string)

	for _, job := range jobs {
		if job.Status != domain.StatusPending {
			out.Proposals = append(out.Proposals, Proposal{
				JobID:     job.ID,
				JobTitle:  job.Title,
				Reasoning: SkipJobNotPending,
				CreatedAt: s.now(),
			})
			continue
		}

		p := s.propose(ctx, job, work)
		if p.TechnicianID != nil {
			if title, taken := claimedBy[*p.TechnicianID]; taken {
				p = Proposal{
					JobID:     job.ID,
					JobTitle:  job.Title,
					Reasoning: fmt.Sprintf("%s was already proposed for %q in this batch", p.TechnicianName, title),
					CreatedAt: p.CreatedAt,
				}
			} else {
				claim(work, *p.TechnicianID, job)
				claimedBy[*p.TechnicianID] = job.Title
			}
		}
		out.Proposals = append(out.Proposals, p)
	}

	if s.cache != nil {
		if err := s.cache.PutBatch(ctx, companyID, out); err != nil {
			s.log.WithContext(ctx).ActionFailed("ProposeBatch.cache", err)
		}
	}
	return out, nil
}

// claim marks a technician in the working pool as busy with job.
func claim(pool []ports.TechnicianSnapshot, techID uuid.UUID, job domain.Job) {
	for i := range pool {
		if pool[i].ID != techID {
			continue
		}
		if !pool[i].IsAvailable {
			return
		}
		id := job.ID
		pool[i].IsAvailable = false
		pool[i].CurrentJobID = &id
		pool[i].Jobs = append(pool[i].Jobs, ports.SnapshotJob{
			ID:            job.ID,
			Title:         job.Title,
			Status:        domain.StatusAssigned,
			Priority:      job.Priority,
			ScheduledTime: job.ScheduledTime,
		})
		return
	}
}

func clonePool(pool []ports.TechnicianSnapshot) []ports.TechnicianSnapshot {
	out := make([]ports.TechnicianSnapshot, len(pool))
	for i, t := range pool {
		c := t
		c.Skills = slices.Clone(t.Skills)
		c.Jobs = slices.Clone(t.Jobs)
		if t.CurrentJobID != nil {
			id := *t.CurrentJobID
			c.CurrentJobID = &id
		}
		out[i] = c
	}
	return out
}

// ConfirmBatch commits the dispatcher's decisions. A decision is honoured
// only if its technician was available in the original pre-batch snapshot
// and still is; stale decisions are skipped and reported, not treated as
// errors. All honoured assignments and the feedback log commit together.
func (s *Service) ConfirmBatch(ctx context.Context, companyID uuid.UUID, decisions []Decision, original []ports.TechnicianSnapshot) (BatchResult, error) {
	wasAvailable := make(map[uuid.UUID]bool, len(original))
	for _, t := range original {
		wasAvailable[t.ID] = t.IsAvailable
	}

	techs, err := s.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return BatchResult{}, apperr.Unavailable(err)
	}
	live := make(map[uuid.UUID]*domain.Technician, len(techs))
	for i := range techs {
		live[techs[i].ID] = &techs[i]
	}

	now := s.now()
	b := repository.NewBatch()
	res := BatchResult{Applied: []uuid.UUID{}, Skipped: []SkippedDecision{}}
	used := make(map[uuid.UUID]bool)
	var assigned []events.JobAssigned

	skip := func(d Decision, reason string) {
		res.Skipped = append(res.Skipped, SkippedDecision{JobID: d.JobID, Reason: reason})
	}

	for _, d := range decisions {
		if d.Suggested != nil || d.TechnicianID != nil {
			b.AppendFeedback(feedbackFor(companyID, d, now))
		}
		if d.TechnicianID == nil {
			skip(d, SkipDeselected)
			continue
		}
		techID := *d.TechnicianID
		if !wasAvailable[techID] {
			skip(d, SkipWasUnavailable)
			continue
		}
		tech, ok := live[techID]
		if !ok {
			skip(d, SkipUnknownTechnician)
			continue
		}
		if used[techID] {
			skip(d, SkipTechnicianReused)
			continue
		}
		if !tech.IsAvailable || tech.Unavailability != nil {
			skip(d, SkipNowUnavailable)
			continue
		}

		job, err := s.store.GetJob(ctx, companyID, d.JobID)
		if errors.Is(err, repository.ErrNotFound) {
			skip(d, SkipJobGone)
			continue
		}
		if err != nil {
			return BatchResult{}, apperr.Unavailable(err)
		}
		if job.Status != domain.StatusPending {
			skip(d, SkipJobNotPending)
			continue
		}

		job.AssignTo(techID, now)
		tech.TakeJob(job.ID)
		b.PutJob(&job)
		b.PutTechnician(tech)
		used[techID] = true

		res.Applied = append(res.Applied, job.ID)
		assigned = append(assigned, events.JobAssigned{
			BaseEvent:    events.NewBaseEvent(),
			CompanyID:    companyID,
			JobID:        job.ID,
			JobTitle:     job.Title,
			TechnicianID: techID,
		})
	}

	if b.Len() > 0 {
		if err := s.store.Commit(ctx, b); err != nil {
			if !errors.Is(err, repository.ErrVersionConflict) {
				s.log.WithContext(ctx).ActionFailed("ConfirmBatch", err)
			}
			return BatchResult{}, lifecycle.CommitError("ConfirmBatch", err)
		}
	}

	for _, evt := range assigned {
		s.publish(ctx, evt)
	}
	return res, nil
}

// ConfirmCachedBatch confirms decisions against a batch planned earlier by
// ProposeBatch, using the snapshot stored with it.
func (s *Service) ConfirmCachedBatch(ctx context.Context, companyID, batchID uuid.UUID, decisions []Decision) (BatchResult, error) {
	if s.cache == nil {
		return BatchResult{}, apperr.Gone("This batch proposal has expired. Plan the batch again.")
	}
	planned, ok, err := s.cache.GetBatch(ctx, companyID, batchID)
	if err != nil {
		return BatchResult{}, apperr.Unavailable(err)
	}
	if !ok {
		return BatchResult{}, apperr.Gone("This batch proposal has expired. Plan the batch again.")
	}

	suggestions := make(map[uuid.UUID]Proposal, len(planned.Proposals))
	for _, p := range planned.Proposals {
		suggestions[p.JobID] = p
	}
	for i := range decisions {
		if p, ok := suggestions[decisions[i].JobID]; ok {
			decisions[i].Suggested = p.TechnicianID
			decisions[i].Reasoning = p.Reasoning
		}
	}

	res, err := s.ConfirmBatch(ctx, companyID, decisions, planned.Snapshot)
	if err != nil {
		return BatchResult{}, err
	}
	if err := s.cache.DeleteBatch(ctx, companyID, batchID); err != nil {
		s.log.WithContext(ctx).ActionFailed("ConfirmCachedBatch.cache", err)
	}
	return res, nil
}
