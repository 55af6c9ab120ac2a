package lifecycle

import (
	"context"
	"sort"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"

	"github.com/google/uuid"
)

const msgNoRouteSuggestion = "No route suggestion is available right now; showing the current order."

// RouteStop is one stop of a proposed route.
type RouteStop struct {
	JobID                uuid.UUID        `json:"jobId"`
	Title                string           `json:"title"`
	Status               domain.JobStatus `json:"status"`
	Location             domain.Location  `json:"location"`
	EstimatedArrivalTime *time.Time       `json:"estimatedArrivalTime,omitempty"`
}

// RouteProposal is an advisory stop order. Adjusted is set when the
// suggested order had to be repaired to cover exactly the technician's jobs.
type RouteProposal struct {
	TechnicianID uuid.UUID   `json:"technicianId"`
	Stops        []RouteStop `json:"stops"`
	Reasoning    string      `json:"reasoning"`
	Adjusted     bool        `json:"adjusted"`
	Suggested    bool        `json:"suggested"`
}

// ConfirmRoute writes 0-based route positions for ordered and clears them
// for excluded, in one batch. Re-applying the same order changes nothing.
func (s *Service) ConfirmRoute(ctx context.Context, companyID, techID uuid.UUID, ordered, excluded []uuid.UUID) ([]domain.Job, error) {
	seen := make(map[uuid.UUID]bool, len(ordered)+len(excluded))
	for _, id := range append(append([]uuid.UUID{}, ordered...), excluded...) {
		if seen[id] {
			return nil, apperr.ValidationFields(apperr.FieldError{Field: "orderedJobIds", Message: "each job may appear only once"})
		}
		seen[id] = true
	}

	if _, err := s.loadTechnician(ctx, companyID, techID); err != nil {
		return nil, err
	}

	b := repository.NewBatch()
	staged := make([]*domain.Job, 0, len(ordered)+len(excluded))

	for pos, id := range ordered {
		job, err := s.routableJob(ctx, companyID, techID, id)
		if err != nil {
			return nil, err
		}
		if job.RouteOrder == nil || *job.RouteOrder != pos {
			job.RouteOrder = domain.Ptr(pos)
			b.PutJob(&job)
		}
		staged = append(staged, &job)
	}
	for _, id := range excluded {
		job, err := s.loadJob(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		if !job.IsAssignedTo(techID) {
			return nil, errNotTechniciansJob(job)
		}
		if job.RouteOrder != nil {
			job.RouteOrder = nil
			b.PutJob(&job)
		}
		staged = append(staged, &job)
	}

	if b.Len() > 0 {
		if err := s.commit(ctx, "ConfirmRoute", b); err != nil {
			return nil, err
		}
	}

	out := make([]domain.Job, len(staged))
	for i, j := range staged {
		out[i] = *j
	}
	if b.Len() == 0 {
		return out, nil
	}

	s.publish(ctx, events.RouteConfirmed{
		BaseEvent:    events.NewBaseEvent(),
		CompanyID:    companyID,
		TechnicianID: techID,
		JobIDs:       append([]uuid.UUID{}, ordered...),
	})
	return out, nil
}

// routableJob loads a job that may carry a route position for techID.
func (s *Service) routableJob(ctx context.Context, companyID, techID, jobID uuid.UUID) (domain.Job, error) {
	job, err := s.loadJob(ctx, companyID, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if !job.IsAssignedTo(techID) {
		return domain.Job{}, errNotTechniciansJob(job)
	}
	if !job.Status.IsRouted() {
		return domain.Job{}, apperr.Conflict("Job " + job.Title + " is " + string(job.Status) + " and cannot be routed")
	}
	return job, nil
}

func errNotTechniciansJob(job domain.Job) error {
	return apperr.Conflict("Job " + job.Title + " is not assigned to this technician")
}

// ProposeRoute asks the gateway for a stop order over the technician's
// Assigned and En Route jobs. The suggestion is repaired to name each of
// those jobs exactly once; a gateway failure returns the current order.
func (s *Service) ProposeRoute(ctx context.Context, companyID, techID uuid.UUID) (RouteProposal, error) {
	tech, err := s.loadTechnician(ctx, companyID, techID)
	if err != nil {
		return RouteProposal{}, err
	}
	jobs, err := s.store.ListJobs(ctx, companyID, repository.JobFilter{
		Statuses:     []domain.JobStatus{domain.StatusAssigned, domain.StatusEnRoute},
		TechnicianID: &tech.ID,
	})
	if err != nil {
		return RouteProposal{}, apperr.Unavailable(err)
	}
	sortByRoute(jobs)

	proposal := RouteProposal{TechnicianID: tech.ID, Stops: []RouteStop{}}
	if len(jobs) == 0 {
		proposal.Reasoning = "The technician has no routable jobs."
		return proposal, nil
	}

	tasks := make([]ports.RouteTask, len(jobs))
	for i, j := range jobs {
		tasks[i] = ports.RouteTask{
			TaskID:        j.ID,
			Title:         j.Title,
			Location:      j.Location,
			Priority:      j.Priority,
			ScheduledTime: j.ScheduledTime,
		}
	}

	plan, err := s.gateway.OptimizeRoute(ctx, ports.RouteRequest{
		CompanyID:       companyID,
		TechnicianID:    tech.ID,
		CurrentLocation: tech.Location,
		Tasks:           tasks,
	})
	if err != nil {
		s.log.WithContext(ctx).GatewayDegraded("OptimizeRoute", err)
		for _, j := range jobs {
			proposal.Stops = append(proposal.Stops, stopFor(j, nil))
		}
		proposal.Reasoning = msgNoRouteSuggestion
		return proposal, nil
	}

	proposal.Stops, proposal.Adjusted = repairRoute(jobs, plan.OptimizedRoute)
	proposal.Reasoning = plan.Reasoning
	proposal.Suggested = true
	return proposal, nil
}

// repairRoute keeps suggested stops that name one of jobs, once each, and
// appends the jobs the suggestion missed in their current order.
func repairRoute(jobs []domain.Job, suggested []ports.RouteStop) ([]RouteStop, bool) {
	byID := make(map[uuid.UUID]domain.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	adjusted := false
	used := make(map[uuid.UUID]bool, len(jobs))
	out := make([]RouteStop, 0, len(jobs))
	for _, stop := range suggested {
		j, ok := byID[stop.TaskID]
		if !ok || used[stop.TaskID] {
			adjusted = true
			continue
		}
		used[stop.TaskID] = true
		eta := stop.EstimatedArrivalTime
		var etaPtr *time.Time
		if !eta.IsZero() {
			etaPtr = &eta
		}
		out = append(out, stopFor(j, etaPtr))
	}
	for _, j := range jobs {
		if !used[j.ID] {
			adjusted = true
			out = append(out, stopFor(j, nil))
		}
	}
	return out, adjusted
}

func stopFor(j domain.Job, eta *time.Time) RouteStop {
	return RouteStop{
		JobID:                j.ID,
		Title:                j.Title,
		Status:               j.Status,
		Location:             j.Location,
		EstimatedArrivalTime: eta,
	}
}

// sortByRoute orders jobs by route position, unrouted last.
func sortByRoute(jobs []domain.Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		ra, rb := jobs[a].RouteOrder, jobs[b].RouteOrder
		switch {
		case ra == nil:
			return false
		case rb == nil:
			return true
		default:
			return *ra < *rb
		}
	})
}
