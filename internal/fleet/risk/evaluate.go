// Package risk watches technicians who are mid-job and estimates whether
// they will be late for their next stop.
package risk

import (
	"context"
	"sort"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAnalysis is the reason recorded when the gateway could not score a
// technician.
const ErrAnalysis = "analysis error"

const maxConcurrentEstimates = 4

// TechnicianRisk is one technician's predicted delay. Err is set when the
// estimate failed; PredictedDelayMinutes is then meaningless.
type TechnicianRisk struct {
	TechnicianID          uuid.UUID `json:"technicianId"`
	TechnicianName        string    `json:"technicianName"`
	CurrentJobID          uuid.UUID `json:"currentJobId"`
	NextJobID             uuid.UUID `json:"nextJobId"`
	PredictedDelayMinutes float64   `json:"predictedDelayMinutes"`
	Reasoning             string    `json:"reasoning"`
	Err                   string    `json:"error,omitempty"`
}

// Failed reports whether the estimate is missing.
func (r TechnicianRisk) Failed() bool { return r.Err != "" }

// pair is a technician with the job in hand and the one after it.
type pair struct {
	tech    domain.Technician
	current domain.Job
	next    domain.Job
}

// Evaluator computes delay risk per technician.
type Evaluator struct {
	store           repository.Store
	gateway         ports.AIGateway
	defaultDuration time.Duration
	log             *logger.Logger
}

// NewEvaluator creates an evaluator. defaultDuration stands in for jobs
// without an estimate.
func NewEvaluator(store repository.Store, gateway ports.AIGateway, defaultDuration time.Duration, log *logger.Logger) *Evaluator {
	return &Evaluator{store: store, gateway: gateway, defaultDuration: defaultDuration, log: log}
}

// Evaluate scores every technician that has an In Progress job with a known
// start and at least one Assigned job after it. One failed estimate never
// affects another technician's result.
func (e *Evaluator) Evaluate(ctx context.Context, companyID uuid.UUID, now time.Time) ([]TechnicianRisk, error) {
	pairs, err := e.activePairs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return []TechnicianRisk{}, nil
	}

	results := make([]TechnicianRisk, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEstimates)

	for i, p := range pairs {
		g.Go(func() error {
			results[i] = e.estimate(gctx, companyID, now, p)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (e *Evaluator) estimate(ctx context.Context, companyID uuid.UUID, now time.Time, p pair) TechnicianRisk {
	out := TechnicianRisk{
		TechnicianID:   p.tech.ID,
		TechnicianName: p.tech.Name,
		CurrentJobID:   p.current.ID,
		NextJobID:      p.next.ID,
	}
	snap := ports.BuildSnapshots([]domain.Technician{p.tech}, []domain.Job{p.current, p.next})[0]

	est, err := e.gateway.PredictScheduleRisk(ctx, ports.RiskRequest{
		CompanyID:   companyID,
		CurrentTime: now,
		Technician:  snap,
		CurrentJob:  e.riskJob(p.current),
		NextJob:     e.riskJob(p.next),
	})
	if err != nil {
		e.log.WithContext(ctx).GatewayDegraded("PredictScheduleRisk", err)
		out.Err = ErrAnalysis
		return out
	}
	if est.PredictedDelayMinutes < 0 {
		est.PredictedDelayMinutes = 0
	}
	out.PredictedDelayMinutes = est.PredictedDelayMinutes
	out.Reasoning = est.Reasoning
	return out
}

func (e *Evaluator) riskJob(j domain.Job) ports.RiskJob {
	d := j.EstimatedDuration
	if d <= 0 {
		d = e.defaultDuration
	}
	return ports.RiskJob{
		ID:               j.ID,
		Title:            j.Title,
		Location:         j.Location,
		StartedAt:        j.InProgressAt,
		EstimatedMinutes: int(d.Minutes()),
		ScheduledTime:    j.ScheduledTime,
	}
}

// activePairs finds, per technician, the In Progress job and the first
// Assigned job by route position.
func (e *Evaluator) activePairs(ctx context.Context, companyID uuid.UUID) ([]pair, error) {
	jobs, err := e.store.ListJobs(ctx, companyID, repository.JobFilter{
		Statuses: []domain.JobStatus{domain.StatusInProgress, domain.StatusAssigned},
	})
	if err != nil {
		return nil, apperr.Unavailable(err)
	}

	current := make(map[uuid.UUID]domain.Job)
	queued := make(map[uuid.UUID][]domain.Job)
	for _, j := range jobs {
		if j.AssignedTechnicianID == nil {
			continue
		}
		techID := *j.AssignedTechnicianID
		switch j.Status {
		case domain.StatusInProgress:
			if j.InProgressAt != nil {
				current[techID] = j
			}
		case domain.StatusAssigned:
			queued[techID] = append(queued[techID], j)
		}
	}
	if len(current) == 0 {
		return nil, nil
	}

	techs, err := e.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}

	var out []pair
	for _, t := range techs {
		cur, ok := current[t.ID]
		if !ok {
			continue
		}
		next := queued[t.ID]
		if len(next) == 0 {
			continue
		}
		sort.SliceStable(next, func(a, b int) bool {
			return routeBefore(next[a].RouteOrder, next[b].RouteOrder)
		})
		out = append(out, pair{tech: t, current: cur, next: next[0]})
	}
	return out, nil
}

// routeBefore orders route positions with nil treated as infinitely late.
func routeBefore(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
