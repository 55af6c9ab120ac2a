// Package ports defines the interfaces the fleet domain requires from
// external systems. These interfaces form the Anti-Corruption Layer (ACL):
// the fleet services only see the data they need, shaped the way they want.
package ports

import (
	"context"
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/google/uuid"
)

// SnapshotJob is a job as seen from a technician's workload.
type SnapshotJob struct {
	ID            uuid.UUID        `json:"id"`
	Title         string           `json:"title"`
	Status        domain.JobStatus `json:"status"`
	Priority      domain.Priority  `json:"priority"`
	ScheduledTime *time.Time       `json:"scheduledTime,omitempty"`
	RouteOrder    *int             `json:"routeOrder,omitempty"`
}

// TechnicianSnapshot is the availability view handed to the gateway.
type TechnicianSnapshot struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	IsAvailable  bool            `json:"isAvailable"`
	CurrentJobID *uuid.UUID      `json:"currentJobId,omitempty"`
	Skills       []string        `json:"skills"`
	Location     domain.Location `json:"location"`
	Jobs         []SnapshotJob   `json:"jobs"`
}

// AllocationRequest asks which technician should take a job.
type AllocationRequest struct {
	CompanyID      uuid.UUID            `json:"-"`
	JobID          uuid.UUID            `json:"jobId"`
	JobDescription string               `json:"jobDescription"`
	Priority       domain.Priority      `json:"priority"`
	RequiredSkills []string             `json:"requiredSkills"`
	ScheduledTime  *time.Time           `json:"scheduledTime,omitempty"`
	Technicians    []TechnicianSnapshot `json:"technicianAvailability"`
}

// AllocationSuggestion is advisory; a nil technician means "no suggestion".
type AllocationSuggestion struct {
	SuggestedTechnicianID *uuid.UUID `json:"suggestedTechnicianId"`
	Reasoning             string     `json:"reasoning"`
}

// RouteTask is one stop to order.
type RouteTask struct {
	TaskID        uuid.UUID       `json:"taskId"`
	Title         string          `json:"title"`
	Location      domain.Location `json:"location"`
	Priority      domain.Priority `json:"priority"`
	ScheduledTime *time.Time      `json:"scheduledTime,omitempty"`
}

// RouteRequest asks for a stop order for one technician.
type RouteRequest struct {
	CompanyID       uuid.UUID       `json:"-"`
	TechnicianID    uuid.UUID       `json:"technicianId"`
	CurrentLocation domain.Location `json:"currentLocation"`
	Tasks           []RouteTask     `json:"tasks"`
}

// RouteStop is one ordered stop with its estimated arrival.
type RouteStop struct {
	TaskID               uuid.UUID `json:"taskId"`
	EstimatedArrivalTime time.Time `json:"estimatedArrivalTime"`
}

// RoutePlan is the gateway's suggested order.
type RoutePlan struct {
	OptimizedRoute []RouteStop `json:"optimizedRoute"`
	Reasoning      string      `json:"reasoning"`
}

// RiskJob describes a job for delay estimation.
type RiskJob struct {
	ID               uuid.UUID       `json:"id"`
	Title            string          `json:"title"`
	Location         domain.Location `json:"location"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	EstimatedMinutes int             `json:"estimatedDurationMinutes,omitempty"`
	ScheduledTime    *time.Time      `json:"scheduledTime,omitempty"`
}

// RiskRequest asks how late a technician will be for their next job.
type RiskRequest struct {
	CompanyID   uuid.UUID          `json:"-"`
	CurrentTime time.Time          `json:"currentTime"`
	Technician  TechnicianSnapshot `json:"technician"`
	CurrentJob  RiskJob            `json:"currentJob"`
	NextJob     RiskJob            `json:"nextJob"`
}

// RiskEstimate is advisory.
type RiskEstimate struct {
	PredictedDelayMinutes float64 `json:"predictedDelayMinutes"`
	Reasoning             string  `json:"reasoning"`
}

// BusinessWindow is one weekday's opening hours ("15:04").
type BusinessWindow struct {
	Day   time.Weekday `json:"day"`
	Open  string       `json:"open"`
	Close string       `json:"close"`
}

// ScheduleRequest asks for candidate slots for a job.
type ScheduleRequest struct {
	CompanyID      uuid.UUID            `json:"companyId"`
	Now            time.Time            `json:"now"`
	JobPriority    domain.Priority      `json:"jobPriority"`
	RequiredSkills []string             `json:"requiredSkills"`
	BusinessHours  []BusinessWindow     `json:"businessHours"`
	ExcludedTimes  []time.Time          `json:"excludedTimes"`
	Technicians    []TechnicianSnapshot `json:"technicians"`
}

// ScheduleSuggestion is one advisory slot.
type ScheduleSuggestion struct {
	Time         time.Time `json:"time"`
	TechnicianID uuid.UUID `json:"technicianId"`
	Reasoning    string    `json:"reasoning"`
}

// AIGateway is the suggestion service. Every result is untrusted advice:
// callers revalidate before committing anything.
type AIGateway interface {
	Allocate(ctx context.Context, req AllocationRequest) (AllocationSuggestion, error)
	OptimizeRoute(ctx context.Context, req RouteRequest) (RoutePlan, error)
	PredictScheduleRisk(ctx context.Context, req RiskRequest) (RiskEstimate, error)
	SuggestScheduleTime(ctx context.Context, req ScheduleRequest) ([]ScheduleSuggestion, error)
}
