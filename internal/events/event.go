// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dispatch_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// CompanyScoped is implemented by every fleet event so subscribers can route
// it to the right tenant.
type CompanyScoped interface {
	Event
	Company() uuid.UUID
}

// =============================================================================
// Job Lifecycle Events
// =============================================================================

// JobAssigned is published when a job is committed to a technician.
type JobAssigned struct {
	BaseEvent
	CompanyID        uuid.UUID  `json:"companyId"`
	JobID            uuid.UUID  `json:"jobId"`
	JobTitle         string     `json:"jobTitle"`
	TechnicianID     uuid.UUID  `json:"technicianId"`
	InterruptedJobID *uuid.UUID `json:"interruptedJobId,omitempty"`
}

func (e JobAssigned) EventName() string  { return "fleet.job.assigned" }
func (e JobAssigned) Company() uuid.UUID { return e.CompanyID }

// JobUnassigned is published when a job falls back to Pending.
type JobUnassigned struct {
	BaseEvent
	CompanyID    uuid.UUID  `json:"companyId"`
	JobID        uuid.UUID  `json:"jobId"`
	TechnicianID *uuid.UUID `json:"technicianId,omitempty"`
	Reason       string     `json:"reason"`
}

func (e JobUnassigned) EventName() string  { return "fleet.job.unassigned" }
func (e JobUnassigned) Company() uuid.UUID { return e.CompanyID }

// JobStatusChanged is published for every committed status transition.
type JobStatusChanged struct {
	BaseEvent
	CompanyID uuid.UUID `json:"companyId"`
	JobID     uuid.UUID `json:"jobId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
}

func (e JobStatusChanged) EventName() string  { return "fleet.job.status_changed" }
func (e JobStatusChanged) Company() uuid.UUID { return e.CompanyID }

// JobDeleted is published after a job is removed.
type JobDeleted struct {
	BaseEvent
	CompanyID uuid.UUID `json:"companyId"`
	JobID     uuid.UUID `json:"jobId"`
}

func (e JobDeleted) EventName() string  { return "fleet.job.deleted" }
func (e JobDeleted) Company() uuid.UUID { return e.CompanyID }

// RouteConfirmed is published when a technician's stop order is committed.
type RouteConfirmed struct {
	BaseEvent
	CompanyID    uuid.UUID   `json:"companyId"`
	TechnicianID uuid.UUID   `json:"technicianId"`
	JobIDs       []uuid.UUID `json:"jobIds"`
}

func (e RouteConfirmed) EventName() string  { return "fleet.route.confirmed" }
func (e RouteConfirmed) Company() uuid.UUID { return e.CompanyID }

// =============================================================================
// Technician Events
// =============================================================================

// TechnicianUnavailable is published when a technician is taken off duty.
type TechnicianUnavailable struct {
	BaseEvent
	CompanyID    uuid.UUID   `json:"companyId"`
	TechnicianID uuid.UUID   `json:"technicianId"`
	Reason       string      `json:"reason"`
	FreedJobIDs  []uuid.UUID `json:"freedJobIds"`
}

func (e TechnicianUnavailable) EventName() string  { return "fleet.technician.unavailable" }
func (e TechnicianUnavailable) Company() uuid.UUID { return e.CompanyID }

// ProfileChangeReviewed is published when a change request is approved or rejected.
type ProfileChangeReviewed struct {
	BaseEvent
	CompanyID    uuid.UUID `json:"companyId"`
	RequestID    uuid.UUID `json:"requestId"`
	TechnicianID uuid.UUID `json:"technicianId"`
	Status       string    `json:"status"`
}

func (e ProfileChangeReviewed) EventName() string  { return "fleet.profile_change.reviewed" }
func (e ProfileChangeReviewed) Company() uuid.UUID { return e.CompanyID }

// =============================================================================
// Suggestion and Monitoring Events
// =============================================================================

// ProposalReady is published when a proactive assignment proposal is cached
// for one-click confirmation.
type ProposalReady struct {
	BaseEvent
	CompanyID    uuid.UUID  `json:"companyId"`
	JobID        uuid.UUID  `json:"jobId"`
	TechnicianID *uuid.UUID `json:"technicianId,omitempty"`
	Interrupts   bool       `json:"interrupts"`
	Reasoning    string     `json:"reasoning"`
}

func (e ProposalReady) EventName() string  { return "fleet.proposal.ready" }
func (e ProposalReady) Company() uuid.UUID { return e.CompanyID }

// RiskAlertRaised is published when a technician first crosses the delay threshold.
type RiskAlertRaised struct {
	BaseEvent
	CompanyID             uuid.UUID `json:"companyId"`
	TechnicianID          uuid.UUID `json:"technicianId"`
	NextJobID             uuid.UUID `json:"nextJobId"`
	PredictedDelayMinutes float64   `json:"predictedDelayMinutes"`
	Reasoning             string    `json:"reasoning"`
}

func (e RiskAlertRaised) EventName() string  { return "fleet.risk.alert_raised" }
func (e RiskAlertRaised) Company() uuid.UUID { return e.CompanyID }

// RiskAlertCleared is published when a technician drops back under the threshold.
type RiskAlertCleared struct {
	BaseEvent
	CompanyID    uuid.UUID `json:"companyId"`
	TechnicianID uuid.UUID `json:"technicianId"`
}

func (e RiskAlertCleared) EventName() string  { return "fleet.risk.alert_cleared" }
func (e RiskAlertCleared) Company() uuid.UUID { return e.CompanyID }

// RecurringJobsGenerated is published after a recurring generation run commits.
type RecurringJobsGenerated struct {
	BaseEvent
	CompanyID        uuid.UUID `json:"companyId"`
	Target           time.Time `json:"target"`
	JobsCreated      int       `json:"jobsCreated"`
	ContractsUpdated int       `json:"contractsUpdated"`
}

func (e RecurringJobsGenerated) EventName() string  { return "fleet.recurring.generated" }
func (e RecurringJobsGenerated) Company() uuid.UUID { return e.CompanyID }
