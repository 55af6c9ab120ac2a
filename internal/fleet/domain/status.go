// Package domain provides core business rules for the fleet bounded context:
// jobs, technicians, contracts and the job lifecycle state machine.
package domain

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusDraft          JobStatus = "Draft"
	StatusPending        JobStatus = "Pending"
	StatusAssigned       JobStatus = "Assigned"
	StatusEnRoute        JobStatus = "En Route"
	StatusInProgress     JobStatus = "In Progress"
	StatusCompleted      JobStatus = "Completed"
	StatusPendingInvoice JobStatus = "Pending Invoice"
	StatusFinished       JobStatus = "Finished"
	StatusCancelled      JobStatus = "Cancelled"
)

// AllStatuses lists every status in happy-path order, Cancelled last.
var AllStatuses = []JobStatus{
	StatusDraft,
	StatusPending,
	StatusAssigned,
	StatusEnRoute,
	StatusInProgress,
	StatusCompleted,
	StatusPendingInvoice,
	StatusFinished,
	StatusCancelled,
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// unassignedStatuses are the statuses where a job must not carry a technician.
var unassignedStatuses = map[JobStatus]bool{
	StatusDraft:     true,
	StatusPending:   true,
	StatusCancelled: true,
}

// activeStatuses are the statuses where a technician is working the job.
var activeStatuses = map[JobStatus]bool{
	StatusAssigned:   true,
	StatusEnRoute:    true,
	StatusInProgress: true,
}

// routedStatuses are the statuses where RouteOrder is meaningful.
var routedStatuses = map[JobStatus]bool{
	StatusAssigned: true,
	StatusEnRoute:  true,
}

// RequiresTechnician is true for every status outside Draft, Pending and Cancelled.
func (s JobStatus) RequiresTechnician() bool { return !unassignedStatuses[s] }

// IsActive is true while a technician holds the job (Assigned, En Route, In Progress).
func (s JobStatus) IsActive() bool { return activeStatuses[s] }

// IsRouted is true while the job may carry a route position.
func (s JobStatus) IsRouted() bool { return routedStatuses[s] }

// transitions is the lifecycle graph. The happy path is linear; Cancelled is
// reachable from the active statuses; In Progress and En Route can be reset
// one step back; active jobs can fall back to Pending when unassigned.
var transitions = map[JobStatus][]JobStatus{
	StatusDraft:          {StatusPending},
	StatusPending:        {StatusAssigned},
	StatusAssigned:       {StatusEnRoute, StatusCancelled, StatusPending},
	StatusEnRoute:        {StatusInProgress, StatusCancelled, StatusAssigned, StatusPending},
	StatusInProgress:     {StatusCompleted, StatusCancelled, StatusEnRoute, StatusPending},
	StatusCompleted:      {StatusPendingInvoice},
	StatusPendingInvoice: {StatusFinished},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReset reports whether from→to is one of the manual undo edges.
func IsReset(from, to JobStatus) bool {
	return (from == StatusInProgress && to == StatusEnRoute) ||
		(from == StatusEnRoute && to == StatusAssigned)
}
