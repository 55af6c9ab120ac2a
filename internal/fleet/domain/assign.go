package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignTo moves the job to Assigned for techID and stamps AssignedAt.
// Any previous route position is dropped; the new technician's route is
// confirmed separately.
func (j *Job) AssignTo(techID uuid.UUID, now time.Time) {
	id := techID
	at := now
	j.Status = StatusAssigned
	j.AssignedTechnicianID = &id
	j.RouteOrder = nil
	j.AssignedAt = &at
}

// Unassign returns the job to Pending and records why.
func (j *Job) Unassign(now time.Time, note string) {
	j.ClearAssignment()
	j.AddNote(now, note)
}

// IsAssignedTo reports whether techID holds the job.
func (j *Job) IsAssignedTo(techID uuid.UUID) bool {
	return j.AssignedTechnicianID != nil && *j.AssignedTechnicianID == techID
}

// IsExecuting reports whether a technician is physically working the job.
func (s JobStatus) IsExecuting() bool {
	return s == StatusEnRoute || s == StatusInProgress
}

// CanSchedule reports whether an appointment time may still be chosen.
func (s JobStatus) CanSchedule() bool {
	return s == StatusDraft || s == StatusPending || s == StatusAssigned
}
