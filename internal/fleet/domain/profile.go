package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ChangeRequestStatus is the review state of a profile change request.
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApproved ChangeRequestStatus = "approved"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// ProfileChanges is a sparse diff over the technician fields a technician may
// ask to change. A nil field means "leave as is".
type ProfileChanges struct {
	Name   *string   `json:"name,omitempty"`
	Email  *string   `json:"email,omitempty"`
	Phone  *string   `json:"phone,omitempty"`
	Skills *[]string `json:"skills,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c ProfileChanges) IsEmpty() bool {
	return c.Name == nil && c.Email == nil && c.Phone == nil && c.Skills == nil
}

// ApplyTo writes the set fields onto t.
func (c ProfileChanges) ApplyTo(t *Technician) {
	if c.Name != nil {
		t.Name = *c.Name
	}
	if c.Email != nil {
		t.Email = *c.Email
	}
	if c.Phone != nil {
		t.Phone = *c.Phone
	}
	if c.Skills != nil {
		t.Skills = slices.Clone(*c.Skills)
	}
}

// Clone returns a deep copy.
func (c ProfileChanges) Clone() ProfileChanges {
	out := ProfileChanges{
		Name:  clonePtr(c.Name),
		Email: clonePtr(c.Email),
		Phone: clonePtr(c.Phone),
	}
	if c.Skills != nil {
		skills := slices.Clone(*c.Skills)
		out.Skills = &skills
	}
	return out
}

// ProfileChangeRequest is a technician-initiated edit awaiting dispatcher review.
type ProfileChangeRequest struct {
	ID           uuid.UUID `json:"id"`
	CompanyID    uuid.UUID `json:"companyId"`
	TechnicianID uuid.UUID `json:"technicianId"`
	Version      int64     `json:"version"`

	Requested   ProfileChanges      `json:"requestedChanges"`
	Approved    *ProfileChanges     `json:"approvedChanges,omitempty"`
	Status      ChangeRequestStatus `json:"status"`
	ReviewNotes string              `json:"reviewNotes,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// IsTerminal reports whether the request has been reviewed.
func (r ProfileChangeRequest) IsTerminal() bool {
	return r.Status == ChangeRequestApproved || r.Status == ChangeRequestRejected
}

// Clone returns a deep copy.
func (r ProfileChangeRequest) Clone() ProfileChangeRequest {
	out := r
	out.Requested = r.Requested.Clone()
	if r.Approved != nil {
		a := r.Approved.Clone()
		out.Approved = &a
	}
	out.ReviewedAt = clonePtr(r.ReviewedAt)
	return out
}

// DispatcherFeedback compares an AI suggestion with the dispatcher's choice.
// Written for offline analysis, never read back.
type DispatcherFeedback struct {
	ID                    uuid.UUID  `json:"id"`
	CompanyID             uuid.UUID  `json:"companyId"`
	JobID                 uuid.UUID  `json:"jobId"`
	SuggestedTechnicianID *uuid.UUID `json:"suggestedTechnicianId,omitempty"`
	ChosenTechnicianID    *uuid.UUID `json:"chosenTechnicianId,omitempty"`
	Accepted              bool       `json:"accepted"`
	Reasoning             string     `json:"reasoning,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}
