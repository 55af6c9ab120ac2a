package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkingDay is one entry of a technician's weekly schedule, indexed by
// time.Weekday. Start and End use "15:04".
type WorkingDay struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// Unavailability records why and for how long a technician is off.
type Unavailability struct {
	Reason string     `json:"reason"`
	From   time.Time  `json:"from"`
	Until  *time.Time `json:"until,omitempty"`
}

// Technician is a field worker.
type Technician struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Version   int64     `json:"version"`

	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Phone  string   `json:"phone,omitempty"`
	Skills []string `json:"skills,omitempty"`

	Location     Location      `json:"location"`
	IsAvailable  bool          `json:"isAvailable"`
	CurrentJobID *uuid.UUID    `json:"currentJobId,omitempty"`
	IsOnCall     bool          `json:"isOnCall"`
	WorkingHours [7]WorkingDay `json:"workingHours"`

	Unavailability *Unavailability `json:"unavailability,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSkills reports whether the technician covers every required skill,
// compared case-insensitively.
func (t Technician) HasSkills(required []string) bool {
	have := make(map[string]bool, len(t.Skills))
	for _, s := range t.Skills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, r := range required {
		if !have[strings.ToLower(strings.TrimSpace(r))] {
			return false
		}
	}
	return true
}

// MissingSkills returns the required skills the technician lacks.
func (t Technician) MissingSkills(required []string) []string {
	var missing []string
	for _, r := range required {
		if !t.HasSkills([]string{r}) {
			missing = append(missing, r)
		}
	}
	return missing
}

// TakeJob marks the technician busy with jobID.
func (t *Technician) TakeJob(jobID uuid.UUID) {
	id := jobID
	t.IsAvailable = false
	t.CurrentJobID = &id
}

// Release frees the technician from their current job.
func (t *Technician) Release() {
	t.IsAvailable = true
	t.CurrentJobID = nil
}

// IsCurrentJob reports whether jobID is the technician's current job.
func (t Technician) IsCurrentJob(jobID uuid.UUID) bool {
	return t.CurrentJobID != nil && *t.CurrentJobID == jobID
}

// Clone returns a deep copy.
func (t Technician) Clone() Technician {
	out := t
	out.Skills = slices.Clone(t.Skills)
	out.CurrentJobID = cloneUUID(t.CurrentJobID)
	if t.Unavailability != nil {
		u := *t.Unavailability
		u.Until = clonePtr(t.Unavailability.Until)
		out.Unavailability = &u
	}
	return out
}
