package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Frequency is how often a service contract produces a job.
type Frequency string

const (
	FrequencyWeekly       Frequency = "Weekly"
	FrequencyBiWeekly     Frequency = "Bi-Weekly"
	FrequencyMonthly      Frequency = "Monthly"
	FrequencyQuarterly    Frequency = "Quarterly"
	FrequencySemiAnnually Frequency = "Semi-Annually"
	FrequencyAnnually     Frequency = "Annually"
)

// ErrUnknownFrequency is returned by Advance for unrecognised values.
type ErrUnknownFrequency struct {
	Frequency Frequency
}

func (e ErrUnknownFrequency) Error() string {
	return fmt.Sprintf("unknown contract frequency %q", string(e.Frequency))
}

// Advance moves t forward by one period. Month steps use calendar
// arithmetic (time.AddDate), so Jan 31 + 1 month normalises to early March.
func (f Frequency) Advance(t time.Time) (time.Time, error) {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7), nil
	case FrequencyBiWeekly:
		return t.AddDate(0, 0, 14), nil
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0), nil
	case FrequencyQuarterly:
		return t.AddDate(0, 3, 0), nil
	case FrequencySemiAnnually:
		return t.AddDate(0, 6, 0), nil
	case FrequencyAnnually:
		return t.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, ErrUnknownFrequency{Frequency: f}
	}
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	_, err := f.Advance(time.Time{})
	return err == nil
}

// JobTemplate holds the job fields a contract stamps onto each generated job.
type JobTemplate struct {
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Priority          Priority      `json:"priority"`
	RequiredSkills    []string      `json:"requiredSkills,omitempty"`
	Location          Location      `json:"location"`
	EstimatedDuration time.Duration `json:"estimatedDuration,omitempty"`
	QuotedValue       float64       `json:"quotedValue,omitempty"`
}

// Contract is a recurring service agreement.
type Contract struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Version   int64     `json:"version"`

	Customer           Customer    `json:"customer"`
	Frequency          Frequency   `json:"frequency"`
	StartDate          time.Time   `json:"startDate"`
	LastGeneratedUntil *time.Time  `json:"lastGeneratedUntil,omitempty"`
	Template           JobTemplate `json:"jobTemplate"`
	IsActive           bool        `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Cursor is the first date not yet covered by generation.
func (c Contract) Cursor() time.Time {
	if c.LastGeneratedUntil != nil {
		return c.LastGeneratedUntil.AddDate(0, 0, 1)
	}
	return c.StartDate
}

// NewJob materialises one Pending job from the template for the given date.
func (c Contract) NewJob(id uuid.UUID, scheduled, now time.Time) Job {
	at := scheduled
	contractID := c.ID
	job := Job{
		ID:                id,
		CompanyID:         c.CompanyID,
		Title:             c.Template.Title,
		Description:       c.Template.Description,
		Priority:          c.Template.Priority,
		Status:            StatusPending,
		ScheduledTime:     &at,
		EstimatedDuration: c.Template.EstimatedDuration,
		Location:          c.Template.Location,
		RequiredSkills:    slices.Clone(c.Template.RequiredSkills),
		Customer:          c.Customer,
		SourceContractID:  &contractID,
		Financials:        Financials{QuotedValue: c.Template.QuotedValue},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !job.Priority.Valid() {
		job.Priority = PriorityMedium
	}
	job.AddNote(now, fmt.Sprintf("Generated from service contract %s", c.ID))
	return job
}

// Clone returns a deep copy.
func (c Contract) Clone() Contract {
	out := c
	out.LastGeneratedUntil = clonePtr(c.LastGeneratedUntil)
	out.Template.RequiredSkills = slices.Clone(c.Template.RequiredSkills)
	return out
}
