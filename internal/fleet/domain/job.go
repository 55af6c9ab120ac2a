package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Priority is the dispatch priority of a job.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Location is a geocoded address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Customer holds the contact fields copied onto a job.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Break is a pause in work. End is nil while the break is open.
type Break struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// AuditNote is an append-only remark recorded on a job.
type AuditNote struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Financials are filled in after completion.
type Financials struct {
	QuotedValue       float64  `json:"quotedValue"`
	ExpectedPartsCost float64  `json:"expectedPartsCost"`
	ActualPartsCost   *float64 `json:"actualPartsCost,omitempty"`
	LaborHours        float64  `json:"laborHours"`
	LaborRate         float64  `json:"laborRate"`
	ActualProfit      *float64 `json:"actualProfit,omitempty"`
}

// ComputeProfit returns quoted value minus parts and labour. Actual parts
// cost wins over the expected figure when present.
func (f Financials) ComputeProfit() float64 {
	parts := f.ExpectedPartsCost
	if f.ActualPartsCost != nil {
		parts = *f.ActualPartsCost
	}
	return f.QuotedValue - parts - f.LaborHours*f.LaborRate
}

// Job is a unit of field work.
type Job struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Version   int64     `json:"version"`

	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      JobStatus `json:"status"`

	AssignedTechnicianID *uuid.UUID    `json:"assignedTechnicianId,omitempty"`
	RouteOrder           *int          `json:"routeOrder,omitempty"`
	ScheduledTime        *time.Time    `json:"scheduledTime,omitempty"`
	EstimatedDuration    time.Duration `json:"estimatedDuration,omitempty"`

	Location       Location `json:"location"`
	RequiredSkills []string `json:"requiredSkills,omitempty"`
	Customer       Customer `json:"customer"`

	SourceContractID *uuid.UUID `json:"sourceContractId,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty"`
	EnRouteAt    *time.Time `json:"enRouteAt,omitempty"`
	InProgressAt *time.Time `json:"inProgressAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	TrackingToken *CapabilityToken `json:"trackingToken,omitempty"`
	TriageToken   *CapabilityToken `json:"triageToken,omitempty"`

	Breaks     []Break     `json:"breaks,omitempty"`
	Notes      []AuditNote `json:"notes,omitempty"`
	Financials Financials  `json:"financials"`
}

var (
	ErrBreakAlreadyOpen = errors.New("a break is already in progress")
	ErrNoOpenBreak      = errors.New("no break is in progress")
)

// AddNote appends an audit note.
func (j *Job) AddNote(at time.Time, text string) {
	j.Notes = append(j.Notes, AuditNote{At: at, Text: text})
}

// OpenBreak returns the index of the open break, or -1.
func (j *Job) OpenBreak() int {
	for i := range j.Breaks {
		if j.Breaks[i].End == nil {
			return i
		}
	}
	return -1
}

// StartBreak opens a new break at the given time.
func (j *Job) StartBreak(at time.Time) error {
	if j.OpenBreak() >= 0 {
		return ErrBreakAlreadyOpen
	}
	j.Breaks = append(j.Breaks, Break{Start: at})
	return nil
}

// EndBreak closes the open break.
func (j *Job) EndBreak(at time.Time) error {
	i := j.OpenBreak()
	if i < 0 {
		return ErrNoOpenBreak
	}
	end := at
	j.Breaks[i].End = &end
	return nil
}

// BreakTime sums closed breaks, and the open one up to now.
func (j *Job) BreakTime(now time.Time) time.Duration {
	var total time.Duration
	for _, b := range j.Breaks {
		end := now
		if b.End != nil {
			end = *b.End
		}
		if end.After(b.Start) {
			total += end.Sub(b.Start)
		}
	}
	return total
}

// ClearAssignment drops the technician and route position and moves the job
// back to Pending.
func (j *Job) ClearAssignment() {
	j.Status = StatusPending
	j.AssignedTechnicianID = nil
	j.RouteOrder = nil
}

// Clone returns a deep copy.
func (j Job) Clone() Job {
	out := j
	out.AssignedTechnicianID = cloneUUID(j.AssignedTechnicianID)
	out.SourceContractID = cloneUUID(j.SourceContractID)
	out.RouteOrder = clonePtr(j.RouteOrder)
	out.ScheduledTime = clonePtr(j.ScheduledTime)
	out.AssignedAt = clonePtr(j.AssignedAt)
	out.EnRouteAt = clonePtr(j.EnRouteAt)
	out.InProgressAt = clonePtr(j.InProgressAt)
	out.CompletedAt = clonePtr(j.CompletedAt)
	out.TrackingToken = clonePtr(j.TrackingToken)
	out.TriageToken = clonePtr(j.TriageToken)
	out.RequiredSkills = slices.Clone(j.RequiredSkills)
	out.Notes = slices.Clone(j.Notes)
	out.Financials.ActualPartsCost = clonePtr(j.Financials.ActualPartsCost)
	out.Financials.ActualProfit = clonePtr(j.Financials.ActualProfit)
	if j.Breaks != nil {
		out.Breaks = make([]Break, len(j.Breaks))
		for i, b := range j.Breaks {
			out.Breaks[i] = Break{Start: b.Start, End: clonePtr(b.End)}
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUUID(p *uuid.UUID) *uuid.UUID { return clonePtr(p) }

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
