// Package transport holds the request and response shapes of the fleet HTTP API.
package transport

import (
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/platform/phone"
	"dispatch_backend/platform/sanitize"

	"github.com/google/uuid"
)

// LocationDTO is a geocoded address.
type LocationDTO struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Address   string  `json:"address" validate:"max=500"`
}

// ToDomain converts the DTO.
func (l LocationDTO) ToDomain() domain.Location {
	return domain.Location{Latitude: l.Latitude, Longitude: l.Longitude, Address: l.Address}
}

// CustomerDTO holds the customer contact fields of a job or contract.
type CustomerDTO struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Phone string `json:"phone,omitempty" validate:"max=40"`
}

// ToDomain converts the DTO, stripping markup and normalising the phone.
func (c CustomerDTO) ToDomain() domain.Customer {
	return domain.Customer{
		Name:  sanitize.Text(c.Name),
		Email: c.Email,
		Phone: phone.NormalizeE164(c.Phone),
	}
}

// CleanSkills trims and de-duplicates a skill list, dropping empty entries.
func CleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		skill := sanitize.Text(raw)
		if skill == "" || seen[skill] {
			continue
		}
		seen[skill] = true
		out = append(out, skill)
	}
	return out
}

// FinancialsDTO is the optional money section of a job.
type FinancialsDTO struct {
	QuotedValue       float64  `json:"quotedValue" validate:"min=0"`
	ExpectedPartsCost float64  `json:"expectedPartsCost" validate:"min=0"`
	ActualPartsCost   *float64 `json:"actualPartsCost,omitempty" validate:"omitempty,min=0"`
	LaborHours        float64  `json:"laborHours" validate:"min=0"`
	LaborRate         float64  `json:"laborRate" validate:"min=0"`
}

// CreateJobRequest is the request body for creating a job.
type CreateJobRequest struct {
	Title                    string          `json:"title" validate:"required,min=1,max=200"`
	Description              string          `json:"description,omitempty" validate:"max=4000"`
	Priority                 domain.Priority `json:"priority" validate:"required,oneof=High Medium Low"`
	ScheduledTime            *time.Time      `json:"scheduledTime,omitempty"`
	EstimatedDurationMinutes int             `json:"estimatedDurationMinutes,omitempty" validate:"min=0,max=1440"`
	Location                 LocationDTO     `json:"location"`
	RequiredSkills           []string        `json:"requiredSkills,omitempty" validate:"max=30,dive,min=1,max=60"`
	Customer                 CustomerDTO     `json:"customer"`
	Financials               *FinancialsDTO  `json:"financials,omitempty"`
	Draft                    bool            `json:"draft"`
}

// UpdateJobRequest edits job fields. Status is changed through the
// transition endpoints only.
type UpdateJobRequest struct {
	Title                    *string          `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description              *string          `json:"description,omitempty" validate:"omitempty,max=4000"`
	Priority                 *domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=High Medium Low"`
	ScheduledTime            *time.Time       `json:"scheduledTime,omitempty"`
	EstimatedDurationMinutes *int             `json:"estimatedDurationMinutes,omitempty" validate:"omitempty,min=0,max=1440"`
	Location                 *LocationDTO     `json:"location,omitempty"`
	RequiredSkills           *[]string        `json:"requiredSkills,omitempty" validate:"omitempty,max=30,dive,min=1,max=60"`
	Customer                 *CustomerDTO     `json:"customer,omitempty"`
	Financials               *FinancialsDTO   `json:"financials,omitempty"`
}

// ListJobsRequest is the query string of the job list. TechnicianID is
// parsed by the handler from the technicianId parameter.
type ListJobsRequest struct {
	Status       []string   `form:"status"`
	TechnicianID *uuid.UUID `form:"-"`
	From         *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	Until        *time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit        int        `form:"limit" validate:"min=0,max=500"`
}

// AssignJobRequest assigns a job to a technician.
type AssignJobRequest struct {
	TechnicianID      uuid.UUID `json:"technicianId" validate:"required"`
	AllowInterruption bool      `json:"allowInterruption"`
}

// UnassignJobRequest returns a job to Pending.
type UnassignJobRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// TransitionRequest moves a job along its lifecycle.
type TransitionRequest struct {
	Status domain.JobStatus `json:"status" validate:"required"`
}

// BreakRequest starts or ends a break. A zero time means now.
type BreakRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// CreateTechnicianRequest registers a technician.
type CreateTechnicianRequest struct {
	Name         string                `json:"name" validate:"required,min=1,max=200"`
	Email        string                `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Phone        string                `json:"phone,omitempty" validate:"max=40"`
	Skills       []string              `json:"skills,omitempty" validate:"max=50,dive,min=1,max=60"`
	Location     LocationDTO           `json:"location"`
	IsOnCall     bool                  `json:"isOnCall"`
	WorkingHours *[7]domain.WorkingDay `json:"workingHours,omitempty"`
}

// UpdateLocationRequest records a technician's live position.
type UpdateLocationRequest struct {
	Location LocationDTO `json:"location"`
}

// MarkUnavailableRequest takes a technician off duty.
type MarkUnavailableRequest struct {
	Reason string     `json:"reason" validate:"required,min=1,max=500"`
	From   *time.Time `json:"from,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// ConfirmRouteRequest commits a stop order for one technician.
type ConfirmRouteRequest struct {
	OrderedJobIDs  []uuid.UUID `json:"orderedJobIds" validate:"max=100"`
	ExcludedJobIDs []uuid.UUID `json:"excludedJobIds,omitempty" validate:"max=100"`
}

// IssueTokenRequest creates a public capability link.
type IssueTokenRequest struct {
	Kind domain.TokenKind `json:"kind" validate:"required,oneof=tracking triage"`
}

// TokenResponse is the issued token and its public URL.
type TokenResponse struct {
	Kind      domain.TokenKind `json:"kind"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	URL       string           `json:"url"`
}

// ProposeBatchRequest asks for suggestions for several pending jobs.
type ProposeBatchRequest struct {
	JobIDs []uuid.UUID `json:"jobIds" validate:"required,min=1,max=50"`
}

// BatchDecisionDTO is the dispatcher's choice for one job of a batch.
// A nil technician deselects the job.
type BatchDecisionDTO struct {
	JobID        uuid.UUID  `json:"jobId" validate:"required"`
	TechnicianID *uuid.UUID `json:"technicianId,omitempty"`
}

// ConfirmBatchRequest commits the accepted decisions of a cached batch.
type ConfirmBatchRequest struct {
	BatchID   uuid.UUID          `json:"batchId" validate:"required"`
	Decisions []BatchDecisionDTO `json:"decisions" validate:"required,min=1,max=50,dive"`
}

// ConfirmProposalRequest confirms a single proposal. Interrupting a busy
// technician requires ConfirmInterruption.
type ConfirmProposalRequest struct {
	TechnicianID        uuid.UUID `json:"technicianId" validate:"required"`
	ConfirmInterruption bool      `json:"confirmInterruption"`
}

// CreateContractRequest registers a recurring service contract.
type CreateContractRequest struct {
	Customer  CustomerDTO      `json:"customer"`
	Frequency domain.Frequency `json:"frequency" validate:"required"`
	StartDate time.Time        `json:"startDate" validate:"required"`
	Template  JobTemplateDTO   `json:"jobTemplate"`
}

// JobTemplateDTO is the job shape a contract stamps out.
type JobTemplateDTO struct {
	Title                    string          `json:"title" validate:"required,min=1,max=200"`
	Description              string          `json:"description,omitempty" validate:"max=4000"`
	Priority                 domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=High Medium Low"`
	RequiredSkills           []string        `json:"requiredSkills,omitempty" validate:"max=30,dive,min=1,max=60"`
	Location                 LocationDTO     `json:"location"`
	EstimatedDurationMinutes int             `json:"estimatedDurationMinutes,omitempty" validate:"min=0,max=1440"`
	QuotedValue              float64         `json:"quotedValue" validate:"min=0"`
}

// ToDomain converts the DTO.
func (t JobTemplateDTO) ToDomain() domain.JobTemplate {
	priority := t.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	return domain.JobTemplate{
		Title:             sanitize.Text(t.Title),
		Description:       sanitize.Text(t.Description),
		Priority:          priority,
		RequiredSkills:    CleanSkills(t.RequiredSkills),
		Location:          t.Location.ToDomain(),
		EstimatedDuration: time.Duration(t.EstimatedDurationMinutes) * time.Minute,
		QuotedValue:       t.QuotedValue,
	}
}

// GenerateRecurringRequest expands contracts up to Target.
type GenerateRecurringRequest struct {
	Target time.Time `json:"target" validate:"required"`
}

// ProfileChangesDTO is the sparse technician diff.
type ProfileChangesDTO struct {
	Name   *string   `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email  *string   `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Phone  *string   `json:"phone,omitempty" validate:"omitempty,max=40"`
	Skills *[]string `json:"skills,omitempty" validate:"omitempty,max=50,dive,min=1,max=60"`
}

// ToDomain converts the DTO.
func (p ProfileChangesDTO) ToDomain() domain.ProfileChanges {
	out := domain.ProfileChanges{Name: p.Name, Email: p.Email, Phone: p.Phone}
	if p.Skills != nil {
		skills := append([]string{}, *p.Skills...)
		out.Skills = &skills
	}
	return out
}

// SubmitProfileChangeRequest is sent by a technician.
type SubmitProfileChangeRequest struct {
	TechnicianID uuid.UUID         `json:"technicianId" validate:"required"`
	Changes      ProfileChangesDTO `json:"changes"`
}

// ReviewProfileChangeRequest approves (with possibly edited changes) or rejects.
type ReviewProfileChangeRequest struct {
	Changes *ProfileChangesDTO `json:"changes,omitempty"`
	Notes   string             `json:"notes,omitempty" validate:"max=1000"`
}

// SuggestTimesRequest asks for appointment slots for a job.
type SuggestTimesRequest struct {
	ExcludedTimes []time.Time `json:"excludedTimes,omitempty" validate:"max=100"`
}

// PublicTrackingResponse is what a tracking link shows to the customer.
type PublicTrackingResponse struct {
	JobTitle           string           `json:"jobTitle"`
	Status             domain.JobStatus `json:"status"`
	ScheduledTime      *time.Time       `json:"scheduledTime,omitempty"`
	Address            string           `json:"address"`
	TechnicianName     string           `json:"technicianName,omitempty"`
	TechnicianLocation *domain.Location `json:"technicianLocation,omitempty"`
	EnRouteAt          *time.Time       `json:"enRouteAt,omitempty"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
	ExpiresAt          time.Time        `json:"expiresAt"`
}

// PublicTriageResponse is what a triage link shows.
type PublicTriageResponse struct {
	JobTitle       string           `json:"jobTitle"`
	Description    string           `json:"description,omitempty"`
	Priority       domain.Priority  `json:"priority"`
	Status         domain.JobStatus `json:"status"`
	ScheduledTime  *time.Time       `json:"scheduledTime,omitempty"`
	Address        string           `json:"address"`
	RequiredSkills []string         `json:"requiredSkills"`
	ExpiresAt      time.Time        `json:"expiresAt"`
}
