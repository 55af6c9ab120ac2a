// Package scheduling asks the AI gateway for appointment slots and keeps
// only the ones that hold up against business hours and the current fleet.
package scheduling

import (
	"context"
	"sort"
	"time"

	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Slot is a validated suggestion.
type Slot struct {
	Time           time.Time `json:"time"`
	TechnicianID   uuid.UUID `json:"technicianId"`
	TechnicianName string    `json:"technicianName"`
	Reasoning      string    `json:"reasoning"`
}

// Suggestions is the result of SuggestTimes. Dropped counts gateway slots
// that failed validation. Degraded is set when the gateway could not answer.
type Suggestions struct {
	JobID    uuid.UUID `json:"jobId"`
	Slots    []Slot    `json:"slots"`
	Dropped  int       `json:"dropped"`
	Degraded bool      `json:"degraded"`
}

// window is one weekday's opening hours as minutes after midnight.
type window struct {
	open, close int
}

// Service suggests appointment times.
type Service struct {
	store   repository.Store
	gateway ports.AIGateway
	policy  config.DispatchPolicy
	hours   map[time.Weekday]window
	loc     *time.Location
	log     *logger.Logger
	now     func() time.Time
}

// New creates a scheduling service for the given policy.
func New(store repository.Store, gateway ports.AIGateway, policy config.DispatchPolicy, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		policy:  policy,
		hours:   businessWindows(policy),
		loc:     policy.Location(),
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SuggestTimes returns gateway slots for the job that are in the future,
// inside business hours, not excluded and held by a known technician.
func (s *Service) SuggestTimes(ctx context.Context, companyID, jobID uuid.UUID, excluded []time.Time) (Suggestions, error) {
	job, err := s.store.GetJob(ctx, companyID, jobID)
	if err != nil {
		return Suggestions{}, lifecycle.StoreError(err, lifecycle.MsgJobNotFound)
	}
	if !job.Status.CanSchedule() {
		return Suggestions{}, apperr.Conflict("Only Draft, Pending or Assigned jobs can be scheduled")
	}

	techs, err := s.store.ListTechnicians(ctx, companyID)
	if err != nil {
		return Suggestions{}, apperr.Unavailable(err)
	}
	active, err := s.store.ListJobs(ctx, companyID, repository.JobFilter{
		Statuses: []domain.JobStatus{domain.StatusAssigned, domain.StatusEnRoute, domain.StatusInProgress},
	})
	if err != nil {
		return Suggestions{}, apperr.Unavailable(err)
	}

	now := s.now()
	out := Suggestions{JobID: job.ID, Slots: []Slot{}}
	raw, err := s.gateway.SuggestScheduleTime(ctx, ports.ScheduleRequest{
		CompanyID:      companyID,
		Now:            now,
		JobPriority:    job.Priority,
		RequiredSkills: job.RequiredSkills,
		BusinessHours:  s.businessHours(),
		ExcludedTimes:  excluded,
		Technicians:    ports.BuildSnapshots(techs, active),
	})
	if err != nil {
		s.log.WithContext(ctx).GatewayDegraded("SuggestScheduleTime", err)
		out.Degraded = true
		return out, nil
	}

	names := make(map[uuid.UUID]string, len(techs))
	for _, t := range techs {
		names[t.ID] = t.Name
	}
	seen := make(map[time.Time]bool)
	for _, sug := range raw {
		name, known := names[sug.TechnicianID]
		at := sug.Time.Truncate(time.Minute).UTC()
		if !known || !at.After(now) || !s.InBusinessHours(at) || isExcluded(at, excluded) || seen[at] {
			out.Dropped++
			continue
		}
		seen[at] = true
		out.Slots = append(out.Slots, Slot{
			Time:           sug.Time,
			TechnicianID:   sug.TechnicianID,
			TechnicianName: name,
			Reasoning:      sug.Reasoning,
		})
	}
	sort.SliceStable(out.Slots, func(a, b int) bool { return out.Slots[a].Time.Before(out.Slots[b].Time) })
	return out, nil
}

// InBusinessHours reports whether t falls inside the opening window of its
// weekday, in the policy's time zone. Close is exclusive.
func (s *Service) InBusinessHours(t time.Time) bool {
	local := t.In(s.loc)
	w, ok := s.hours[local.Weekday()]
	if !ok {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	return m >= w.open && m < w.close
}

func (s *Service) businessHours() []ports.BusinessWindow {
	out := make([]ports.BusinessWindow, 0, len(s.policy.BusinessHours))
	for _, d := range s.policy.BusinessHours {
		day, ok := config.ParseWeekday(d.Day)
		if !ok {
			continue
		}
		out = append(out, ports.BusinessWindow{Day: day, Open: d.Open, Close: d.Close})
	}
	return out
}

func businessWindows(policy config.DispatchPolicy) map[time.Weekday]window {
	out := make(map[time.Weekday]window, len(policy.BusinessHours))
	for _, d := range policy.BusinessHours {
		day, ok := config.ParseWeekday(d.Day)
		if !ok {
			continue
		}
		open, err1 := time.Parse("15:04", d.Open)
		closing, err2 := time.Parse("15:04", d.Close)
		if err1 != nil || err2 != nil {
			continue
		}
		out[day] = window{
			open:  open.Hour()*60 + open.Minute(),
			close: closing.Hour()*60 + closing.Minute(),
		}
	}
	return out
}

// isExcluded matches to the minute.
func isExcluded(t time.Time, excluded []time.Time) bool {
	for _, e := range excluded {
		if e.Truncate(time.Minute).Equal(t) {
			return true
		}
	}
	return false
}
