package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Violation describes a broken invariant on a single document.
type Violation struct {
	DocumentID uuid.UUID `json:"documentId"`
	Rule       string    `json:"rule"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.DocumentID, v.Rule)
}

// CheckJob returns the invariants the job currently breaks.
func CheckJob(j Job) []Violation {
	var out []Violation
	add := func(rule string) { out = append(out, Violation{DocumentID: j.ID, Rule: rule}) }

	if !j.Status.Valid() {
		add(fmt.Sprintf("unknown status %q", j.Status))
	}
	if j.Status.RequiresTechnician() && j.AssignedTechnicianID == nil {
		add(fmt.Sprintf("status %s requires an assigned technician", j.Status))
	}
	if !j.Status.RequiresTechnician() && j.AssignedTechnicianID != nil {
		add(fmt.Sprintf("status %s must not carry an assigned technician", j.Status))
	}
	if j.RouteOrder != nil && !j.Status.IsRouted() {
		add(fmt.Sprintf("route order set while status is %s", j.Status))
	}
	open := 0
	for _, b := range j.Breaks {
		if b.End == nil {
			open++
		}
	}
	if open > 1 {
		add("more than one open break")
	}
	return out
}

// CheckTechnician returns the invariants the technician currently breaks.
func CheckTechnician(t Technician) []Violation {
	if t.CurrentJobID != nil && t.IsAvailable {
		return []Violation{{DocumentID: t.ID, Rule: "available while holding a current job"}}
	}
	return nil
}

// CheckCurrentJobExclusive reports technicians that share a current job.
func CheckCurrentJobExclusive(techs []Technician) []Violation {
	holders := make(map[uuid.UUID]uuid.UUID, len(techs))
	var out []Violation
	for _, t := range techs {
		if t.CurrentJobID == nil {
			continue
		}
		if other, ok := holders[*t.CurrentJobID]; ok {
			out = append(out, Violation{
				DocumentID: t.ID,
				Rule:       fmt.Sprintf("current job %s also held by technician %s", *t.CurrentJobID, other),
			})
			continue
		}
		holders[*t.CurrentJobID] = t.ID
	}
	return out
}

// CheckFleet runs every per-document and cross-document check.
func CheckFleet(jobs []Job, techs []Technician) []Violation {
	var out []Violation
	for _, j := range jobs {
		out = append(out, CheckJob(j)...)
	}
	for _, t := range techs {
		out = append(out, CheckTechnician(t)...)
	}
	return append(out, CheckCurrentJobExclusive(techs)...)
}
