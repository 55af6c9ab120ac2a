package risk

import (
	"time"

	"github.com/google/uuid"
)

// DefaultThresholdMinutes is the delay above which an alert is raised.
const DefaultThresholdMinutes = 15

// Alert is an open delay warning for one technician. Dismissed alerts stay
// stored so they are not raised again while the technician is still late.
type Alert struct {
	TechnicianID          uuid.UUID `json:"technicianId"`
	TechnicianName        string    `json:"technicianName"`
	NextJobID             uuid.UUID `json:"nextJobId"`
	PredictedDelayMinutes float64   `json:"predictedDelayMinutes"`
	Reasoning             string    `json:"reasoning"`
	RaisedAt              time.Time `json:"raisedAt"`
	Dismissed             bool      `json:"dismissed"`
}

// Reconciliation is the outcome of one polling round.
type Reconciliation struct {
	Alerts  []Alert
	Raised  []Alert
	Cleared []uuid.UUID
}

// Changed reports whether anything was raised or cleared.
func (r Reconciliation) Changed() bool {
	return len(r.Raised) > 0 || len(r.Cleared) > 0
}

// ReconcileAlerts merges a round of results into the previous alert set.
//
// A technician over threshold gets one alert; an existing one is kept as it
// is. A technician at or under threshold loses theirs. A failed estimate
// leaves things as they were. Technicians missing from results no longer
// have an active pair and lose their alert.
func ReconcileAlerts(previous []Alert, results []TechnicianRisk, threshold float64, now time.Time) Reconciliation {
	existing := make(map[uuid.UUID]Alert, len(previous))
	for _, a := range previous {
		existing[a.TechnicianID] = a
	}

	var rec Reconciliation
	seen := make(map[uuid.UUID]bool, len(results))
	for _, r := range results {
		seen[r.TechnicianID] = true
		prev, had := existing[r.TechnicianID]

		switch {
		case r.Failed():
			if had {
				rec.Alerts = append(rec.Alerts, prev)
			}
		case r.PredictedDelayMinutes > threshold:
			if had {
				rec.Alerts = append(rec.Alerts, prev)
				continue
			}
			a := Alert{
				TechnicianID:          r.TechnicianID,
				TechnicianName:        r.TechnicianName,
				NextJobID:             r.NextJobID,
				PredictedDelayMinutes: r.PredictedDelayMinutes,
				Reasoning:             r.Reasoning,
				RaisedAt:              now,
			}
			rec.Alerts = append(rec.Alerts, a)
			rec.Raised = append(rec.Raised, a)
		default:
			if had {
				rec.Cleared = append(rec.Cleared, r.TechnicianID)
			}
		}
	}

	for _, a := range previous {
		if !seen[a.TechnicianID] {
			rec.Cleared = append(rec.Cleared, a.TechnicianID)
		}
	}
	return rec
}

// Visible returns the alerts a dispatcher has not dismissed.
func Visible(alerts []Alert) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Dismissed {
			out = append(out, a)
		}
	}
	return out
}
