package ports

import (
	"sort"

	"dispatch_backend/internal/fleet/domain"
)

// BuildSnapshots builds the availability view of every technician with the
// active jobs assigned to them, ordered by route position.
func BuildSnapshots(techs []domain.Technician, jobs []domain.Job) []TechnicianSnapshot {
	byTech := make(map[string][]SnapshotJob)
	for _, j := range jobs {
		if j.AssignedTechnicianID == nil || !j.Status.IsActive() {
			continue
		}
		key := j.AssignedTechnicianID.String()
		byTech[key] = append(byTech[key], SnapshotJob{
			ID:            j.ID,
			Title:         j.Title,
			Status:        j.Status,
			Priority:      j.Priority,
			ScheduledTime: j.ScheduledTime,
			RouteOrder:    j.RouteOrder,
		})
	}

	out := make([]TechnicianSnapshot, 0, len(techs))
	for _, t := range techs {
		assigned := byTech[t.ID.String()]
		sort.SliceStable(assigned, func(a, b int) bool {
			return routeLess(assigned[a].RouteOrder, assigned[b].RouteOrder)
		})
		if assigned == nil {
			assigned = []SnapshotJob{}
		}
		skills := append([]string{}, t.Skills...)
		out = append(out, TechnicianSnapshot{
			ID:           t.ID,
			Name:         t.Name,
			IsAvailable:  t.IsAvailable,
			CurrentJobID: t.CurrentJobID,
			Skills:       skills,
			Location:     t.Location,
			Jobs:         assigned,
		})
	}
	return out
}

// routeLess orders route positions with nil last.
func routeLess(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
