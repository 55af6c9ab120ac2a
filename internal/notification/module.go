// Package notification fans fleet events out to connected dispatch boards
// over SSE and emails technicians about changes to their work.
package notification

import (
	"context"
	"errors"
	"time"

	"dispatch_backend/internal/email"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/notification/sse"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Directory resolves the records a notification needs.
type Directory interface {
	repository.JobReader
	repository.TechnicianReader
	repository.ChangeRequestReader
}

// Module is the notification module.
type Module struct {
	dir    Directory
	sender email.Sender
	sse    *sse.Service
	log    *logger.Logger
}

// New creates the notification module.
func New(dir Directory, sender email.Sender, log *logger.Logger) *Module {
	return &Module{
		dir:    dir,
		sender: sender,
		sse:    sse.New(log),
		log:    log,
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the dispatch board event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/fleet/events", m.sse.Handler())
}

// SSE returns the event stream hub.
func (m *Module) SSE() *sse.Service { return m.sse }

// Close disconnects every stream.
func (m *Module) Close() { m.sse.Close() }

// fleetEvents lists every event the dispatch board shows. They reach the
// board through the relay so every API replica sees them.
var fleetEvents = []events.Event{
	events.JobAssigned{},
	events.JobUnassigned{},
	events.JobStatusChanged{},
	events.JobDeleted{},
	events.RouteConfirmed{},
	events.TechnicianUnavailable{},
	events.ProfileChangeReviewed{},
	events.ProposalReady{},
	events.RiskAlertRaised{},
	events.RiskAlertCleared{},
	events.RecurringJobsGenerated{},
}

// RegisterHandlers subscribes technician mail and publishes every fleet
// event on relay.
func (m *Module) RegisterHandlers(bus events.Bus, relay *Relay) {
	bus.Subscribe(events.JobAssigned{}.EventName(), m)
	bus.Subscribe(events.JobUnassigned{}.EventName(), m)
	bus.Subscribe(events.ProfileChangeReviewed{}.EventName(), m)

	if relay != nil {
		for _, e := range fleetEvents {
			bus.Subscribe(e.EventName(), relay)
		}
	}
	m.log.Info("notification module registered event handlers")
}

// Handle sends technician mail where one is due.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.JobAssigned:
		return m.handleJobAssigned(ctx, e)
	case events.JobUnassigned:
		return m.handleJobUnassigned(ctx, e)
	case events.ProfileChangeReviewed:
		return m.handleProfileChangeReviewed(ctx, e)
	}
	return nil
}

func (m *Module) handleJobAssigned(ctx context.Context, e events.JobAssigned) error {
	tech, ok := m.recipient(ctx, e.CompanyID, e.TechnicianID)
	if !ok {
		return nil
	}
	job, err := m.dir.GetJob(ctx, e.CompanyID, e.JobID)
	if err != nil {
		return m.lookupFailed("job", err)
	}

	mail := email.JobAssignedMail{
		TechnicianName: tech.Name,
		JobTitle:       job.Title,
		Address:        job.Location.Address,
		ScheduledTime:  formatSchedule(job.ScheduledTime),
	}
	if e.InterruptedJobID != nil {
		if interrupted, err := m.dir.GetJob(ctx, e.CompanyID, *e.InterruptedJobID); err == nil {
			mail.Interrupted = interrupted.Title
		}
	}
	return m.sender.SendJobAssigned(ctx, tech.Email, mail)
}

func (m *Module) handleJobUnassigned(ctx context.Context, e events.JobUnassigned) error {
	if e.TechnicianID == nil {
		return nil
	}
	tech, ok := m.recipient(ctx, e.CompanyID, *e.TechnicianID)
	if !ok {
		return nil
	}
	// The job may already be gone.
	title := ""
	if job, err := m.dir.GetJob(ctx, e.CompanyID, e.JobID); err == nil {
		title = job.Title
	}
	return m.sender.SendJobUnassigned(ctx, tech.Email, email.JobUnassignedMail{
		TechnicianName: tech.Name,
		JobTitle:       title,
		Reason:         e.Reason,
	})
}

func (m *Module) handleProfileChangeReviewed(ctx context.Context, e events.ProfileChangeReviewed) error {
	tech, ok := m.recipient(ctx, e.CompanyID, e.TechnicianID)
	if !ok {
		return nil
	}
	notes := ""
	if r, err := m.dir.GetChangeRequest(ctx, e.CompanyID, e.RequestID); err == nil {
		notes = r.ReviewNotes
	}
	return m.sender.SendProfileReview(ctx, tech.Email, email.ProfileReviewMail{
		TechnicianName: tech.Name,
		Approved:       e.Status == string(domain.ChangeRequestApproved),
		Notes:          notes,
	})
}

// recipient loads a technician that can receive mail.
func (m *Module) recipient(ctx context.Context, companyID, techID uuid.UUID) (domain.Technician, bool) {
	tech, err := m.dir.GetTechnician(ctx, companyID, techID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.log.DocumentStoreError("notification.recipient", err)
		}
		return domain.Technician{}, false
	}
	if tech.Email == "" {
		m.log.Debug("technician has no email", "technician_id", techID.String())
		return domain.Technician{}, false
	}
	return tech, true
}

func (m *Module) lookupFailed(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	m.log.DocumentStoreError("notification."+what, err)
	return err
}

func formatSchedule(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Mon 2 Jan 15:04 MST")
}

// Compile-time checks
var (
	_ apphttp.Module = (*Module)(nil)
	_ events.Handler = (*Module)(nil)
)
