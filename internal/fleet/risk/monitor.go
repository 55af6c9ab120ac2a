package risk

import (
	"context"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Monitor polls every company on a fixed period and keeps the alert set in
// step with the latest estimates.
type Monitor struct {
	evaluator    *Evaluator
	alerts       AlertStore
	companies    repository.CompanyLister
	eventBus     events.Bus
	log          *logger.Logger
	threshold    float64
	initialDelay time.Duration
	period       time.Duration
	now          func() time.Time
}

// NewMonitor creates a monitor using the thresholds and periods from policy.
func NewMonitor(evaluator *Evaluator, alerts AlertStore, companies repository.CompanyLister, eventBus events.Bus, policy config.DispatchPolicy, log *logger.Logger) *Monitor {
	m := &Monitor{
		evaluator:    evaluator,
		alerts:       alerts,
		companies:    companies,
		eventBus:     eventBus,
		log:          log,
		threshold:    float64(policy.RiskThresholdMinutes),
		initialDelay: policy.RiskInitialDelay,
		period:       policy.RiskPollInterval,
		now:          time.Now,
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThresholdMinutes
	}
	if m.period <= 0 {
		m.period = 5 * time.Minute
	}
	return m
}

// SetClock overrides the time source. Used by tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Run polls until ctx is cancelled: once after the initial delay, then on
// every period.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("risk monitor started", "initialDelay", m.initialDelay.String(), "period", m.period.String())

	timer := time.NewTimer(m.initialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	m.Tick(ctx)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("risk monitor stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one polling round over every company. A failing company is
// logged and skipped.
func (m *Monitor) Tick(ctx context.Context) {
	ids, err := m.companies.ListCompanies(ctx)
	if err != nil {
		m.log.WithContext(ctx).ActionFailed("risk.ListCompanies", err)
		return
	}
	for _, companyID := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.PollCompany(ctx, companyID); err != nil {
			m.log.WithContext(ctx).ActionFailed("risk.PollCompany", err)
		}
	}
}

// PollCompany evaluates one company and applies the resulting alert changes.
func (m *Monitor) PollCompany(ctx context.Context, companyID uuid.UUID) (Reconciliation, error) {
	now := m.now()
	results, err := m.evaluator.Evaluate(ctx, companyID, now)
	if err != nil {
		return Reconciliation{}, err
	}
	previous, err := m.alerts.Load(ctx, companyID)
	if err != nil {
		return Reconciliation{}, err
	}
	if len(results) == 0 && len(previous) == 0 {
		return Reconciliation{}, nil
	}

	rec := ReconcileAlerts(previous, results, m.threshold, now)
	if err := m.alerts.Apply(ctx, companyID, rec); err != nil {
		return Reconciliation{}, err
	}

	for _, a := range rec.Raised {
		m.publish(ctx, events.RiskAlertRaised{
			BaseEvent:             events.NewBaseEvent(),
			CompanyID:             companyID,
			TechnicianID:          a.TechnicianID,
			NextJobID:             a.NextJobID,
			PredictedDelayMinutes: a.PredictedDelayMinutes,
			Reasoning:             a.Reasoning,
		})
	}
	for _, id := range rec.Cleared {
		m.publish(ctx, events.RiskAlertCleared{
			BaseEvent:    events.NewBaseEvent(),
			CompanyID:    companyID,
			TechnicianID: id,
		})
	}
	return rec, nil
}

// Alerts returns the company's undismissed alerts.
func (m *Monitor) Alerts(ctx context.Context, companyID uuid.UUID) ([]Alert, error) {
	all, err := m.alerts.Load(ctx, companyID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return Visible(all), nil
}

// Dismiss hides a technician's alert until they drop back under threshold.
func (m *Monitor) Dismiss(ctx context.Context, companyID, techID uuid.UUID) error {
	err := m.alerts.Dismiss(ctx, companyID, techID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoAlert):
		return apperr.NotFound("No open delay alert for this technician")
	default:
		return apperr.Unavailable(err)
	}
}

func (m *Monitor) publish(ctx context.Context, evt events.Event) {
	if m.eventBus != nil {
		m.eventBus.Publish(ctx, evt)
	}
}
