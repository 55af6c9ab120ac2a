package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dispatch_backend/internal/email"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/notification/sse"
	"dispatch_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSender struct {
	assigned   []email.JobAssignedMail
	unassigned []email.JobUnassignedMail
	reviews    []email.ProfileReviewMail
	to         []string
}

func (s *testSender) SendJobAssigned(_ context.Context, to string, m email.JobAssignedMail) error {
	s.to = append(s.to, to)
	s.assigned = append(s.assigned, m)
	return nil
}

func (s *testSender) SendJobUnassigned(_ context.Context, to string, m email.JobUnassignedMail) error {
	s.to = append(s.to, to)
	s.unassigned = append(s.unassigned, m)
	return nil
}

func (s *testSender) SendProfileReview(_ context.Context, to string, m email.ProfileReviewMail) error {
	s.to = append(s.to, to)
	s.reviews = append(s.reviews, m)
	return nil
}

const testTechEmail = "ann@example.com"

type fixture struct {
	store   *repository.MemoryStore
	sender  *testSender
	module  *Module
	company uuid.UUID
	tech    domain.Technician
}

func newFixture() *fixture {
	f := &fixture{store: repository.NewMemoryStore(), sender: &testSender{}, company: uuid.New()}
	f.module = New(f.store, f.sender, logger.Nop())
	f.tech = f.store.SeedTechnician(domain.Technician{
		ID: uuid.New(), CompanyID: f.company, Name: "Ann", Email: testTechEmail, IsAvailable: true,
	})
	return f
}

func TestJobAssignedMailsTechnician(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	old := f.store.SeedJob(domain.Job{ID: uuid.New(), CompanyID: f.company, Title: "Replace filter", Priority: domain.PriorityLow, Status: domain.StatusPending})
	job := f.store.SeedJob(domain.Job{
		ID: uuid.New(), CompanyID: f.company, Title: "Burst pipe", Priority: domain.PriorityHigh,
		Status: domain.StatusAssigned, ScheduledTime: &at, Location: domain.Location{Address: "1 Main St"},
	})

	err := f.module.Handle(context.Background(), events.JobAssigned{
		BaseEvent: events.NewBaseEvent(), CompanyID: f.company, JobID: job.ID,
		JobTitle: job.Title, TechnicianID: f.tech.ID, InterruptedJobID: &old.ID,
	})
	require.NoError(t, err)
	require.Len(t, f.sender.assigned, 1)
	mail := f.sender.assigned[0]
	assert.Equal(t, "Ann", mail.TechnicianName)
	assert.Equal(t, "1 Main St", mail.Address)
	assert.Equal(t, "Replace filter", mail.Interrupted)
	assert.Equal(t, "Mon 2 Mar 09:30 UTC", mail.ScheduledTime)
	assert.Equal(t, []string{testTechEmail}, f.sender.to)
}

func TestJobUnassignedWithoutTechnicianSendsNothing(t *testing.T) {
	f := newFixture()
	err := f.module.Handle(context.Background(), events.JobUnassigned{
		BaseEvent: events.NewBaseEvent(), CompanyID: f.company, JobID: uuid.New(), Reason: "declined",
	})
	require.NoError(t, err)
	assert.Empty(t, f.sender.unassigned)

	err = f.module.Handle(context.Background(), events.JobUnassigned{
		BaseEvent: events.NewBaseEvent(), CompanyID: f.company, JobID: uuid.New(),
		TechnicianID: &f.tech.ID, Reason: "technician unavailable",
	})
	require.NoError(t, err)
	require.Len(t, f.sender.unassigned, 1)
	assert.Equal(t, "technician unavailable", f.sender.unassigned[0].Reason)
	assert.Empty(t, f.sender.unassigned[0].JobTitle)
}

func TestTechnicianWithoutEmailIsSkipped(t *testing.T) {
	f := newFixture()
	silent := f.store.SeedTechnician(domain.Technician{ID: uuid.New(), CompanyID: f.company, Name: "Bo", IsAvailable: true})

	err := f.module.Handle(context.Background(), events.ProfileChangeReviewed{
		BaseEvent: events.NewBaseEvent(), CompanyID: f.company, RequestID: uuid.New(),
		TechnicianID: silent.ID, Status: string(domain.ChangeRequestApproved),
	})
	require.NoError(t, err)
	assert.Empty(t, f.sender.reviews)

	err = f.module.Handle(context.Background(), events.ProfileChangeReviewed{
		BaseEvent: events.NewBaseEvent(), CompanyID: f.company, RequestID: uuid.New(),
		TechnicianID: f.tech.ID, Status: string(domain.ChangeRequestRejected),
	})
	require.NoError(t, err)
	require.Len(t, f.sender.reviews, 1)
	assert.False(t, f.sender.reviews[0].Approved)
}

func TestOtherCompanyTechnicianIsNotMailed(t *testing.T) {
	f := newFixture()
	err := f.module.Handle(context.Background(), events.JobAssigned{
		BaseEvent: events.NewBaseEvent(), CompanyID: uuid.New(), JobID: uuid.New(), TechnicianID: f.tech.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, f.sender.to)
}

func TestRelayForwardsFleetEventsToCompanyStream(t *testing.T) {
	f := newFixture()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus := events.NewInMemoryBus(logger.Nop())
	relay := NewRelay(rdb, logger.Nop())
	f.module.RegisterHandlers(bus, relay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Forward(ctx, f.module.SSE()) }()

	stream, done := f.module.SSE().Subscribe(uuid.New(), f.company)
	defer done()
	other, otherDone := f.module.SSE().Subscribe(uuid.New(), uuid.New())
	defer otherDone()

	alert := events.RiskAlertCleared{BaseEvent: events.NewBaseEvent(), CompanyID: f.company, TechnicianID: f.tech.ID}
	var got sse.Event
	require.Eventually(t, func() bool {
		_ = bus.PublishSync(ctx, alert)
		select {
		case got = <-stream:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "fleet.risk.alert_cleared", got.Type)
	raw, ok := got.Data.(json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, string(raw), f.tech.ID.String())
	assert.Empty(t, other)
	assert.Empty(t, f.sender.to)
}
