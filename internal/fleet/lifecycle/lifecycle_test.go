package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/events/eventstest"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWriteFailed = errors.New("disk on fire")

type routeGateway struct {
	ports.AIGateway
	plan ports.RoutePlan
	err  error
}

func (g routeGateway) OptimizeRoute(context.Context, ports.RouteRequest) (ports.RoutePlan, error) {
	return g.plan, g.err
}

type fixture struct {
	ctx     context.Context
	store   *repository.MemoryStore
	bus     *eventstest.Recorder
	svc     *Service
	company uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T, gw ports.AIGateway) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   repository.NewMemoryStore(),
		bus:     &eventstest.Recorder{},
		company: uuid.New(),
		now:     time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(func() time.Time { return f.now })
	f.svc = New(f.store, gw, f.bus, config.DefaultPolicy(), "https://dispatch.example.com/", logger.Nop())
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) tech(name string) domain.Technician {
	return f.store.SeedTechnician(domain.Technician{
		ID: uuid.New(), CompanyID: f.company, Name: name, IsAvailable: true, Skills: []string{"hvac"},
	})
}

func (f *fixture) job(title string, status domain.JobStatus, techID *uuid.UUID) domain.Job {
	return f.store.SeedJob(domain.Job{
		ID: uuid.New(), CompanyID: f.company, Title: title, Priority: domain.PriorityMedium,
		Status: status, AssignedTechnicianID: techID, CreatedAt: f.now,
	})
}

// busy seeds a technician executing a job in the given status.
func (f *fixture) busy(name string, status domain.JobStatus) (domain.Technician, domain.Job) {
	tech := f.tech(name)
	job := f.job("current", status, &tech.ID)
	tech.TakeJob(job.ID)
	tech.Version = 0
	tech = f.store.SeedTechnician(tech)
	return tech, job
}

func (f *fixture) snapshot(t *testing.T) ([]domain.Job, []domain.Technician) {
	t.Helper()
	jobs, err := f.store.ListJobs(f.ctx, f.company, repository.JobFilter{})
	require.NoError(t, err)
	techs, err := f.store.ListTechnicians(f.ctx, f.company)
	require.NoError(t, err)
	return jobs, techs
}

func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	jobs, techs := f.snapshot(t)
	assert.Empty(t, domain.CheckFleet(jobs, techs))
}

func TestAssignFreeTechnician(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann")
	job := f.job("Boiler", domain.StatusPending, nil)

	got, err := f.svc.AssignJob(f.ctx, f.company, job.ID, tech.ID, AssignOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAssigned, got.Job.Status)
	require.NotNil(t, got.Job.AssignedAt)
	assert.True(t, got.Job.AssignedAt.Equal(f.now))
	assert.False(t, got.Technician.IsAvailable)
	assert.True(t, got.Technician.IsCurrentJob(job.ID))
	assert.Nil(t, got.Interrupted)
	assert.Equal(t, []string{"fleet.job.assigned"}, f.bus.Names())
	f.assertInvariants(t)
}

func TestAssignBusyTechnicianRequiresInterruption(t *testing.T) {
	f := newFixture(t, nil)
	tech, current := f.busy("Ann", domain.StatusInProgress)
	urgent := f.job("Gas leak", domain.StatusPending, nil)

	_, err := f.svc.AssignJob(f.ctx, f.company, urgent.ID, tech.ID, AssignOptions{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	unchanged, err := f.store.GetJob(f.ctx, f.company, current.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, unchanged.Status)

	got, err := f.svc.AssignJob(f.ctx, f.company, urgent.ID, tech.ID, AssignOptions{AllowInterruption: true})
	require.NoError(t, err)
	require.NotNil(t, got.Interrupted)

	bounced, err := f.store.GetJob(f.ctx, f.company, current.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, bounced.Status)
	assert.Nil(t, bounced.AssignedTechnicianID)
	require.NotEmpty(t, bounced.Notes)
	assert.Contains(t, bounced.Notes[len(bounced.Notes)-1].Text, "Gas leak")

	stored, err := f.store.GetTechnician(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCurrentJob(urgent.ID))
	f.assertInvariants(t)
}

func TestAssignBouncesNotYetStartedCurrentJob(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann")
	first := f.job("First stop", domain.StatusPending, nil)
	next := f.job("Second stop", domain.StatusPending, nil)

	_, err := f.svc.AssignJob(f.ctx, f.company, first.ID, tech.ID, AssignOptions{})
	require.NoError(t, err)

	_, err = f.svc.AssignJob(f.ctx, f.company, next.ID, tech.ID, AssignOptions{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	got, err := f.svc.AssignJob(f.ctx, f.company, next.ID, tech.ID, AssignOptions{AllowInterruption: true})
	require.NoError(t, err)
	require.NotNil(t, got.Interrupted)
	assert.Equal(t, first.ID, got.Interrupted.ID)

	bounced, err := f.store.GetJob(f.ctx, f.company, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, bounced.Status)
	assert.Nil(t, bounced.AssignedTechnicianID)
	require.NotEmpty(t, bounced.Notes)
	assert.Contains(t, bounced.Notes[len(bounced.Notes)-1].Text, "Second stop")

	stored, err := f.store.GetTechnician(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCurrentJob(next.ID))
	assert.False(t, stored.IsAvailable)
	f.assertInvariants(t)
}

func TestAssignOtherCompanyIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann")
	job := f.job("Boiler", domain.StatusPending, nil)

	_, err := f.svc.AssignJob(f.ctx, uuid.New(), job.ID, tech.ID, AssignOptions{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), MsgJobNotFound)
}

func TestMarkUnavailableIsAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	tech, current := f.busy("Ann", domain.StatusEnRoute)
	queued := f.job("later", domain.StatusAssigned, &tech.ID)

	jobsBefore, techsBefore := f.snapshot(t)

	f.store.FailNthWrite(2, errWriteFailed)
	_, err := f.svc.MarkTechnicianUnavailable(f.ctx, f.company, tech.ID, transport.MarkUnavailableRequest{Reason: "sick"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	jobsAfter, techsAfter := f.snapshot(t)
	assert.Equal(t, jobsBefore, jobsAfter)
	assert.Equal(t, techsBefore, techsAfter)

	res, err := f.svc.MarkTechnicianUnavailable(f.ctx, f.company, tech.ID, transport.MarkUnavailableRequest{Reason: "sick"})
	require.NoError(t, err)
	assert.Len(t, res.FreedJobs, 2)
	assert.False(t, res.Technician.IsAvailable)
	assert.Nil(t, res.Technician.CurrentJobID)
	require.NotNil(t, res.Technician.Unavailability)
	assert.Equal(t, "sick", res.Technician.Unavailability.Reason)

	for _, id := range []uuid.UUID{current.ID, queued.ID} {
		j, err := f.store.GetJob(f.ctx, f.company, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, j.Status)
		assert.Nil(t, j.RouteOrder)
	}
	f.assertInvariants(t)

	_, err = f.svc.AssignJob(f.ctx, f.company, current.ID, tech.ID, AssignOptions{})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "off-duty technicians cannot be assigned")

	back, err := f.svc.MarkTechnicianAvailable(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, back.IsAvailable)
	assert.Nil(t, back.Unavailability)
}

func TestTransitionHappyPathFreesTechnicianAndComputesProfit(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann")
	job := f.job("Boiler", domain.StatusPending, nil)
	job.Financials = domain.Financials{QuotedValue: 500, ExpectedPartsCost: 100, LaborHours: 2, LaborRate: 50}
	job.Version = 0
	f.store.SeedJob(job)

	_, err := f.svc.AssignJob(f.ctx, f.company, job.ID, tech.ID, AssignOptions{})
	require.NoError(t, err)
	_, err = f.svc.ConfirmRoute(f.ctx, f.company, tech.ID, []uuid.UUID{job.ID}, nil)
	require.NoError(t, err)

	for _, to := range []domain.JobStatus{domain.StatusEnRoute, domain.StatusInProgress, domain.StatusCompleted} {
		_, err = f.svc.TransitionStatus(f.ctx, f.company, job.ID, to)
		require.NoError(t, err, "to %s", to)
		f.assertInvariants(t)
	}

	done, err := f.store.GetJob(f.ctx, f.company, job.ID)
	require.NoError(t, err)
	assert.Nil(t, done.RouteOrder)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.Financials.ActualProfit)
	assert.InDelta(t, 300, *done.Financials.ActualProfit, 0.001)

	freed, err := f.store.GetTechnician(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, freed.IsAvailable)
	assert.Nil(t, freed.CurrentJobID)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	f := newFixture(t, nil)
	job := f.job("Boiler", domain.StatusPending, nil)

	_, err := f.svc.TransitionStatus(f.ctx, f.company, job.ID, domain.StatusCompleted)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.TransitionStatus(f.ctx, f.company, job.ID, domain.StatusAssigned)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.svc.TransitionStatus(f.ctx, f.company, job.ID, "Teleported")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResetEdgesAndCancel(t *testing.T) {
	f := newFixture(t, nil)
	tech, job := f.busy("Ann", domain.StatusInProgress)

	back, err := f.svc.TransitionStatus(f.ctx, f.company, job.ID, domain.StatusEnRoute)
	require.NoError(t, err)
	assert.Nil(t, back.InProgressAt)

	back, err = f.svc.TransitionStatus(f.ctx, f.company, job.ID, domain.StatusAssigned)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, back.Status)

	cancelled, err := f.svc.TransitionStatus(f.ctx, f.company, job.ID, domain.StatusCancelled)
	require.NoError(t, err)
	assert.Nil(t, cancelled.AssignedTechnicianID)

	stored, err := f.store.GetTechnician(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)
	f.assertInvariants(t)
}

func TestUnassignAddsNoteAndFreesTechnician(t *testing.T) {
	f := newFixture(t, nil)
	tech, job := f.busy("Ann", domain.StatusEnRoute)

	got, err := f.svc.UnassignJob(f.ctx, f.company, job.ID, "customer asked for another day")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	require.NotEmpty(t, got.Notes)
	assert.Equal(t, "Unassigned: customer asked for another day", got.Notes[len(got.Notes)-1].Text)

	stored, err := f.store.GetTechnician(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)

	_, err = f.svc.UnassignJob(f.ctx, f.company, job.ID, "again")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestDeleteFreesOnlyTheHolder(t *testing.T) {
	f := newFixture(t, nil)
	holder, job := f.busy("Ann", domain.StatusInProgress)
	other := f.tech("Bob")

	require.NoError(t, f.svc.DeleteJob(f.ctx, f.company, job.ID))

	_, err := f.store.GetJob(f.ctx, f.company, job.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	freed, err := f.store.GetTechnician(f.ctx, f.company, holder.ID)
	require.NoError(t, err)
	assert.True(t, freed.IsAvailable)
	assert.Nil(t, freed.CurrentJobID)

	untouched, err := f.store.GetTechnician(f.ctx, f.company, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.Version, untouched.Version)
}

func TestConfirmRouteIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann")
	a := f.job("a", domain.StatusAssigned, &tech.ID)
	b := f.job("b", domain.StatusAssigned, &tech.ID)
	c := f.job("c", domain.StatusEnRoute, &tech.ID)
	c.RouteOrder = domain.Ptr(5)
	c.Version = 0
	f.store.SeedJob(c)

	order := []uuid.UUID{b.ID, a.ID}
	_, err := f.svc.ConfirmRoute(f.ctx, f.company, tech.ID, order, []uuid.UUID{c.ID})
	require.NoError(t, err)
	first, _ := f.snapshot(t)

	_, err = f.svc.ConfirmRoute(f.ctx, f.company, tech.ID, order, []uuid.UUID{c.ID})
	require.NoError(t, err)
	second, _ := f.snapshot(t)
	assert.Equal(t, first, second)

	byID := map[uuid.UUID]domain.Job{}
	for _, j := range second {
		byID[j.ID] = j
	}
	require.NotNil(t, byID[b.ID].RouteOrder)
	assert.Equal(t, 0, *byID[b.ID].RouteOrder)
	assert.Equal(t, 1, *byID[a.ID].RouteOrder)
	assert.Nil(t, byID[c.ID].RouteOrder)
}

func TestConfirmRouteRejectsForeignJob(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	bob := f.tech("Bob")
	bobs := f.job("bob's", domain.StatusAssigned, &bob.ID)

	_, err := f.svc.ConfirmRoute(f.ctx, f.company, ann.ID, []uuid.UUID{bobs.ID}, nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.ConfirmRoute(f.ctx, f.company, ann.ID, []uuid.UUID{bobs.ID, bobs.ID}, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestConfirmRouteCannotExcludeForeignJob(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	bob := f.tech("Bob")
	mine := f.job("mine", domain.StatusAssigned, &ann.ID)
	bobs := f.job("bob's", domain.StatusAssigned, &bob.ID)
	bobs.RouteOrder = domain.Ptr(0)
	bobs.Version = 0
	f.store.SeedJob(bobs)

	_, err := f.svc.ConfirmRoute(f.ctx, f.company, ann.ID, []uuid.UUID{mine.ID}, []uuid.UUID{bobs.ID})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	kept, err := f.store.GetJob(f.ctx, f.company, bobs.ID)
	require.NoError(t, err)
	require.NotNil(t, kept.RouteOrder)
	assert.Equal(t, 0, *kept.RouteOrder)

	untouched, err := f.store.GetJob(f.ctx, f.company, mine.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.RouteOrder)
}

func TestProposeRouteRepairsSuggestion(t *testing.T) {
	gw := &routeGateway{}
	f := newFixture(t, gw)
	tech := f.tech("Ann")
	a := f.job("a", domain.StatusAssigned, &tech.ID)
	b := f.job("b", domain.StatusAssigned, &tech.ID)

	eta := f.now.Add(time.Hour)
	gw.plan = ports.RoutePlan{
		OptimizedRoute: []ports.RouteStop{
			{TaskID: b.ID, EstimatedArrivalTime: eta},
			{TaskID: uuid.New(), EstimatedArrivalTime: eta},
			{TaskID: b.ID, EstimatedArrivalTime: eta},
		},
		Reasoning: "b is closer",
	}

	got, err := f.svc.ProposeRoute(f.ctx, f.company, tech.ID)
	require.NoError(t, err)
	assert.True(t, got.Suggested)
	assert.True(t, got.Adjusted)
	require.Len(t, got.Stops, 2)
	assert.Equal(t, b.ID, got.Stops[0].JobID)
	assert.Equal(t, a.ID, got.Stops[1].JobID)
	assert.Nil(t, got.Stops[1].EstimatedArrivalTime)

	gw.err = errors.New("gateway down")
	got, err = f.svc.ProposeRoute(f.ctx, f.company, tech.ID)
	require.NoError(t, err, "gateway failures degrade to the current order")
	assert.False(t, got.Suggested)
	assert.Len(t, got.Stops, 2)
}

func TestTokenLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	tech := f.tech("Ann Smith")
	job := f.job("Boiler", domain.StatusEnRoute, &tech.ID)

	issued, err := f.svc.IssueToken(f.ctx, f.company, job.ID, domain.TokenTracking)
	require.NoError(t, err)
	assert.Equal(t, "https://dispatch.example.com/track/"+issued.Token, issued.URL)

	view, err := f.svc.PublicTrackingView(f.ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ann", view.TechnicianName)
	assert.NotNil(t, view.TechnicianLocation)

	png, err := f.svc.TrackingQRCode(f.ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = f.svc.ValidateToken(f.ctx, domain.TokenTriage, issued.Token)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "a tracking token is not a triage token")

	f.now = f.now.Add(config.DefaultPolicy().TrackingTokenTTL)
	_, err = f.svc.ValidateToken(f.ctx, domain.TokenTracking, issued.Token)
	assert.True(t, apperr.Is(err, apperr.KindGone), "expired tokens are rejected even on an exact match")

	require.NoError(t, f.svc.RevokeToken(f.ctx, f.company, job.ID, domain.TokenTracking))
	_, err = f.svc.ValidateToken(f.ctx, domain.TokenTracking, issued.Token)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestBreaksRequireInProgress(t *testing.T) {
	f := newFixture(t, nil)
	_, job := f.busy("Ann", domain.StatusInProgress)

	_, err := f.svc.StartBreak(f.ctx, f.company, job.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.StartBreak(f.ctx, f.company, job.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	later := f.now.Add(20 * time.Minute)
	got, err := f.svc.EndBreak(f.ctx, f.company, job.ID, &later)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, got.BreakTime(later))
}

func TestCreateAndUpdateJob(t *testing.T) {
	f := newFixture(t, nil)

	job, err := f.svc.CreateJob(f.ctx, f.company, transport.CreateJobRequest{
		Title:          "  <b>Boiler</b>  service ",
		Priority:       domain.PriorityHigh,
		RequiredSkills: []string{"gas", "gas", " "},
		Customer:       transport.CustomerDTO{Name: "Jo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Boiler service", job.Title)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, []string{"gas"}, job.RequiredSkills)
	assert.EqualValues(t, 1, job.Version)

	title := "Boiler repair"
	updated, err := f.svc.UpdateJob(f.ctx, f.company, job.ID, transport.UpdateJobRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.EqualValues(t, 2, updated.Version)

	listed, err := f.svc.ListJobs(f.ctx, f.company, transport.ListJobsRequest{Status: []string{"Pending"}})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = f.svc.ListJobs(f.ctx, f.company, transport.ListJobsRequest{Status: []string{"Lost"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
