package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/events/eventstest"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allocGateway struct {
	ports.AIGateway
	pick     func(ports.AllocationRequest) (ports.AllocationSuggestion, error)
	requests []ports.AllocationRequest
}

func (g *allocGateway) Allocate(_ context.Context, req ports.AllocationRequest) (ports.AllocationSuggestion, error) {
	g.requests = append(g.requests, req)
	return g.pick(req)
}

func always(techID uuid.UUID) func(ports.AllocationRequest) (ports.AllocationSuggestion, error) {
	return func(ports.AllocationRequest) (ports.AllocationSuggestion, error) {
		id := techID
		return ports.AllocationSuggestion{SuggestedTechnicianID: &id, Reasoning: "closest"}, nil
	}
}

type fixture struct {
	ctx     context.Context
	store   *repository.MemoryStore
	bus     *eventstest.Recorder
	gw      *allocGateway
	svc     *Service
	company uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T, cache ProposalCache) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   repository.NewMemoryStore(),
		bus:     &eventstest.Recorder{},
		gw:      &allocGateway{},
		company: uuid.New(),
		now:     time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	lc := lifecycle.New(f.store, f.gw, f.bus, config.DefaultPolicy(), "https://dispatch.example.com", logger.Nop())
	lc.SetClock(clock)
	f.svc = New(f.store, f.gw, lc, cache, f.bus, logger.Nop())
	f.svc.SetClock(clock)
	return f
}

func newRedisCache(t *testing.T) (*RedisProposalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisProposalCache(rdb, 30*time.Minute), mr
}

func (f *fixture) tech(name string) domain.Technician {
	return f.store.SeedTechnician(domain.Technician{
		ID: uuid.New(), CompanyID: f.company, Name: name, IsAvailable: true, Skills: []string{"hvac"},
	})
}

func (f *fixture) job(title string, priority domain.Priority) domain.Job {
	return f.store.SeedJob(domain.Job{
		ID: uuid.New(), CompanyID: f.company, Title: title, Priority: priority,
		Status: domain.StatusPending, RequiredSkills: []string{"hvac"}, CreatedAt: f.now,
	})
}

func (f *fixture) busy(name string, status domain.JobStatus) (domain.Technician, domain.Job) {
	tech := f.tech(name)
	job := f.store.SeedJob(domain.Job{
		ID: uuid.New(), CompanyID: f.company, Title: "current", Priority: domain.PriorityMedium,
		Status: status, AssignedTechnicianID: &tech.ID, CreatedAt: f.now,
	})
	tech.TakeJob(job.ID)
	return f.store.SeedTechnician(tech), job
}

func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	jobs, err := f.store.ListJobs(f.ctx, f.company, repository.JobFilter{})
	require.NoError(t, err)
	techs, err := f.store.ListTechnicians(f.ctx, f.company)
	require.NoError(t, err)
	assert.Empty(t, domain.CheckFleet(jobs, techs))
}

func TestProposeForJobValidatesSuggestion(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	job := f.job("Boiler", domain.PriorityMedium)
	f.gw.pick = always(ann.ID)

	p, err := f.svc.ProposeForJob(f.ctx, f.company, job.ID)
	require.NoError(t, err)
	require.NotNil(t, p.TechnicianID)
	assert.Equal(t, ann.ID, *p.TechnicianID)
	assert.Equal(t, "Ann", p.TechnicianName)
	assert.True(t, p.Feasible)
	assert.Nil(t, p.Interrupts)

	require.Len(t, f.gw.requests, 1)
	assert.Equal(t, job.ID, f.gw.requests[0].JobID)
	require.Len(t, f.gw.requests[0].Technicians, 1)
}

func TestProposeForJobDegradesToNoSuggestion(t *testing.T) {
	cases := []struct {
		name  string
		pick  func(ports.AllocationRequest) (ports.AllocationSuggestion, error)
		issue string
	}{
		{
			name: "gateway error",
			pick: func(ports.AllocationRequest) (ports.AllocationSuggestion, error) {
				return ports.AllocationSuggestion{}, errors.New("timeout")
			},
		},
		{
			name: "no technician",
			pick: func(ports.AllocationRequest) (ports.AllocationSuggestion, error) {
				return ports.AllocationSuggestion{}, nil
			},
		},
		{
			name:  "unknown technician",
			pick:  always(uuid.New()),
			issue: msgUnknownTechnician,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.tech("Ann")
			job := f.job("Boiler", domain.PriorityMedium)
			f.gw.pick = tc.pick

			p, err := f.svc.ProposeForJob(f.ctx, f.company, job.ID)
			require.NoError(t, err)
			assert.False(t, p.HasSuggestion())
			assert.False(t, p.Feasible)
			if tc.issue != "" {
				assert.Contains(t, p.Issues, tc.issue)
			} else {
				assert.Equal(t, msgNoSuggestion, p.Reasoning)
			}
		})
	}
}

func TestProposeFlagsInterruptionAndMissingSkills(t *testing.T) {
	f := newFixture(t, nil)
	ann, current := f.busy("Ann", domain.StatusInProgress)
	job := f.store.SeedJob(domain.Job{
		ID: uuid.New(), CompanyID: f.company, Title: "Gas leak", Priority: domain.PriorityHigh,
		Status: domain.StatusPending, RequiredSkills: []string{"gas"}, CreatedAt: f.now,
	})
	f.gw.pick = always(ann.ID)

	p, err := f.svc.ProposeForJob(f.ctx, f.company, job.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Interrupts)
	assert.Equal(t, current.ID, *p.Interrupts)
	assert.False(t, p.Feasible)
	require.Len(t, p.Issues, 1)
	assert.Contains(t, p.Issues[0], "gas")
}

func TestProposeFlagsInterruptionOfAssignedCurrentJob(t *testing.T) {
	f := newFixture(t, nil)
	ann, current := f.busy("Ann", domain.StatusAssigned)
	job := f.job("Gas leak", domain.PriorityHigh)
	f.gw.pick = always(ann.ID)

	p, err := f.svc.ProposeForJob(f.ctx, f.company, job.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Interrupts)
	assert.Equal(t, current.ID, *p.Interrupts)
	assert.True(t, p.Feasible)
}

func TestProposeForJobRejectsNonPending(t *testing.T) {
	f := newFixture(t, nil)
	_, current := f.busy("Ann", domain.StatusAssigned)

	_, err := f.svc.ProposeForJob(f.ctx, f.company, current.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.ProposeForJob(f.ctx, uuid.New(), current.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestProposeBatchNeverProposesSameIdleTechnicianTwice(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	first := f.job("First", domain.PriorityHigh)
	second := f.job("Second", domain.PriorityHigh)
	f.gw.pick = always(ann.ID)

	batch, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, batch.Proposals, 2)

	require.NotNil(t, batch.Proposals[0].TechnicianID)
	assert.Equal(t, ann.ID, *batch.Proposals[0].TechnicianID)
	assert.Nil(t, batch.Proposals[1].TechnicianID)
	assert.Contains(t, batch.Proposals[1].Reasoning, "already proposed")

	// The second request sees Ann busy with the first job.
	require.Len(t, f.gw.requests, 2)
	seen := f.gw.requests[1].Technicians[0]
	assert.False(t, seen.IsAvailable)
	require.NotNil(t, seen.CurrentJobID)
	assert.Equal(t, first.ID, *seen.CurrentJobID)

	// The returned snapshot is the pool before the pass.
	require.Len(t, batch.Snapshot, 1)
	assert.True(t, batch.Snapshot[0].IsAvailable)

	// Nothing was written.
	stored, err := f.store.GetTechnician(f.ctx, f.company, ann.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)
}

func TestConfirmBatchHonoursOnlyValidDecisions(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	bob, _ := f.busy("Bob", domain.StatusInProgress)
	j1 := f.job("One", domain.PriorityMedium)
	j2 := f.job("Two", domain.PriorityMedium)
	j3 := f.job("Three", domain.PriorityMedium)
	j4 := f.job("Four", domain.PriorityMedium)
	f.gw.pick = always(ann.ID)

	batch, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{j1.ID, j2.ID, j3.ID, j4.ID})
	require.NoError(t, err)

	decisions := []Decision{
		{JobID: j1.ID, TechnicianID: &ann.ID, Suggested: &ann.ID},
		{JobID: j2.ID, TechnicianID: &ann.ID},
		{JobID: j3.ID, TechnicianID: &bob.ID},
		{JobID: j4.ID},
	}
	res, err := f.svc.ConfirmBatch(f.ctx, f.company, decisions, batch.Snapshot)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{j1.ID}, res.Applied)
	reasons := map[uuid.UUID]string{}
	for _, s := range res.Skipped {
		reasons[s.JobID] = s.Reason
	}
	assert.Equal(t, SkipTechnicianReused, reasons[j2.ID])
	assert.Equal(t, SkipWasUnavailable, reasons[j3.ID])
	assert.Equal(t, SkipDeselected, reasons[j4.ID])

	got, err := f.store.GetJob(f.ctx, f.company, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, got.Status)
	for _, id := range []uuid.UUID{j2.ID, j3.ID, j4.ID} {
		left, err := f.store.GetJob(f.ctx, f.company, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, left.Status)
	}

	feedback := f.store.Feedback()
	require.Len(t, feedback, 3)
	assert.True(t, feedback[0].Accepted)
	assert.Equal(t, []string{"fleet.job.assigned"}, f.bus.Names())
	f.assertInvariants(t)
}

func TestConfirmBatchSkipsTechnicianTakenSincePlanning(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	j1 := f.job("One", domain.PriorityMedium)
	other := f.job("Other", domain.PriorityMedium)
	f.gw.pick = always(ann.ID)

	batch, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{j1.ID})
	require.NoError(t, err)

	_, err = f.svc.ConfirmProposal(f.ctx, f.company, other.ID, ann.ID, false)
	require.NoError(t, err)

	res, err := f.svc.ConfirmBatch(f.ctx, f.company, []Decision{{JobID: j1.ID, TechnicianID: &ann.ID}}, batch.Snapshot)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipNowUnavailable, res.Skipped[0].Reason)
	f.assertInvariants(t)
}

func TestConfirmBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	ann := f.tech("Ann")
	bob := f.tech("Bob")
	j1 := f.job("One", domain.PriorityMedium)
	j2 := f.job("Two", domain.PriorityMedium)
	f.gw.pick = func(req ports.AllocationRequest) (ports.AllocationSuggestion, error) {
		return ports.AllocationSuggestion{}, nil
	}
	batch, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{j1.ID, j2.ID})
	require.NoError(t, err)

	f.store.FailNthWrite(3, errors.New("disk on fire"))
	_, err = f.svc.ConfirmBatch(f.ctx, f.company, []Decision{
		{JobID: j1.ID, TechnicianID: &ann.ID},
		{JobID: j2.ID, TechnicianID: &bob.ID},
	}, batch.Snapshot)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	for _, id := range []uuid.UUID{j1.ID, j2.ID} {
		j, err := f.store.GetJob(f.ctx, f.company, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, j.Status)
	}
	assert.Empty(t, f.store.Feedback())
	assert.Empty(t, f.bus.Names())
}

func TestConfirmProposalRequiresInterruptionConfirmation(t *testing.T) {
	f := newFixture(t, nil)
	ann, current := f.busy("Ann", domain.StatusEnRoute)
	urgent := f.job("Gas leak", domain.PriorityHigh)

	_, err := f.svc.ConfirmProposal(f.ctx, f.company, urgent.ID, ann.ID, false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Empty(t, f.store.Feedback())

	res, err := f.svc.ConfirmProposal(f.ctx, f.company, urgent.ID, ann.ID, true)
	require.NoError(t, err)
	require.NotNil(t, res.Interrupted)
	assert.Equal(t, current.ID, res.Interrupted.ID)
	assert.Equal(t, domain.StatusPending, res.Interrupted.Status)

	feedback := f.store.Feedback()
	require.Len(t, feedback, 1)
	assert.False(t, feedback[0].Accepted)
	require.NotNil(t, feedback[0].ChosenTechnicianID)
	assert.Equal(t, ann.ID, *feedback[0].ChosenTechnicianID)
	f.assertInvariants(t)
}

func TestDetectProactiveCandidates(t *testing.T) {
	company := uuid.New()
	mk := func(p domain.Priority, s domain.JobStatus) domain.Job {
		return domain.Job{ID: uuid.New(), CompanyID: company, Priority: p, Status: s}
	}
	old := mk(domain.PriorityHigh, domain.StatusPending)
	fresh := mk(domain.PriorityHigh, domain.StatusPending)
	low := mk(domain.PriorityLow, domain.StatusPending)
	draft := mk(domain.PriorityHigh, domain.StatusDraft)

	got := DetectProactiveCandidates([]domain.Job{old}, []domain.Job{old, fresh, low, draft})
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	assert.Empty(t, DetectProactiveCandidates([]domain.Job{old, fresh}, []domain.Job{old, fresh}))
	assert.Len(t, DetectProactiveCandidates(nil, []domain.Job{old, fresh}), 2)
}

func TestRunProactiveCachesAndDecline(t *testing.T) {
	cache, _ := newRedisCache(t)
	f := newFixture(t, cache)
	ann := f.tech("Ann")
	urgent := f.job("Burst pipe", domain.PriorityHigh)
	f.gw.pick = always(ann.ID)

	made := f.svc.RunProactive(f.ctx, f.company, nil, []domain.Job{urgent})
	require.Len(t, made, 1)
	assert.Equal(t, []string{"fleet.proposal.ready"}, f.bus.Names())

	open, err := f.svc.ListProposals(f.ctx, f.company)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, urgent.ID, open[0].JobID)

	require.NoError(t, f.svc.DeclineProposal(f.ctx, f.company, urgent.ID))
	open, err = f.svc.ListProposals(f.ctx, f.company)
	require.NoError(t, err)
	assert.Empty(t, open)

	feedback := f.store.Feedback()
	require.Len(t, feedback, 1)
	assert.Nil(t, feedback[0].ChosenTechnicianID)
	assert.False(t, feedback[0].Accepted)

	err = f.svc.DeclineProposal(f.ctx, f.company, urgent.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConfirmCachedBatch(t *testing.T) {
	cache, mr := newRedisCache(t)
	f := newFixture(t, cache)
	ann := f.tech("Ann")
	j1 := f.job("One", domain.PriorityMedium)
	f.gw.pick = always(ann.ID)

	batch, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{j1.ID})
	require.NoError(t, err)

	res, err := f.svc.ConfirmCachedBatch(f.ctx, f.company, batch.BatchID, []Decision{{JobID: j1.ID, TechnicianID: &ann.ID}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{j1.ID}, res.Applied)
	feedback := f.store.Feedback()
	require.Len(t, feedback, 1)
	assert.True(t, feedback[0].Accepted)

	// Confirmed batches are gone, and so are expired ones.
	_, err = f.svc.ConfirmCachedBatch(f.ctx, f.company, batch.BatchID, nil)
	assert.True(t, apperr.Is(err, apperr.KindGone))

	j2 := f.job("Two", domain.PriorityMedium)
	again, err := f.svc.ProposeBatch(f.ctx, f.company, []uuid.UUID{j2.ID})
	require.NoError(t, err)
	mr.FastForward(31 * time.Minute)
	_, err = f.svc.ConfirmCachedBatch(f.ctx, f.company, again.BatchID, nil)
	assert.True(t, apperr.Is(err, apperr.KindGone))
}

func TestRedisProposalCacheExpires(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	company := uuid.New()
	p := Proposal{JobID: uuid.New(), Reasoning: "closest"}

	require.NoError(t, cache.PutProposal(ctx, company, p))
	got, ok, err := cache.GetProposal(ctx, company, p.JobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "closest", got.Reasoning)

	other, err := cache.ListProposals(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)

	mr.FastForward(31 * time.Minute)
	_, ok, err = cache.GetProposal(ctx, company, p.JobID)
	require.NoError(t, err)
	assert.False(t, ok)
	listed, err := cache.ListProposals(ctx, company)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
