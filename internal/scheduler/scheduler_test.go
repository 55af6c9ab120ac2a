package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/recurring"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runCall struct {
	companyID         uuid.UUID
	previous, current []domain.Job
}

type fakeRunner struct {
	calls chan runCall
}

func (r *fakeRunner) RunProactive(_ context.Context, companyID uuid.UUID, previous, current []domain.Job) []assignment.Proposal {
	r.calls <- runCall{companyID: companyID, previous: previous, current: current}
	return nil
}

type fakeStream struct {
	sets chan repository.ChangeSet
}

func (s *fakeStream) Next(ctx context.Context) (repository.ChangeSet, error) {
	select {
	case set := <-s.sets:
		return set, nil
	case <-ctx.Done():
		return repository.ChangeSet{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error { return nil }

func newTestWatcher(store *repository.MemoryStore, stream *fakeStream, runner *fakeRunner) *ProactiveWatcher {
	w := NewProactiveWatcher(nil, store, runner, logger.Nop())
	w.listen = func(context.Context) (ChangeStream, error) { return stream, nil }
	return w
}

func seedPending(store *repository.MemoryStore, company uuid.UUID, title string, p domain.Priority) domain.Job {
	return store.SeedJob(domain.Job{ID: uuid.New(), CompanyID: company, Title: title, Priority: p, Status: domain.StatusPending})
}

func TestWatcherProposesOnlyJobsAfterBaseline(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	company := uuid.New()
	seedPending(store, company, "old", domain.PriorityHigh)

	runner := &fakeRunner{calls: make(chan runCall, 1)}
	w := newTestWatcher(store, &fakeStream{}, runner)
	require.NoError(t, w.baseline(ctx))

	fresh := seedPending(store, company, "fresh", domain.PriorityHigh)
	seedPending(store, company, "routine", domain.PriorityLow)
	w.observe(ctx, company)

	call := <-runner.calls
	assert.Len(t, call.previous, 1)
	assert.Len(t, call.current, 3)
	candidates := assignment.DetectProactiveCandidates(call.previous, call.current)
	require.Len(t, candidates, 1)
	assert.Equal(t, fresh.ID, candidates[0].ID)

	// The snapshot advances, so the same job is not proposed twice.
	w.observe(ctx, company)
	call = <-runner.calls
	assert.Empty(t, assignment.DetectProactiveCandidates(call.previous, call.current))
}

func TestWatcherRunReactsToJobChangesOnly(t *testing.T) {
	store := repository.NewMemoryStore()
	company := uuid.New()
	stream := &fakeStream{sets: make(chan repository.ChangeSet, 2)}
	stream.sets <- repository.ChangeSet{CompanyID: company, Changes: []repository.Change{{Collection: repository.CollectionTechnicians}}}
	stream.sets <- repository.ChangeSet{CompanyID: company, Changes: []repository.Change{{Collection: repository.CollectionJobs}}}

	runner := &fakeRunner{calls: make(chan runCall, 2)}
	w := newTestWatcher(store, stream, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case call := <-runner.calls:
		assert.Equal(t, company, call.companyID)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not react to the job change")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, runner.calls)
}

type fakeRecurring struct {
	company uuid.UUID
	target  time.Time
	all     bool
	err     error
}

func (f *fakeRecurring) Generate(_ context.Context, companyID uuid.UUID, target time.Time) (recurring.GenerateResult, error) {
	f.company, f.target = companyID, target
	return recurring.GenerateResult{CompanyID: companyID, Target: target}, f.err
}

func (f *fakeRecurring) GenerateAll(_ context.Context, target time.Time) ([]recurring.GenerateResult, error) {
	f.all, f.target = true, target
	return nil, f.err
}

type fakeProposer struct {
	err error
}

func (f fakeProposer) ProposeForJob(context.Context, uuid.UUID, uuid.UUID) (assignment.Proposal, error) {
	return assignment.Proposal{}, f.err
}

func TestGenerateRecurringUsesPolicyHorizon(t *testing.T) {
	rec := &fakeRecurring{}
	w := newWorker(rec, fakeProposer{}, config.DefaultPolicy(), logger.Nop())
	w.now = func() time.Time { return time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC) }

	task, err := NewGenerateRecurringTask(GenerateRecurringPayload{})
	require.NoError(t, err)
	require.NoError(t, w.handleGenerateRecurring(context.Background(), task))
	assert.True(t, rec.all)
	assert.Equal(t, time.Date(2026, 5, 31, 22, 0, 0, 0, time.UTC), rec.target)

	company := uuid.New()
	task, err = NewGenerateRecurringTask(GenerateRecurringPayload{CompanyID: company.String(), Target: "2026-07-01"})
	require.NoError(t, err)
	require.NoError(t, w.handleGenerateRecurring(context.Background(), task))
	assert.Equal(t, company, rec.company)
	assert.Equal(t, "2026-07-01", rec.target.Format(time.DateOnly))
}

func TestTaskErrorsThatCannotSucceedSkipRetry(t *testing.T) {
	rec := &fakeRecurring{err: apperr.Validation("unknown frequency")}
	w := newWorker(rec, fakeProposer{err: apperr.NotFound("Job not found")}, config.DefaultPolicy(), logger.Nop())

	task, err := NewGenerateRecurringTask(GenerateRecurringPayload{CompanyID: uuid.NewString()})
	require.NoError(t, err)
	assert.ErrorIs(t, w.handleGenerateRecurring(context.Background(), task), asynq.SkipRetry)

	task, err = NewProposeJobTask(ProposeJobPayload{CompanyID: uuid.NewString(), JobID: uuid.NewString()})
	require.NoError(t, err)
	assert.ErrorIs(t, w.handleProposeJob(context.Background(), task), asynq.SkipRetry)

	bad := asynq.NewTask(TaskGenerateRecurring, []byte(`{"target":"tomorrow"}`))
	assert.ErrorIs(t, w.handleGenerateRecurring(context.Background(), bad), asynq.SkipRetry)
}

func TestUnavailableStoreIsRetried(t *testing.T) {
	w := newWorker(&fakeRecurring{}, fakeProposer{err: apperr.Unavailable(errors.New("connection reset"))}, config.DefaultPolicy(), logger.Nop())
	task, err := NewProposeJobTask(ProposeJobPayload{CompanyID: uuid.NewString(), JobID: uuid.NewString()})
	require.NoError(t, err)

	err = w.handleProposeJob(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
