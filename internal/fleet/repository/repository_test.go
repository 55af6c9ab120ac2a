package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPair(t *testing.T, store *MemoryStore, company uuid.UUID) (domain.Job, domain.Technician) {
	t.Helper()
	job := store.SeedJob(domain.Job{ID: uuid.New(), CompanyID: company, Title: "Boiler", Status: domain.StatusPending, Priority: domain.PriorityLow})
	tech := store.SeedTechnician(domain.Technician{ID: uuid.New(), CompanyID: company, Name: "Ann", IsAvailable: true})
	return job, tech
}

func TestMemoryCommitBumpsVersionAndStamps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	company := uuid.New()

	job := domain.Job{ID: uuid.New(), CompanyID: company, Status: domain.StatusDraft}
	b := NewBatch()
	b.PutJob(&job)
	require.NoError(t, store.Commit(ctx, b))

	assert.EqualValues(t, 1, job.Version)
	assert.True(t, job.CreatedAt.Equal(now))

	stored, err := store.GetJob(ctx, company, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
	assert.True(t, stored.UpdatedAt.Equal(now))
}

func TestMemoryCommitRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	company := uuid.New()
	job, tech := seedPair(t, store, company)

	first := job
	first.Title = "first"
	b := NewBatch()
	b.PutJob(&first)
	require.NoError(t, store.Commit(ctx, b))

	stale := job
	stale.Title = "second"
	staleTech := tech
	staleTech.IsAvailable = false
	b = NewBatch()
	b.PutTechnician(&staleTech)
	b.PutJob(&stale)
	err := store.Commit(ctx, b)
	require.ErrorIs(t, err, ErrVersionConflict)

	gotTech, err := store.GetTechnician(ctx, company, tech.ID)
	require.NoError(t, err)
	assert.True(t, gotTech.IsAvailable, "no write of a rejected batch may land")
	gotJob, err := store.GetJob(ctx, company, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", gotJob.Title)
}

func TestMemoryCommitFaultLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	company := uuid.New()
	job, tech := seedPair(t, store, company)

	boom := errors.New("disk full")
	store.FailNthWrite(2, boom)

	tech.IsAvailable = false
	job.Title = "changed"
	b := NewBatch()
	b.PutTechnician(&tech)
	b.PutJob(&job)
	require.ErrorIs(t, store.Commit(ctx, b), boom)

	gotTech, _ := store.GetTechnician(ctx, company, tech.ID)
	gotJob, _ := store.GetJob(ctx, company, job.ID)
	assert.True(t, gotTech.IsAvailable)
	assert.Equal(t, "Boiler", gotJob.Title)
	assert.EqualValues(t, 1, tech.Version, "caller documents are not settled on failure")

	// The fault fires once.
	require.NoError(t, store.Commit(ctx, b))
}

func TestMemoryReadsAreCompanyScoped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job, _ := seedPair(t, store, uuid.New())

	_, err := store.GetJob(ctx, uuid.New(), job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteAndCreateConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	company := uuid.New()
	job, _ := seedPair(t, store, company)

	dup := domain.Job{ID: job.ID, CompanyID: company}
	b := NewBatch()
	b.PutJob(&dup)
	assert.ErrorIs(t, store.Commit(ctx, b), ErrVersionConflict)

	b = NewBatch()
	b.DeleteJob(job)
	require.NoError(t, store.Commit(ctx, b))
	_, err := store.GetJob(ctx, company, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobFilter(t *testing.T) {
	tech := uuid.New()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	j := domain.Job{Status: domain.StatusAssigned, AssignedTechnicianID: &tech, ScheduledTime: &at}

	assert.True(t, JobFilter{}.Matches(j))
	assert.True(t, JobFilter{Statuses: []domain.JobStatus{domain.StatusAssigned, domain.StatusEnRoute}}.Matches(j))
	assert.False(t, JobFilter{Statuses: []domain.JobStatus{domain.StatusPending}}.Matches(j))
	assert.True(t, JobFilter{TechnicianID: &tech}.Matches(j))
	other := uuid.New()
	assert.False(t, JobFilter{TechnicianID: &other}.Matches(j))
	later := at.Add(time.Hour)
	assert.False(t, JobFilter{ScheduledFrom: &later}.Matches(j))
	assert.True(t, JobFilter{ScheduledUntil: &later}.Matches(j))
}

func TestListJobsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	company := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		j := store.SeedJob(domain.Job{ID: uuid.New(), CompanyID: company, Status: domain.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		ids = append(ids, j.ID)
	}

	jobs, err := store.ListJobs(ctx, company, JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[0], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
}

func TestChangeFeedPublishesCommittedChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := miniredis.RunT(t)
	opts, err := redis.ParseURL("redis://" + srv.Addr())
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	feed := NewChangeFeed(rdb)
	sub, err := feed.Listen(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	mem := NewMemoryStore()
	store := WithChangeFeed(mem, feed, nil)
	company := uuid.New()
	job := domain.Job{ID: uuid.New(), CompanyID: company, Status: domain.StatusDraft}
	b := NewBatch()
	b.PutJob(&job)
	require.NoError(t, store.Commit(ctx, b))

	set, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, company, set.CompanyID)
	require.Len(t, set.Changes, 1)
	assert.Equal(t, job.ID, set.Changes[0].ID)
	assert.True(t, set.HasCollection(CollectionJobs))
}
