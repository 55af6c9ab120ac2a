package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusPending, StatusAssigned, true},
		{StatusAssigned, StatusEnRoute, true},
		{StatusEnRoute, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusPendingInvoice, true},
		{StatusPendingInvoice, StatusFinished, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusEnRoute, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusEnRoute, true},
		{StatusEnRoute, StatusAssigned, true},
		{StatusInProgress, StatusPending, true},
		{StatusPending, StatusCancelled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusFinished, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusDraft, StatusAssigned, false},
		{StatusInProgress, StatusAssigned, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsReset(t *testing.T) {
	assert.True(t, IsReset(StatusInProgress, StatusEnRoute))
	assert.True(t, IsReset(StatusEnRoute, StatusAssigned))
	assert.False(t, IsReset(StatusAssigned, StatusEnRoute))
}

func TestCheckJobAssignmentInvariant(t *testing.T) {
	tech := uuid.New()
	for _, s := range AllStatuses {
		j := Job{ID: uuid.New(), Status: s}
		if s.RequiresTechnician() {
			j.AssignedTechnicianID = &tech
		}
		assert.Emptyf(t, CheckJob(j), "status %s with correct technician field", s)

		flipped := j
		if s.RequiresTechnician() {
			flipped.AssignedTechnicianID = nil
		} else {
			flipped.AssignedTechnicianID = &tech
		}
		assert.NotEmptyf(t, CheckJob(flipped), "status %s with wrong technician field", s)
	}
}

func TestCheckJobRouteOrderOnlyWhileRouted(t *testing.T) {
	tech := uuid.New()
	j := Job{ID: uuid.New(), Status: StatusInProgress, AssignedTechnicianID: &tech, RouteOrder: Ptr(0)}
	assert.Len(t, CheckJob(j), 1)

	j.Status = StatusEnRoute
	assert.Empty(t, CheckJob(j))
}

func TestCheckTechnicianAvailability(t *testing.T) {
	job := uuid.New()
	assert.NotEmpty(t, CheckTechnician(Technician{ID: uuid.New(), IsAvailable: true, CurrentJobID: &job}))
	assert.Empty(t, CheckTechnician(Technician{ID: uuid.New(), IsAvailable: false}))
}

func TestCheckCurrentJobExclusive(t *testing.T) {
	job := uuid.New()
	a := Technician{ID: uuid.New()}
	a.TakeJob(job)
	b := Technician{ID: uuid.New()}
	b.TakeJob(job)

	violations := CheckCurrentJobExclusive([]Technician{a, b})
	require.Len(t, violations, 1)
	assert.Equal(t, b.ID, violations[0].DocumentID)
}

func TestBreaks(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var j Job

	require.ErrorIs(t, j.EndBreak(start), ErrNoOpenBreak)
	require.NoError(t, j.StartBreak(start))
	require.ErrorIs(t, j.StartBreak(start.Add(time.Minute)), ErrBreakAlreadyOpen)
	require.NoError(t, j.EndBreak(start.Add(15*time.Minute)))
	require.NoError(t, j.StartBreak(start.Add(time.Hour)))

	assert.Equal(t, 20*time.Minute, j.BreakTime(start.Add(time.Hour+5*time.Minute)))
	assert.Empty(t, CheckJob(Job{ID: j.ID, Status: StatusDraft, Breaks: j.Breaks}))
}

func TestCapabilityTokenValidity(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok, err := NewCapabilityToken(now, time.Hour)
	require.NoError(t, err)

	assert.True(t, tok.Valid(tok.Value, now.Add(30*time.Minute)))
	assert.False(t, tok.Valid("other", now))
	assert.False(t, tok.Valid(tok.Value, now.Add(time.Hour)), "expiry instant is exclusive")

	expired := CapabilityToken{Value: tok.Value, ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.Valid(tok.Value, now), "past expiry rejects an exact match")

	var missing *CapabilityToken
	assert.False(t, missing.Valid("anything", now))
}

func TestFrequencyAdvance(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	cases := map[Frequency]time.Time{
		FrequencyWeekly:       time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		FrequencyBiWeekly:     time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC),
		FrequencyMonthly:      time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		FrequencyQuarterly:    time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		FrequencySemiAnnually: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		FrequencyAnnually:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for f, want := range cases {
		got, err := f.Advance(start)
		require.NoError(t, err)
		assert.Truef(t, want.Equal(got), "%s: want %s got %s", f, want, got)
	}

	_, err := Frequency("Fortnightly-ish").Advance(start)
	var unknown ErrUnknownFrequency
	require.ErrorAs(t, err, &unknown)
}

func TestComputeProfit(t *testing.T) {
	f := Financials{QuotedValue: 500, ExpectedPartsCost: 100, LaborHours: 2, LaborRate: 50}
	assert.InDelta(t, 300, f.ComputeProfit(), 0.001)

	f.ActualPartsCost = Ptr(150.0)
	assert.InDelta(t, 250, f.ComputeProfit(), 0.001)
}

func TestProfileChangesApplyOnlySetFields(t *testing.T) {
	tech := Technician{Name: "Ann", Email: "ann@example.com", Skills: []string{"hvac"}}
	skills := []string{"plumbing", "electrical"}
	ProfileChanges{Name: Ptr("Ann B."), Skills: &skills}.ApplyTo(&tech)

	assert.Equal(t, "Ann B.", tech.Name)
	assert.Equal(t, "ann@example.com", tech.Email)
	assert.Equal(t, []string{"plumbing", "electrical"}, tech.Skills)

	skills[0] = "mutated"
	assert.Equal(t, "plumbing", tech.Skills[0], "applied skills must not alias the request")
}

func TestJobCloneIsDeep(t *testing.T) {
	tech := uuid.New()
	j := Job{AssignedTechnicianID: &tech, RouteOrder: Ptr(2), RequiredSkills: []string{"a"}}
	c := j.Clone()
	*c.RouteOrder = 5
	c.RequiredSkills[0] = "b"
	*c.AssignedTechnicianID = uuid.New()

	assert.Equal(t, 2, *j.RouteOrder)
	assert.Equal(t, "a", j.RequiredSkills[0])
	assert.Equal(t, tech, *j.AssignedTechnicianID)
}

func TestContractCursorAndNewJob(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	c := Contract{ID: uuid.New(), CompanyID: uuid.New(), StartDate: start, Template: JobTemplate{Title: "Service"}}
	assert.True(t, c.Cursor().Equal(start))

	until := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	c.LastGeneratedUntil = &until
	assert.True(t, c.Cursor().Equal(time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC)))

	job := c.NewJob(uuid.New(), start, start)
	assert.Equal(t, StatusPending, job.Status)
	assert.Nil(t, job.AssignedTechnicianID)
	assert.Equal(t, PriorityMedium, job.Priority)
	require.Len(t, job.Notes, 1)
	assert.Contains(t, job.Notes[0].Text, c.ID.String())
	assert.Empty(t, CheckJob(job))
}
