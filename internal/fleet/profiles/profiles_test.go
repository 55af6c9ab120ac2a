package profiles

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch_backend/internal/events/eventstest"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/transport"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx     context.Context
	store   *repository.MemoryStore
	bus     *eventstest.Recorder
	svc     *Service
	company uuid.UUID
	tech    domain.Technician
}

func newFixture() *fixture {
	f := &fixture{
		ctx:     context.Background(),
		store:   repository.NewMemoryStore(),
		bus:     &eventstest.Recorder{},
		company: uuid.New(),
	}
	f.svc = New(f.store, f.bus, logger.Nop())
	f.svc.SetClock(func() time.Time { return time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC) })
	f.tech = f.store.SeedTechnician(domain.Technician{
		ID: uuid.New(), CompanyID: f.company, Name: "Ann Smith", Email: "ann@example.com",
		Skills: []string{"hvac"}, IsAvailable: true,
	})
	return f
}

func strp(s string) *string { return &s }

func (f *fixture) submit(t *testing.T, changes transport.ProfileChangesDTO) domain.ProfileChangeRequest {
	t.Helper()
	r, err := f.svc.Submit(f.ctx, f.company, transport.SubmitProfileChangeRequest{TechnicianID: f.tech.ID, Changes: changes})
	require.NoError(t, err)
	return r
}

func TestSubmitNormalisesAndStoresPending(t *testing.T) {
	f := newFixture()
	r := f.submit(t, transport.ProfileChangesDTO{Phone: strp("(650) 253-0000")})

	assert.Equal(t, domain.ChangeRequestPending, r.Status)
	require.NotNil(t, r.Requested.Phone)
	assert.Equal(t, "+16502530000", *r.Requested.Phone)
	assert.Nil(t, r.Requested.Name)

	pending, err := f.svc.ListPending(f.ctx, f.company)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Submit(f.ctx, f.company, transport.SubmitProfileChangeRequest{TechnicianID: f.tech.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Submit(f.ctx, f.company, transport.SubmitProfileChangeRequest{
		TechnicianID: f.tech.ID,
		Changes:      transport.ProfileChangesDTO{Phone: strp("12"), Email: strp("nope")},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Submit(f.ctx, uuid.New(), transport.SubmitProfileChangeRequest{
		TechnicianID: f.tech.ID,
		Changes:      transport.ProfileChangesDTO{Name: strp("Ann")},
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestApproveAppliesApprovedNotRequested(t *testing.T) {
	f := newFixture()
	r := f.submit(t, transport.ProfileChangesDTO{
		Name:   strp("Annie Smith"),
		Skills: &[]string{"hvac", "gas"},
	})

	skills := []string{"hvac"}
	approved := domain.ProfileChanges{Name: strp("Ann B. Smith"), Skills: &skills}
	got, tech, err := f.svc.Approve(f.ctx, f.company, r.ID, &approved, "kept skills")
	require.NoError(t, err)

	assert.Equal(t, domain.ChangeRequestApproved, got.Status)
	require.NotNil(t, got.ReviewedAt)
	assert.Equal(t, "kept skills", got.ReviewNotes)
	assert.Equal(t, "Ann B. Smith", tech.Name)
	assert.Equal(t, []string{"hvac"}, tech.Skills)

	stored, err := f.store.GetTechnician(f.ctx, f.company, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann B. Smith", stored.Name)
	assert.Equal(t, "ann@example.com", stored.Email)

	storedReq, err := f.store.GetChangeRequest(f.ctx, f.company, r.ID)
	require.NoError(t, err)
	require.NotNil(t, storedReq.Requested.Name)
	assert.Equal(t, "Annie Smith", *storedReq.Requested.Name)
	assert.Equal(t, []string{"fleet.profile_change.reviewed"}, f.bus.Names())

	_, _, err = f.svc.Approve(f.ctx, f.company, r.ID, nil, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestApproveAsRequested(t *testing.T) {
	f := newFixture()
	r := f.submit(t, transport.ProfileChangesDTO{Email: strp("ann.smith@example.com")})

	_, tech, err := f.svc.Approve(f.ctx, f.company, r.ID, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "ann.smith@example.com", tech.Email)
}

func TestApproveIsAllOrNothing(t *testing.T) {
	f := newFixture()
	r := f.submit(t, transport.ProfileChangesDTO{Name: strp("Annie")})

	f.store.FailNthWrite(2, errors.New("disk on fire"))
	_, _, err := f.svc.Approve(f.ctx, f.company, r.ID, nil, "")
	require.Error(t, err)

	stored, err := f.store.GetChangeRequest(f.ctx, f.company, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRequestPending, stored.Status)
	tech, err := f.store.GetTechnician(f.ctx, f.company, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", tech.Name)
	assert.Empty(t, f.bus.Names())
}

func TestRejectLeavesTechnicianAlone(t *testing.T) {
	f := newFixture()
	r := f.submit(t, transport.ProfileChangesDTO{Name: strp("Annie")})

	got, err := f.svc.Reject(f.ctx, f.company, r.ID, "<b>no</b> nicknames")
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRequestRejected, got.Status)
	assert.Equal(t, "no nicknames", got.ReviewNotes)

	tech, err := f.store.GetTechnician(f.ctx, f.company, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", tech.Name)

	pending, err := f.svc.ListPending(f.ctx, f.company)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.svc.Reject(f.ctx, f.company, r.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
