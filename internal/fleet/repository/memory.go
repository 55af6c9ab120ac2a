package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and the local CLI.
// Commit stages every write on copies of the collections and swaps them in
// only when all writes succeed.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]domain.Job
	techs     map[uuid.UUID]domain.Technician
	contracts map[uuid.UUID]domain.Contract
	requests  map[uuid.UUID]domain.ProfileChangeRequest
	feedback  []domain.DispatcherFeedback

	now   func() time.Time
	fault *writeFault
	reads error
}

type writeFault struct {
	nth int
	err error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[uuid.UUID]domain.Job),
		techs:     make(map[uuid.UUID]domain.Technician),
		contracts: make(map[uuid.UUID]domain.Contract),
		requests:  make(map[uuid.UUID]domain.ProfileChangeRequest),
		now:       time.Now,
	}
}

// SetClock overrides the timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailNthWrite makes the next Commit fail on its nth write (1-based).
// The fault fires once.
func (m *MemoryStore) FailNthWrite(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = &writeFault{nth: n, err: err}
}

// FailReads makes every read return err until cleared with nil.
func (m *MemoryStore) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = err
}

// SeedJob stores j directly, bypassing version checks.
func (m *MemoryStore) SeedJob(j domain.Job) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.Version == 0 {
		j.Version = 1
	}
	m.jobs[j.ID] = j.Clone()
	return j
}

// SeedTechnician stores t directly.
func (m *MemoryStore) SeedTechnician(t domain.Technician) domain.Technician {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Version == 0 {
		t.Version = 1
	}
	m.techs[t.ID] = t.Clone()
	return t
}

// SeedContract stores c directly.
func (m *MemoryStore) SeedContract(c domain.Contract) domain.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Version == 0 {
		c.Version = 1
	}
	m.contracts[c.ID] = c.Clone()
	return c
}

// Feedback returns the appended feedback entries.
func (m *MemoryStore) Feedback() []domain.DispatcherFeedback {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.feedback)
}

// GetJob implements JobReader.
func (m *MemoryStore) GetJob(_ context.Context, companyID, id uuid.UUID) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return domain.Job{}, m.reads
	}
	j, ok := m.jobs[id]
	if !ok || j.CompanyID != companyID {
		return domain.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

// ListJobs implements JobReader. Results are ordered by creation time.
func (m *MemoryStore) ListJobs(_ context.Context, companyID uuid.UUID, filter JobFilter) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return nil, m.reads
	}
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if j.CompanyID == companyID && filter.Matches(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FindJobByToken implements TokenLookup.
func (m *MemoryStore) FindJobByToken(_ context.Context, kind domain.TokenKind, token string) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return domain.Job{}, m.reads
	}
	for _, j := range m.jobs {
		if t := j.Token(kind); t != nil && t.Value == token {
			return j.Clone(), nil
		}
	}
	return domain.Job{}, ErrNotFound
}

// GetTechnician implements TechnicianReader.
func (m *MemoryStore) GetTechnician(_ context.Context, companyID, id uuid.UUID) (domain.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return domain.Technician{}, m.reads
	}
	t, ok := m.techs[id]
	if !ok || t.CompanyID != companyID {
		return domain.Technician{}, ErrNotFound
	}
	return t.Clone(), nil
}

// ListTechnicians implements TechnicianReader. Results are ordered by name.
func (m *MemoryStore) ListTechnicians(_ context.Context, companyID uuid.UUID) ([]domain.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return nil, m.reads
	}
	out := make([]domain.Technician, 0)
	for _, t := range m.techs {
		if t.CompanyID == companyID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out, nil
}

// GetContract implements ContractReader.
func (m *MemoryStore) GetContract(_ context.Context, companyID, id uuid.UUID) (domain.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return domain.Contract{}, m.reads
	}
	c, ok := m.contracts[id]
	if !ok || c.CompanyID != companyID {
		return domain.Contract{}, ErrNotFound
	}
	return c.Clone(), nil
}

// ListActiveContracts implements ContractReader.
func (m *MemoryStore) ListActiveContracts(_ context.Context, companyID uuid.UUID) ([]domain.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return nil, m.reads
	}
	out := make([]domain.Contract, 0)
	for _, c := range m.contracts {
		if c.CompanyID == companyID && c.IsActive {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID.String() < out[b].ID.String() })
	return out, nil
}

// GetChangeRequest implements ChangeRequestReader.
func (m *MemoryStore) GetChangeRequest(_ context.Context, companyID, id uuid.UUID) (domain.ProfileChangeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return domain.ProfileChangeRequest{}, m.reads
	}
	r, ok := m.requests[id]
	if !ok || r.CompanyID != companyID {
		return domain.ProfileChangeRequest{}, ErrNotFound
	}
	return r.Clone(), nil
}

// ListChangeRequests implements ChangeRequestReader. An empty status lists all.
func (m *MemoryStore) ListChangeRequests(_ context.Context, companyID uuid.UUID, status domain.ChangeRequestStatus) ([]domain.ProfileChangeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return nil, m.reads
	}
	out := make([]domain.ProfileChangeRequest, 0)
	for _, r := range m.requests {
		if r.CompanyID == companyID && (status == "" || r.Status == status) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// ListCompanies implements CompanyLister.
func (m *MemoryStore) ListCompanies(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reads != nil {
		return nil, m.reads
	}
	seen := make(map[uuid.UUID]bool)
	for _, t := range m.techs {
		seen[t.CompanyID] = true
	}
	for _, c := range m.contracts {
		seen[c.CompanyID] = true
	}
	for _, j := range m.jobs {
		seen[j.CompanyID] = true
	}
	out := slices.Collect(maps.Keys(seen))
	sort.Slice(out, func(a, b int) bool { return out[a].String() < out[b].String() })
	return out, nil
}

// Commit implements Committer.
func (m *MemoryStore) Commit(_ context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fault := m.fault
	m.fault = nil

	jobs := maps.Clone(m.jobs)
	techs := maps.Clone(m.techs)
	contracts := maps.Clone(m.contracts)
	requests := maps.Clone(m.requests)
	feedback := slices.Clone(m.feedback)

	stamped := b.stampAll(m.now())
	for i, o := range stamped {
		if fault != nil && fault.nth == i+1 {
			return errors.Wrapf(fault.err, "write %d of %d", i+1, len(stamped))
		}
		var err error
		switch o.collection {
		case CollectionJobs:
			err = applyOp(jobs, o, o.job, func(j domain.Job) (uuid.UUID, int64) { return j.CompanyID, j.Version })
		case CollectionTechnicians:
			err = applyOp(techs, o, o.tech, func(t domain.Technician) (uuid.UUID, int64) { return t.CompanyID, t.Version })
		case CollectionContracts:
			err = applyOp(contracts, o, o.contract, func(c domain.Contract) (uuid.UUID, int64) { return c.CompanyID, c.Version })
		case CollectionChangeRequests:
			err = applyOp(requests, o, o.request, func(r domain.ProfileChangeRequest) (uuid.UUID, int64) { return r.CompanyID, r.Version })
		case CollectionFeedback:
			feedback = append(feedback, *o.feedback)
		default:
			err = errors.Newf("unknown collection %q", o.collection)
		}
		if err != nil {
			return err
		}
	}

	m.jobs, m.techs, m.contracts, m.requests, m.feedback = jobs, techs, contracts, requests, feedback
	b.settle(stamped)
	return nil
}

func applyOp[T any](coll map[uuid.UUID]T, o op, doc *T, meta func(T) (uuid.UUID, int64)) error {
	existing, exists := coll[o.id]
	if o.expected == 0 {
		if exists || o.kind == opDelete {
			return errors.Wrapf(ErrVersionConflict, "%s/%s already exists", o.collection, o.id)
		}
	} else {
		if !exists {
			return errors.Wrapf(ErrVersionConflict, "%s/%s no longer exists", o.collection, o.id)
		}
		company, version := meta(existing)
		if company != o.companyID || version != o.expected {
			return errors.Wrapf(ErrVersionConflict, "%s/%s at version %d, expected %d", o.collection, o.id, version, o.expected)
		}
	}

	if o.kind == opDelete {
		delete(coll, o.id)
		return nil
	}
	coll[o.id] = *doc
	return nil
}
