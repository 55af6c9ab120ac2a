// Package repository is the fleet document store: per-collection documents
// scoped by company, point reads, filtered queries and all-or-nothing batches
// guarded by per-document versions.
package repository

import (
	"context"
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document is missing or belongs to a
	// different company. Callers cannot tell the two apart.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned by Commit when any document in the batch
	// changed since it was read. Nothing in the batch is applied.
	ErrVersionConflict = errors.New("document changed concurrently")
)

// JobFilter narrows ListJobs. Zero values mean "no constraint".
type JobFilter struct {
	Statuses       []domain.JobStatus
	TechnicianID   *uuid.UUID
	ContractID     *uuid.UUID
	ScheduledFrom  *time.Time
	ScheduledUntil *time.Time
	Limit          int
}

// Matches reports whether j satisfies the filter.
func (f JobFilter) Matches(j domain.Job) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if j.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.TechnicianID != nil && (j.AssignedTechnicianID == nil || *j.AssignedTechnicianID != *f.TechnicianID) {
		return false
	}
	if f.ContractID != nil && (j.SourceContractID == nil || *j.SourceContractID != *f.ContractID) {
		return false
	}
	if f.ScheduledFrom != nil && (j.ScheduledTime == nil || j.ScheduledTime.Before(*f.ScheduledFrom)) {
		return false
	}
	if f.ScheduledUntil != nil && (j.ScheduledTime == nil || j.ScheduledTime.After(*f.ScheduledUntil)) {
		return false
	}
	return true
}

// JobReader provides read access to jobs.
type JobReader interface {
	GetJob(ctx context.Context, companyID, id uuid.UUID) (domain.Job, error)
	ListJobs(ctx context.Context, companyID uuid.UUID, filter JobFilter) ([]domain.Job, error)
}

// TechnicianReader provides read access to technicians.
type TechnicianReader interface {
	GetTechnician(ctx context.Context, companyID, id uuid.UUID) (domain.Technician, error)
	ListTechnicians(ctx context.Context, companyID uuid.UUID) ([]domain.Technician, error)
}

// ContractReader provides read access to service contracts.
type ContractReader interface {
	GetContract(ctx context.Context, companyID, id uuid.UUID) (domain.Contract, error)
	ListActiveContracts(ctx context.Context, companyID uuid.UUID) ([]domain.Contract, error)
}

// ChangeRequestReader provides read access to profile change requests.
type ChangeRequestReader interface {
	GetChangeRequest(ctx context.Context, companyID, id uuid.UUID) (domain.ProfileChangeRequest, error)
	ListChangeRequests(ctx context.Context, companyID uuid.UUID, status domain.ChangeRequestStatus) ([]domain.ProfileChangeRequest, error)
}

// CompanyLister enumerates tenants for background sweeps.
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]uuid.UUID, error)
}

// TokenLookup resolves a public capability token to its job.
type TokenLookup interface {
	FindJobByToken(ctx context.Context, kind domain.TokenKind, token string) (domain.Job, error)
}

// Committer applies a batch atomically.
type Committer interface {
	Commit(ctx context.Context, b *Batch) error
}

// Store is the full document store.
type Store interface {
	JobReader
	TechnicianReader
	ContractReader
	ChangeRequestReader
	CompanyLister
	TokenLookup
	Committer
}
