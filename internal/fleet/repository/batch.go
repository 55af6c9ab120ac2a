package repository

import (
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/google/uuid"
)

// Collection names. They double as Postgres table names.
const (
	CollectionJobs           = "jobs"
	CollectionTechnicians    = "technicians"
	CollectionContracts      = "contracts"
	CollectionChangeRequests = "profile_change_requests"
	CollectionFeedback       = "dispatcher_feedback"
)

type opKind int

const (
	opPut opKind = iota
	opDelete
	opAppend
)

// op is one write in a batch. Exactly one document pointer is set for puts.
type op struct {
	kind       opKind
	collection string
	id         uuid.UUID
	companyID  uuid.UUID
	// expected is the version read before the write; 0 means "must not exist".
	expected int64

	job      *domain.Job
	tech     *domain.Technician
	contract *domain.Contract
	request  *domain.ProfileChangeRequest
	feedback *domain.DispatcherFeedback
}

// Batch collects writes that commit together or not at all. Puts take
// pointers: on a successful commit the store writes the new Version and
// audit timestamps back into them.
type Batch struct {
	ops   []op
	index map[string]int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{index: make(map[string]int)}
}

func (b *Batch) add(o op) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	key := o.collection + "/" + o.id.String()
	if i, ok := b.index[key]; ok && o.kind != opAppend {
		// A second write to the same document replaces the first but keeps
		// the version that was originally read.
		o.expected = b.ops[i].expected
		b.ops[i] = o
		return
	}
	b.index[key] = len(b.ops)
	b.ops = append(b.ops, o)
}

// PutJob creates (Version 0) or updates the job.
func (b *Batch) PutJob(j *domain.Job) {
	b.add(op{kind: opPut, collection: CollectionJobs, id: j.ID, companyID: j.CompanyID, expected: j.Version, job: j})
}

// DeleteJob removes the job.
func (b *Batch) DeleteJob(j domain.Job) {
	b.add(op{kind: opDelete, collection: CollectionJobs, id: j.ID, companyID: j.CompanyID, expected: j.Version})
}

// PutTechnician creates or updates the technician.
func (b *Batch) PutTechnician(t *domain.Technician) {
	b.add(op{kind: opPut, collection: CollectionTechnicians, id: t.ID, companyID: t.CompanyID, expected: t.Version, tech: t})
}

// PutContract creates or updates the contract.
func (b *Batch) PutContract(c *domain.Contract) {
	b.add(op{kind: opPut, collection: CollectionContracts, id: c.ID, companyID: c.CompanyID, expected: c.Version, contract: c})
}

// PutChangeRequest creates or updates the profile change request.
func (b *Batch) PutChangeRequest(r *domain.ProfileChangeRequest) {
	b.add(op{kind: opPut, collection: CollectionChangeRequests, id: r.ID, companyID: r.CompanyID, expected: r.Version, request: r})
}

// AppendFeedback adds an append-only feedback entry.
func (b *Batch) AppendFeedback(f domain.DispatcherFeedback) {
	entry := f
	b.add(op{kind: opAppend, collection: CollectionFeedback, id: f.ID, companyID: f.CompanyID, feedback: &entry})
}

// Len is the number of writes in the batch.
func (b *Batch) Len() int { return len(b.ops) }

// Change identifies one document touched by a committed batch.
type Change struct {
	Collection string    `json:"collection"`
	CompanyID  uuid.UUID `json:"companyId"`
	ID         uuid.UUID `json:"id"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// Changes lists the documents the batch writes.
func (b *Batch) Changes() []Change {
	out := make([]Change, 0, len(b.ops))
	for _, o := range b.ops {
		out = append(out, Change{Collection: o.collection, CompanyID: o.companyID, ID: o.id, Deleted: o.kind == opDelete})
	}
	return out
}

// stamp returns a copy of the op's document with the next version and audit
// timestamps applied. The caller's pointer is untouched until settle.
func (o op) stamp(now time.Time) op {
	next := o.expected + 1
	switch {
	case o.job != nil:
		j := o.job.Clone()
		j.Version = next
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		j.UpdatedAt = now
		o.job = &j
	case o.tech != nil:
		t := o.tech.Clone()
		t.Version = next
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		o.tech = &t
	case o.contract != nil:
		c := o.contract.Clone()
		c.Version = next
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		o.contract = &c
	case o.request != nil:
		r := o.request.Clone()
		r.Version = next
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		o.request = &r
	case o.feedback != nil:
		f := *o.feedback
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		o.feedback = &f
	}
	return o
}

// settle copies the stored version and timestamps back to the caller.
func (b *Batch) settle(stamped []op) {
	for i, s := range stamped {
		orig := b.ops[i]
		switch {
		case orig.job != nil:
			orig.job.Version, orig.job.CreatedAt, orig.job.UpdatedAt = s.job.Version, s.job.CreatedAt, s.job.UpdatedAt
		case orig.tech != nil:
			orig.tech.Version, orig.tech.CreatedAt, orig.tech.UpdatedAt = s.tech.Version, s.tech.CreatedAt, s.tech.UpdatedAt
		case orig.contract != nil:
			orig.contract.Version, orig.contract.CreatedAt, orig.contract.UpdatedAt = s.contract.Version, s.contract.CreatedAt, s.contract.UpdatedAt
		case orig.request != nil:
			orig.request.Version, orig.request.CreatedAt, orig.request.UpdatedAt = s.request.Version, s.request.CreatedAt, s.request.UpdatedAt
		}
	}
}

func (b *Batch) stampAll(now time.Time) []op {
	out := make([]op, len(b.ops))
	for i, o := range b.ops {
		out[i] = o.stamp(now)
	}
	return out
}
