package scheduler

import (
	"context"
	"time"

	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/domain"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// ProactiveRunner proposes technicians for newly observed urgent jobs.
type ProactiveRunner interface {
	RunProactive(ctx context.Context, companyID uuid.UUID, previous, current []domain.Job) []assignment.Proposal
}

// JobSource lists pending jobs per company.
type JobSource interface {
	repository.JobReader
	repository.CompanyLister
}

// ChangeStream yields committed change sets.
type ChangeStream interface {
	Next(ctx context.Context) (repository.ChangeSet, error)
	Close() error
}

// ProactiveWatcher follows the change feed and runs proactive proposals
// whenever a company's jobs change. It owns the last pending snapshot per
// company, so only jobs that newly enter the pending set are proposed.
type ProactiveWatcher struct {
	listen  func(ctx context.Context) (ChangeStream, error)
	jobs    JobSource
	runner  ProactiveRunner
	retry   time.Duration
	pending map[uuid.UUID][]domain.Job
	log     *logger.Logger
}

func NewProactiveWatcher(feed *repository.ChangeFeed, jobs JobSource, runner ProactiveRunner, log *logger.Logger) *ProactiveWatcher {
	return &ProactiveWatcher{
		listen: func(ctx context.Context) (ChangeStream, error) {
			sub, err := feed.Listen(ctx)
			if err != nil {
				return nil, err
			}
			return sub, nil
		},
		jobs:    jobs,
		runner:  runner,
		retry:   time.Second,
		pending: make(map[uuid.UUID][]domain.Job),
		log:     log,
	}
}

// Run blocks until ctx ends. Jobs already pending at startup form the
// baseline and are not proposed.
func (w *ProactiveWatcher) Run(ctx context.Context) error {
	// Subscribe before the baseline read so no change falls in between.
	stream, err := w.listen(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	if err := w.baseline(ctx); err != nil {
		return err
	}
	w.log.Info("proactive watcher started", "companies", len(w.pending))

	for {
		set, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("change feed receive failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retry):
			}
			continue
		}
		if !set.HasCollection(repository.CollectionJobs) {
			continue
		}
		w.observe(ctx, set.CompanyID)
	}
}

func (w *ProactiveWatcher) baseline(ctx context.Context) error {
	companies, err := w.jobs.ListCompanies(ctx)
	if err != nil {
		return err
	}
	for _, id := range companies {
		current, err := w.listPending(ctx, id)
		if err != nil {
			return err
		}
		w.pending[id] = current
	}
	return nil
}

func (w *ProactiveWatcher) observe(ctx context.Context, companyID uuid.UUID) {
	current, err := w.listPending(ctx, companyID)
	if err != nil {
		w.log.DocumentStoreError("proactive.listPending", err)
		return
	}
	proposals := w.runner.RunProactive(ctx, companyID, w.pending[companyID], current)
	w.pending[companyID] = current
	if len(proposals) > 0 {
		w.log.Info("proactive proposals ready", "company_id", companyID.String(), "count", len(proposals))
	}
}

func (w *ProactiveWatcher) listPending(ctx context.Context, companyID uuid.UUID) ([]domain.Job, error) {
	return w.jobs.ListJobs(ctx, companyID, repository.JobFilter{Statuses: []domain.JobStatus{domain.StatusPending}})
}
