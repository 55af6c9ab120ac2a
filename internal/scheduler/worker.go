package scheduler

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/recurring"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// RecurringGenerator is the part of the recurring service the worker drives.
type RecurringGenerator interface {
	Generate(ctx context.Context, companyID uuid.UUID, target time.Time) (recurring.GenerateResult, error)
	GenerateAll(ctx context.Context, target time.Time) ([]recurring.GenerateResult, error)
}

// JobProposer is the part of the assignment service the worker drives.
type JobProposer interface {
	ProposeForJob(ctx context.Context, companyID, jobID uuid.UUID) (assignment.Proposal, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	recurring RecurringGenerator
	proposer  JobProposer
	policy    config.DispatchPolicy
	now       func() time.Time
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, recurringSvc RecurringGenerator, proposer JobProposer, policy config.DispatchPolicy, log *logger.Logger) (*Worker, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(recurringSvc, proposer, policy, log)
	w.server = server
	return w, nil
}

func newWorker(recurringSvc RecurringGenerator, proposer JobProposer, policy config.DispatchPolicy, log *logger.Logger) *Worker {
	w := &Worker{
		mux:       asynq.NewServeMux(),
		recurring: recurringSvc,
		proposer:  proposer,
		policy:    policy,
		now:       time.Now,
		log:       log,
	}
	w.mux.HandleFunc(TaskGenerateRecurring, w.handleGenerateRecurring)
	w.mux.HandleFunc(TaskProposeJob, w.handleProposeJob)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// target resolves the generation date: an explicit YYYY-MM-DD, or the
// policy horizon counted from today.
func (w *Worker) target(raw string) (time.Time, error) {
	if raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse target %q: %w", raw, err)
		}
		return t, nil
	}
	return w.now().UTC().AddDate(0, 0, w.policy.RecurringHorizonDays), nil
}

func (w *Worker) handleGenerateRecurring(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseGenerateRecurringPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	target, err := w.target(payload.Target)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if payload.CompanyID == "" {
		results, err := w.recurring.GenerateAll(ctx, target)
		created := 0
		for _, r := range results {
			created += r.JobsCreated
		}
		w.log.Info("recurring generation finished", "companies", len(results), "jobs_created", created, "target", target.Format(time.DateOnly))
		return retryable(err)
	}

	companyID, err := uuid.Parse(payload.CompanyID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	res, err := w.recurring.Generate(ctx, companyID, target)
	if err != nil {
		return retryable(err)
	}
	w.log.Info("recurring generation finished", "company_id", companyID.String(), "jobs_created", res.JobsCreated)
	return nil
}

func (w *Worker) handleProposeJob(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProposeJobPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	companyID, err := uuid.Parse(payload.CompanyID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	_, err = w.proposer.ProposeForJob(ctx, companyID, jobID)
	return retryable(err)
}

// retryable marks errors that a retry cannot fix so asynq drops the task.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindBadRequest:
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}
