package scheduler

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues recurring generation on the policy cron spec.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, policy config.DispatchPolicy, log *logger.Logger) (*Periodic, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(policy.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", policy.TimeZone, err)
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc})

	task, err := NewGenerateRecurringTask(GenerateRecurringPayload{})
	if err != nil {
		return nil, err
	}
	// Unique for most of a day so overlapping schedulers enqueue one run.
	if _, err := s.Register(policy.RecurringCronSpec, task,
		asynq.Queue(queueName(cfg)),
		asynq.Unique(23*time.Hour),
	); err != nil {
		return nil, fmt.Errorf("register recurring generation %q: %w", policy.RecurringCronSpec, err)
	}

	log.Info("recurring generation scheduled", "cron", policy.RecurringCronSpec, "time_zone", loc.String())
	return &Periodic{scheduler: s, log: log}, nil
}

// Run starts the scheduler and stops it when ctx ends.
func (p *Periodic) Run(ctx context.Context) error {
	if err := p.scheduler.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
	p.log.Info("periodic scheduler stopped")
	return nil
}
