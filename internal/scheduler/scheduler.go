// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"librarium/internal/logging"
)

const defaultLockTTL = time.Minute

// Job is a periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Run performs one pass. It must be idempotent.
	Run func(ctx context.Context) error
}

// Scheduler runs jobs on their intervals. Each run holds the job's lock,
// so at most one replica executes a job per tick.
type Scheduler struct {
	jobs   []Job
	locker Locker
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a scheduler. A nil locker uses a LocalLocker.
func New(locker Locker, logger *zap.Logger, jobs ...Job) *Scheduler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		jobs:   jobs,
		locker: locker,
		logger: logging.OrNop(logger).Named("scheduler"),
		tracer: otel.Tracer("librarium/scheduler"),
	}
}

// Start runs every job once immediately and then on its interval until
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn("job has no interval, not scheduling", zap.String("job", job.Name))
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.tick(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	if _, err := s.run(ctx, job); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
	}
}

// RunOnce runs the named job now. ran is false when another holder had
// the lock.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (ran bool, err error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(ctx, job)
		}
	}
	return false, fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) run(ctx context.Context, job Job) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.run",
		trace.WithAttributes(attribute.String("job.name", job.Name)),
	)
	defer span.End()

	ttl := job.Interval
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	release, ok, err := s.locker.Acquire(ctx, job.Name, ttl)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !ok {
		span.SetAttributes(attribute.Bool("job.skipped", true))
		s.logger.Debug("job locked elsewhere, skipping", zap.String("job", job.Name))
		return false, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release job lock", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		span.RecordError(err)
		return true, fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.logger.Info("job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)),
	)
	return true, nil
}
