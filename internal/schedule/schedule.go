// Package schedule runs the pipeline jobs on fixed intervals.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one named unit of scheduled work.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler drives each job on its own interval. A job never overlaps
// itself: ticks that arrive while a run is in flight are dropped.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

// New builds a scheduler for the jobs.
func New(jobs []Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger.Named("schedule")}
}

// Run executes every job once immediately, then on its interval, until
// the context is canceled. It blocks until all job goroutines stop.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Every <= 0 {
			s.logger.Warn("job has no interval, skipping", zap.String("job", job.Name))
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
	s.logger.Info("job scheduled",
		zap.String("job", job.Name),
		zap.Duration("every", job.Every),
	)
	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("job run failed",
			zap.String("job", job.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("job run done",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)),
	)
}
