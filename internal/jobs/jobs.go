// Package jobs runs the periodic background work: request expiry, payment polling, refund
// reconciliation and payout processing.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task performs one pass and returns how many items it moved.
type Task func(ctx context.Context) (int, error)

type Job struct {
	Name     string
	Interval time.Duration
	Task     Task
}

type Runner struct {
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{jobs: jobs}
}

// Start launches one ticker loop per job. Jobs with a non-positive interval are skipped.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	for _, job := range r.jobs {
		if job.Interval <= 0 {
			slog.Info("job disabled", "job", job.Name)
			continue
		}

		r.wg.Go(func() { run(ctx, job) })

		slog.Info("job started", "job", job.Name, "interval", job.Interval)
	}
}

// Stop cancels every loop and waits for in-progress passes to return.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}

	r.cancel()
	r.wg.Wait()

	slog.Info("jobs stopped")
}

func run(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, job)
		}
	}
}

func runOnce(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job panicked", "job", job.Name, "panic", rec)
		}
	}()

	n, err := job.Task(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("job failed", "job", job.Name, "error", err)
		}

		return
	}

	if n > 0 {
		slog.Info("job pass", "job", job.Name, "processed", n)
	}
}
