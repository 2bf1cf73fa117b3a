package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner drains the job queue one job at a time. It owns the only
// goroutine that ever moves a job from scheduled to started, so at most
// one job is in flight by construction; the store-side started filter in
// NextScheduled backs that up. There is no retry: a failed job stays
// failed until an operator schedules a fresh one.
type Runner struct {
	store    StoreInterface
	pipeline ExportPipeline
	notifier DeltaNotifier
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	poke     chan struct{}
}

func NewRunner(store StoreInterface, pipeline ExportPipeline, notifier DeltaNotifier, interval time.Duration) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		poke:     make(chan struct{}, 1),
	}
}

func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Poke wakes the runner immediately instead of waiting for the idle tick.
// Called by the HTTP layer after scheduling a job; coalesces when a wake
// is already pending.
func (r *Runner) Poke() {
	select {
	case r.poke <- struct{}{}:
	default:
	}
}

func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Pick up whatever was left scheduled before this process started.
	r.drain()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drain()
		case <-r.poke:
			r.drain()
		}
	}
}

// drain processes scheduled jobs back to back until the queue is empty,
// so a backlog never waits on the idle interval.
func (r *Runner) drain() {
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		job, err := r.store.NextScheduled(r.ctx)
		if err != nil {
			slog.Error("Failed to poll job queue", "error", err)
			return
		}
		if job == nil {
			return
		}

		r.runJob(job)
	}
}

func (r *Runner) runJob(job *Job) {
	start := time.Now()

	if err := r.store.UpdateStatus(r.ctx, job.ID, StatusStarted); err != nil {
		slog.Error("Failed to mark job started", "job", job.ID, "error", err)
		return
	}

	slog.Info("Job started", "job", job.ID, "session", job.SessionURI, "scope", job.Scope)

	outputs, err := r.pipeline.Run(r.ctx, job)
	if err != nil {
		slog.Error("Job failed", "job", job.ID, "session", job.SessionURI, "error", err)
		if err := r.store.UpdateStatus(r.ctx, job.ID, StatusFailed); err != nil {
			slog.Error("Failed to mark job failed", "job", job.ID, "error", err)
		}
		return
	}

	if err := r.store.UpdateStatus(r.ctx, job.ID, StatusDone); err != nil {
		slog.Error("Failed to mark job done", "job", job.ID, "error", err)
		return
	}

	files := make([]string, 0, len(outputs))
	for _, output := range outputs {
		files = append(files, output.File)
	}

	if len(files) > 0 && r.notifier != nil {
		if err := r.notifier.CreateTask(r.ctx, files); err != nil {
			slog.Warn("Failed to create delta task", "job", job.ID, "files", len(files), "error", err)
		}
	}

	slog.Info("Job completed",
		"job", job.ID,
		"session", job.SessionURI,
		"files", len(files),
		"duration", time.Since(start))
}
