package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/logging"
)

// JobRunner executes one claimed job
type JobRunner interface {
	Run(ctx context.Context, job Job, softDeadline time.Time) (Outcome, error)
}

// Worker polls the queue and runs one job at a time
type Worker struct {
	id     string
	queue  Queue
	runner JobRunner
	cfg    config.TasksConfig
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	isRunning bool
	current   string
}

// NewWorker creates a worker with a random id
func NewWorker(queue Queue, runner JobRunner, cfg config.TasksConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.Discard()
	}
	id := "worker-" + uuid.NewString()[:8]
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		log:    logger.With("component", "worker", "worker_id", id),
		now:    time.Now,
	}
}

// ID returns the worker id used for leases
func (w *Worker) ID() string { return w.id }

// Current returns the task id being executed, if any
func (w *Worker) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start launches the poll loop. ctx bounds every job the loop runs.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		w.log.Warn("already running")
		return
	}
	w.isRunning = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.log.Info("started", "poll_interval", w.cfg.PollInterval, "lease", w.cfg.Lease)
	go w.run(ctx)
}

// Stop ends the poll loop after the job in flight, if any, returns
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()
	<-done
	w.log.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// drain the queue before waiting for the next tick
		for {
			ran, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Error("poll failed", "error", err)
			}
			if !ran || ctx.Err() != nil {
				break
			}
			select {
			case <-w.stopChan:
				return
			default:
			}
		}
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	lease := w.lease()
	job, err := w.queue.Claim(ctx, w.id, lease)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log := w.log.With("task_id", job.ID, "attempt", job.Attempts)
	log.Info("job claimed")

	w.mu.Lock()
	w.current = job.ID
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.current = ""
		w.mu.Unlock()
	}()

	jobCtx := ctx
	var cancel context.CancelFunc = func() {}
	if w.cfg.HardLimit > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.HardLimit)
	}
	defer cancel()
	var soft time.Time
	if w.cfg.SoftLimit > 0 {
		soft = w.now().Add(w.cfg.SoftLimit)
	}

	heartbeatDone := make(chan struct{})
	go w.heartbeat(jobCtx, job.ID, lease, heartbeatDone)
	_, runErr := w.runner.Run(jobCtx, *job, soft)
	close(heartbeatDone)

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		log.Warn("shutting down mid-job; the lease will expire and redeliver it")
		return true, nil
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		log.Error("job failed", "error", runErr)
	}
	completeCtx, cancelComplete := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelComplete()
	if err := w.queue.Complete(completeCtx, job.ID, errMsg); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) lease() time.Duration {
	if w.cfg.Lease > 0 {
		return w.cfg.Lease
	}
	return 10 * time.Minute
}

// heartbeat keeps the lease alive while the job runs
func (w *Worker) heartbeat(ctx context.Context, id string, lease time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(max(lease/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Extend(ctx, id, lease); err != nil {
				w.log.Warn("lease extension failed", "task_id", id, "error", err)
			}
		}
	}
}
