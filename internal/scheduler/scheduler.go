package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"emlak-aggregator/internal/cleanup"
	"emlak-aggregator/internal/logging"
)

// Maintainer runs one maintenance pass
type Maintainer interface {
	Run(ctx context.Context) (*cleanup.Result, error)
}

// Scheduler runs the maintenance pass on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	task      Maintainer
	log       *slog.Logger
	timeout   time.Duration
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a scheduler. schedule is a cron expression or a
// descriptor such as "@every 5m".
func NewScheduler(schedule string, task Maintainer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		schedule: schedule,
		task:     task,
		log:      logger,
		timeout:  5 * time.Minute,
	}
}

// Start registers the maintenance job and starts the cron loop. An empty
// schedule disables the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == "" {
		s.log.Info("maintenance schedule is empty, scheduler disabled")
		return nil
	}
	if s.isRunning {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunNow(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.isRunning = true
	s.log.Info("started", "schedule", s.schedule)
	return nil
}

// Stop stops the cron loop and waits for a running pass to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.Info("stopped")
}

// RunNow executes the maintenance pass immediately
func (s *Scheduler) RunNow(ctx context.Context) (*cleanup.Result, error) {
	res, err := s.task.Run(ctx)
	if err != nil {
		s.log.Error("maintenance pass failed", "error", err)
	}
	return res, err
}

// cronLogger adapts slog to cron's logger interface
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
