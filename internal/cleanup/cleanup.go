// Package cleanup is the periodic maintenance pass: it requeues jobs whose
// worker stopped renewing the lease, times out sessions nobody will finish
// and purges old resolved failed pages.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/logging"
)

// Requeuer puts expired job leases back in the queue
type Requeuer interface {
	RequeueExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionStore is the part of the store maintenance touches
type SessionStore interface {
	FinalizeStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeResolvedFailedPages(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs maintenance passes
type Service struct {
	queue Requeuer
	store SessionStore
	cfg   config.TasksConfig
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a maintenance service
func NewService(queue Requeuer, store SessionStore, cfg config.TasksConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		queue: queue,
		store: store,
		cfg:   cfg,
		log:   logger.With("component", "cleanup"),
		now:   time.Now,
	}
}

// Result holds the result of one maintenance pass
type Result struct {
	RequeuedJobs      int       `json:"requeued_jobs"`
	TimedOutSessions  int64     `json:"timed_out_sessions"`
	PurgedFailedPages int64     `json:"purged_failed_pages"`
	ExecutedAt        time.Time `json:"executed_at"`
}

// Run performs one pass. Every step runs even when an earlier one fails.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	now := s.now().UTC()
	result := &Result{ExecutedAt: now}
	var errs []error

	n, err := s.queue.RequeueExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to requeue expired jobs: %w", err))
	}
	result.RequeuedJobs = n

	// a session older than the hard limit plus one lease has no live worker
	staleAfter := s.cfg.HardLimit + s.cfg.Lease
	if staleAfter > 0 {
		result.TimedOutSessions, err = s.store.FinalizeStaleSessions(ctx, now.Add(-staleAfter))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to time out stale sessions: %w", err))
		}
	}

	if days := s.cfg.FailedPageRetentionDays; days > 0 {
		result.PurgedFailedPages, err = s.store.PurgeResolvedFailedPages(ctx, now.AddDate(0, 0, -days))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to purge failed pages: %w", err))
		}
	}

	if result.RequeuedJobs > 0 || result.TimedOutSessions > 0 || result.PurgedFailedPages > 0 {
		s.log.Info("maintenance pass",
			"requeued_jobs", result.RequeuedJobs,
			"timed_out_sessions", result.TimedOutSessions,
			"purged_failed_pages", result.PurgedFailedPages)
	}
	return result, errors.Join(errs...)
}
