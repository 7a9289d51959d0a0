package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/models"
	"emlak-aggregator/internal/ratelimit"
	"emlak-aggregator/internal/scraper"
	"emlak-aggregator/internal/sites"
)

// Indexer receives the listings a page created or changed
type Indexer interface {
	IndexListings(ctx context.Context, listings []models.Listing) error
}

// Runner executes one job: session bookkeeping, the traversal, the retry
// phase and the final status
type Runner struct {
	store   *database.Store
	status  *broker.StatusStore
	factory dom.Factory
	cfg     config.ScraperConfig
	indexer Indexer
	log     *slog.Logger
	now     func() time.Time
}

// RunnerOptions wires a runner. Indexer and Logger are optional.
type RunnerOptions struct {
	Store   *database.Store
	Status  *broker.StatusStore
	Factory dom.Factory
	Config  config.ScraperConfig
	Indexer Indexer
	Logger  *slog.Logger
}

// NewRunner creates a runner
func NewRunner(o RunnerOptions) *Runner {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &Runner{
		store:   o.Store,
		status:  o.Status,
		factory: o.Factory,
		cfg:     o.Config,
		indexer: o.Indexer,
		log:     o.Logger.With("component", "runner"),
		now:     time.Now,
	}
}

// Outcome is how a job ended
type Outcome struct {
	SessionID uint
	Status    models.SessionStatus
	Traversal scraper.Result
	Retry     scraper.RetryResult
}

// Run executes job. ctx carries the hard limit; once softDeadline passes
// the traversal is asked to stop at the next page boundary. The returned
// error is set for a failed job, and for one interrupted by cancellation,
// which is left unfinalized so its lease can expire and redeliver it.
func (r *Runner) Run(ctx context.Context, job Job, softDeadline time.Time) (Outcome, error) {
	var out Outcome
	req := job.Request
	log := r.log.With("task_id", job.ID, "attempt", job.Attempts)

	adapter, err := sites.ForPortal(req.Portal())
	if err != nil {
		return out, r.fail(ctx, job.ID, err)
	}

	session, created, err := r.store.StartSession(ctx, database.SessionParams{
		TaskID:      job.ID,
		Platform:    req.Platform,
		Category:    req.Category,
		ListingType: req.ListingType,
		Subcategory: req.Subcategory,
		Cities:      req.Cities,
		Districts:   req.Districts,
	})
	if err != nil {
		return out, r.fail(ctx, job.ID, err)
	}
	out.SessionID = session.ID
	if !created {
		log.Info("resuming redelivered job", "session_id", session.ID)
	}
	if session.Status.IsTerminal() {
		log.Warn("session already finalized, nothing to do", "status", session.Status)
		out.Status = session.Status
		return out, nil
	}

	if _, err := r.status.Update(ctx, job.ID, func(s *broker.StatusRecord) {
		s.Status = broker.TaskRunning
		s.SessionID = session.ID
		s.Message = "Starting"
	}); err != nil && !errors.Is(err, broker.ErrNotFound) {
		log.Warn("status update failed", "error", err)
	}

	var softExpired atomic.Bool
	stop := func(ctx context.Context) bool {
		if !softDeadline.IsZero() && !r.now().Before(softDeadline) {
			softExpired.Store(true)
			return true
		}
		requested, err := r.status.StopRequested(ctx, job.ID)
		if err != nil {
			log.Warn("stop flag unreadable", "error", err)
			return false
		}
		return requested
	}
	publish := func(ctx context.Context, u scraper.Update) {
		if err := r.status.Progress(ctx, job.ID, u.Message, u.Current, u.Total, u.Percent); err != nil {
			log.Warn("progress publish failed", "error", err)
		}
	}
	commit := func(ctx context.Context, p scraper.PageResult) error {
		stats, err := r.store.CommitPage(ctx, session.ID, p.Records)
		if err != nil {
			return err
		}
		log.Debug("page committed",
			"target", p.Target.String(),
			"page", p.Page,
			"created", stats.Created,
			"updated", stats.Updated,
			"unchanged", stats.Unchanged)
		if r.indexer != nil && len(stats.Changed) > 0 {
			if err := r.indexer.IndexListings(ctx, stats.Changed); err != nil {
				log.Warn("search indexing failed", "error", err)
			}
		}
		return nil
	}

	pacer := ratelimit.NewPacer(r.cfg)
	failed := scraper.NewFailedPages(r.store, session.ID, log)

	err = dom.WithSession(ctx, r.factory, func(d dom.Driver) error {
		engine := scraper.NewEngine(scraper.Options{
			Adapter: adapter,
			Driver:  d,
			Config:  r.cfg,
			Pacer:   pacer,
			Failed:  failed,
			Commit:  commit,
			Publish: publish,
			Stop:    stop,
			Logger:  log,
		})
		var runErr error
		out.Traversal, runErr = engine.Run(ctx, req.ScrapeJob())
		return runErr
	})

	if err == nil && !out.Traversal.Stopped && !out.Traversal.LimitReached {
		retrier := scraper.NewRetrier(scraper.RetryOptions{
			Adapter: adapter,
			Factory: r.factory,
			Config:  r.cfg,
			Pacer:   pacer,
			Failed:  failed,
			Commit:  commit,
			Publish: publish,
			Stop:    stop,
			Logger:  log,
		})
		out.Retry, err = retrier.Run(ctx, req.Query())
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		log.Warn("job interrupted, leaving it for redelivery", "session_id", session.ID)
		return out, ctx.Err()
	}

	stopped := out.Traversal.Stopped || out.Retry.Stopped
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), softExpired.Load():
		out.Status = models.SessionStatusTimeout
	case stopped:
		out.Status = models.SessionStatusStopped
	case err != nil:
		out.Status = models.SessionStatusFailed
	default:
		out.Status = models.SessionStatusCompleted
	}

	r.finish(ctx, job.ID, session.ID, out, err)
	log.Info("job finished",
		"status", out.Status,
		"pages", out.Traversal.Pages,
		"records", out.Traversal.Records+out.Retry.Records,
		"failed_pages", out.Traversal.FailedPages,
		"recovered", out.Retry.Resolved)

	if out.Status == models.SessionStatusFailed {
		return out, err
	}
	return out, nil
}

// finish writes the terminal state. It runs on a context detached from the
// job's so a hard-limit cancellation still gets recorded.
func (r *Runner) finish(ctx context.Context, taskID string, sessionID uint, out Outcome, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	errMsg := ""
	switch out.Status {
	case models.SessionStatusFailed:
		errMsg = runErr.Error()
	case models.SessionStatusTimeout:
		errMsg = "time limit reached"
	}
	if _, err := r.store.FinalizeSession(ctx, sessionID, out.Status, errMsg); err != nil {
		r.log.Error("failed to finalize session", "session_id", sessionID, "error", err)
	}

	message := summary(out)
	if _, err := r.status.Update(ctx, taskID, func(s *broker.StatusRecord) {
		s.Status = broker.TaskStatus(out.Status)
		s.Message = message
		s.Error = errMsg
		s.StoppedEarly = out.Status == models.SessionStatusStopped
		if out.Status == models.SessionStatusCompleted {
			s.Progress = 100
		}
	}); err != nil {
		r.log.Warn("final status update failed", "task_id", taskID, "error", err)
	}
}

func summary(out Outcome) string {
	var b strings.Builder
	switch out.Status {
	case models.SessionStatusCompleted:
		b.WriteString("Completed")
	case models.SessionStatusStopped:
		b.WriteString("Stopped on request")
	case models.SessionStatusTimeout:
		b.WriteString("Stopped at the time limit")
	default:
		b.WriteString("Failed")
	}
	fmt.Fprintf(&b, ": %d listings from %d pages", out.Traversal.Records+out.Retry.Records, out.Traversal.Pages)
	if n := out.Traversal.FailedPages; n > 0 {
		fmt.Fprintf(&b, ", %d failed pages (%d recovered)", n, out.Retry.Resolved)
	}
	if out.Traversal.LimitReached {
		b.WriteString(", listing cap reached")
	}
	if missing := out.Traversal.MissingDistricts; len(missing) > 0 {
		fmt.Fprintf(&b, "; unknown districts: %s", strings.Join(missing, ", "))
	}
	return b.String()
}

// fail records a job that could not start
func (r *Runner) fail(ctx context.Context, taskID string, err error) error {
	if _, uerr := r.status.Update(ctx, taskID, func(s *broker.StatusRecord) {
		s.Status = broker.TaskFailed
		s.Error = err.Error()
		s.Message = "Failed to start"
	}); uerr != nil {
		r.log.Warn("status update failed", "task_id", taskID, "error", uerr)
	}
	return err
}
