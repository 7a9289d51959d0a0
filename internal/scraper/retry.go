package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/ratelimit"
	"emlak-aggregator/internal/sites"
)

// RetryOptions wires a retrier. Factory opens the fresh session each
// attempt runs in.
type RetryOptions struct {
	Adapter sites.Adapter
	Factory dom.Factory
	Config  config.ScraperConfig
	Pacer   *ratelimit.Pacer
	Failed  *FailedPages
	Commit  CommitFunc
	Publish PublishFunc
	Stop    StopFunc
	Logger  *slog.Logger
}

// RetryResult summarizes the retry phase
type RetryResult struct {
	Rounds   int
	Attempts int
	Resolved int
	Records  int
	Stopped  bool
}

// Retrier re-runs a session's failed pages after the primary traversal
type Retrier struct {
	opts RetryOptions
	log  *slog.Logger
}

// NewRetrier creates a retrier
func NewRetrier(o RetryOptions) *Retrier {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Pacer == nil {
		o.Pacer = ratelimit.NewPacer(o.Config)
	}
	if o.Publish == nil {
		o.Publish = func(context.Context, Update) {}
	}
	if o.Stop == nil {
		o.Stop = func(context.Context) bool { return false }
	}
	return &Retrier{opts: o, log: o.Logger.With("component", "retry")}
}

// Run makes up to max_retries rounds over the unresolved pages. Every
// attempt opens its own browser session.
func (r *Retrier) Run(ctx context.Context, q sites.Query) (RetryResult, error) {
	var res RetryResult
	p, err := r.opts.Adapter.Parser(q.Category)
	if err != nil {
		return res, err
	}
	rounds := r.opts.Config.MaxRetries

	for round := 0; round < rounds; round++ {
		pending, err := r.opts.Failed.Pending(ctx, rounds)
		if err != nil {
			return res, fmt.Errorf("failed to load failed pages: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		res.Rounds++
		r.log.Info("retry round", "round", round+1, "of", rounds, "pages", len(pending))

		for i, fp := range pending {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if r.opts.Stop(ctx) {
				res.Stopped = true
				return res, nil
			}
			if err := r.pause(ctx); err != nil {
				return res, err
			}

			res.Attempts++
			records, err := r.attempt(ctx, p, q, fp.URL)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if err == nil && len(records) > 0 {
				t := Target{City: fp.City, District: fp.District, URL: fp.URL}
				if err := r.opts.Commit(ctx, PageResult{Target: t, Page: fp.PageNumber, URL: fp.URL, Records: records}); err != nil {
					return res, fmt.Errorf("failed to commit retried page: %w", err)
				}
				if err := r.opts.Failed.Resolve(ctx, fp.ID); err != nil {
					return res, fmt.Errorf("failed to resolve page: %w", err)
				}
				res.Resolved++
				res.Records += len(records)
				r.log.Info("page recovered", "url", fp.URL, "records", len(records))
			} else {
				if err == nil {
					err = errNoListings
				}
				count, rerr := r.opts.Failed.Retried(ctx, fp.ID, rounds)
				if rerr != nil {
					return res, fmt.Errorf("failed to count retry: %w", rerr)
				}
				r.log.Warn("retry failed", "url", fp.URL, "retry_count", count, "error", err)
			}

			r.opts.Publish(ctx, Update{
				Message: fmt.Sprintf("Retry round %d/%d: page %d/%d (%d recovered)", round+1, rounds, i+1, len(pending), res.Resolved),
				Current: i + 1,
				Total:   len(pending),
				Percent: retryPercent(round, rounds, i+1, len(pending)),
			})
		}
	}
	r.opts.Publish(ctx, Update{
		Message: fmt.Sprintf("Retries finished: %d of %d attempts recovered a page", res.Resolved, res.Attempts),
		Current: res.Resolved,
		Total:   res.Attempts,
		Percent: primaryShare + retryShare,
	})
	return res, nil
}

func (r *Retrier) pause(ctx context.Context) error {
	if err := r.opts.Pacer.Short(ctx); err != nil {
		return err
	}
	return ratelimit.Sleep(ctx, r.opts.Config.GetRetryDelay())
}

func (r *Retrier) attempt(ctx context.Context, p parser.Parser, q sites.Query, url string) ([]parser.Record, error) {
	var records []parser.Record
	err := dom.WithSession(ctx, r.opts.Factory, func(d dom.Driver) error {
		page, err := dom.Load(ctx, d, url, r.opts.Adapter.ReadySelector(), r.opts.Config.GetElementWaitTimeout())
		if err != nil {
			return dom.Classify(err)
		}
		records = Extract(r.opts.Adapter, p, page, q)
		return nil
	})
	return records, err
}
