package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/models"
)

// FailedPageStore persists the failed-page audit trail
type FailedPageStore interface {
	RecordFailedPage(ctx context.Context, fp *models.FailedPage) (bool, error)
	PendingFailedPages(ctx context.Context, sessionID uint, maxRetries int) ([]models.FailedPage, error)
	ResolveFailedPage(ctx context.Context, id uint) error
	IncrementFailedPageRetry(ctx context.Context, id uint, maxRetries int) (int, error)
}

// FailedPages tracks the failed pages of one session
type FailedPages struct {
	store     FailedPageStore
	sessionID uint
	log       *slog.Logger

	mu       sync.Mutex
	recorded int
}

// NewFailedPages scopes a tracker to a session
func NewFailedPages(store FailedPageStore, sessionID uint, logger *slog.Logger) *FailedPages {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FailedPages{store: store, sessionID: sessionID, log: logger}
}

// SessionID returns the session the tracker writes to
func (f *FailedPages) SessionID() uint { return f.sessionID }

// Record registers a page of target that raised or came back empty
func (f *FailedPages) Record(ctx context.Context, t Target, page int, url string, cause error) error {
	fp := &models.FailedPage{
		SessionID:  f.sessionID,
		URL:        url,
		PageNumber: page,
		City:       t.City,
		District:   t.District,
		Error:      cause.Error(),
	}
	created, err := f.store.RecordFailedPage(ctx, fp)
	if err != nil {
		return fmt.Errorf("failed to record failed page: %w", err)
	}
	if created {
		f.mu.Lock()
		f.recorded++
		f.mu.Unlock()
	}
	f.log.Warn("page failed", "url", url, "page", page, "target", t.String(), "error", cause)
	return nil
}

// Recorded returns how many new failed pages this tracker stored
func (f *FailedPages) Recorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded
}

// Pending returns unresolved pages still under the retry budget
func (f *FailedPages) Pending(ctx context.Context, maxRetries int) ([]models.FailedPage, error) {
	return f.store.PendingFailedPages(ctx, f.sessionID, maxRetries)
}

// Resolve marks a page as recovered
func (f *FailedPages) Resolve(ctx context.Context, id uint) error {
	return f.store.ResolveFailedPage(ctx, id)
}

// Retried bumps a page's retry count, never past maxRetries
func (f *FailedPages) Retried(ctx context.Context, id uint, maxRetries int) (int, error) {
	return f.store.IncrementFailedPageRetry(ctx, id, maxRetries)
}
