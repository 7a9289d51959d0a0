// Package dom is the browser-facing layer of the scraper. A Driver loads
// pages in a real browser; a Page is an immutable goquery snapshot of what
// the browser rendered, and all element lookups happen on that snapshot.
package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	ErrNotFound       = errors.New("dom: element not found")
	ErrTimeout        = errors.New("dom: timed out")
	ErrStaleReference = errors.New("dom: stale element reference")
	ErrDriverFailed   = errors.New("dom: browser driver failed")
)

// Driver is one browser session. Implementations are not safe for
// concurrent use; a worker owns its driver exclusively.
type Driver interface {
	Open(ctx context.Context, url string) error
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) error
	Snapshot(ctx context.Context) (*Page, error)
	ExecuteScript(ctx context.Context, script string, out any) error
	ExecuteScriptOn(ctx context.Context, selector, function string, out any) error
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// Factory starts a new driver session
type Factory func(ctx context.Context) (Driver, error)

// WithSession starts a session, hands it to fn and closes it on every exit
// path, panics included.
func WithSession(ctx context.Context, newDriver Factory, fn func(Driver) error) (err error) {
	d, err := newDriver(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close browser session: %w", cerr)
		}
	}()
	return fn(d)
}

// Load opens url, waits up to wait for readySelector and snapshots the
// result. A ready selector that never shows up is not an error: empty
// result pages legitimately lack the listing container.
func Load(ctx context.Context, d Driver, url, readySelector string, wait time.Duration) (*Page, error) {
	if err := d.Open(ctx, url); err != nil {
		return nil, err
	}
	if readySelector != "" {
		if err := d.WaitPresent(ctx, readySelector, wait); err != nil && !errors.Is(err, ErrTimeout) {
			return nil, err
		}
	}
	// cards below the fold render their images lazily
	if err := d.ExecuteScript(ctx, scrollScript, nil); err != nil && errors.Is(err, ErrDriverFailed) {
		return nil, err
	}
	return d.Snapshot(ctx)
}

const scrollScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`

// Classify maps browser and context errors onto the package sentinels.
// Errors that already wrap a sentinel pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrNotFound, ErrTimeout, ErrStaleReference, ErrDriverFailed} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, chromedp.ErrPollingTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, chromedp.ErrNoResults):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, chromedp.ErrInvalidContext), errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget):
		return fmt.Errorf("%w: %v", ErrDriverFailed, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no node with given id"), strings.Contains(msg, "could not find node"),
		strings.Contains(msg, "node is detached"):
		return fmt.Errorf("%w: %v", ErrStaleReference, err)
	case strings.Contains(msg, "target closed"), strings.Contains(msg, "websocket"),
		strings.Contains(msg, "browser closed"), strings.Contains(msg, "exec:"):
		return fmt.Errorf("%w: %v", ErrDriverFailed, err)
	}
	return err
}

// IsTransient reports whether err should be retried at page level rather
// than failing the whole job
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrDriverFailed) && !errors.Is(err, context.Canceled)
}
