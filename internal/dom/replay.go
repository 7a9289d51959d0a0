package dom

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// ReplayDriver serves stored HTML instead of driving a browser. It backs
// the probe command's offline mode and tests: Pages maps URL to HTML and
// Errors injects a failure for a URL.
type ReplayDriver struct {
	Pages  map[string]string
	Errors map[string]error

	mu      sync.Mutex
	current string
	opened  []string
	closed  bool
}

// NewReplayDriver creates a driver over pages
func NewReplayDriver(pages map[string]string) *ReplayDriver {
	return &ReplayDriver{Pages: pages, Errors: map[string]error{}}
}

// ReplayFile creates a driver serving the HTML file at path as url
func ReplayFile(url, path string) (*ReplayDriver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read html file: %w", err)
	}
	return NewReplayDriver(map[string]string{url: string(data)}), nil
}

// Opened returns every URL passed to Open, in order
func (r *ReplayDriver) Opened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

// Closed reports whether Close was called
func (r *ReplayDriver) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ReplayDriver) Open(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.closed {
		return fmt.Errorf("%w: session closed", ErrDriverFailed)
	}
	r.opened = append(r.opened, url)
	if err := r.Errors[url]; err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	if _, ok := r.Pages[url]; !ok {
		return fmt.Errorf("failed to open %s: %w", url, ErrNotFound)
	}
	r.current = url
	return nil
}

func (r *ReplayDriver) WaitPresent(ctx context.Context, selector string, _ time.Duration) error {
	p, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(p.FindAll(selector)) == 0 {
		return fmt.Errorf("%w: waiting for %s", ErrTimeout, selector)
	}
	return nil
}

func (r *ReplayDriver) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	return r.WaitPresent(ctx, selector, timeout)
}

func (r *ReplayDriver) Snapshot(ctx context.Context) (*Page, error) {
	r.mu.Lock()
	url, closed := r.current, r.closed
	html := r.Pages[url]
	r.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: session closed", ErrDriverFailed)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: no page loaded", ErrNotFound)
	}
	return NewPage(url, html)
}

// ExecuteScript is a no-op; stored pages have no script engine
func (r *ReplayDriver) ExecuteScript(ctx context.Context, script string, out any) error {
	return ctx.Err()
}

func (r *ReplayDriver) ExecuteScriptOn(ctx context.Context, selector, function string, out any) error {
	p, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(p.FindAll(selector)) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

func (r *ReplayDriver) CurrentURL(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, nil
}

func (r *ReplayDriver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
