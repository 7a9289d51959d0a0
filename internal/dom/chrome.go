package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// userAgents is the pool a session picks from when no agent is pinned
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
}

// hideAutomation runs before any page script on every new document
const hideAutomation = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['tr-TR', 'tr', 'en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || {runtime: {}};
`

// ChromeOptions configures a chromedp session
type ChromeOptions struct {
	Headless        bool
	DisableImages   bool
	UserAgent       string // empty picks from the pool
	ChromePath      string
	PageLoadTimeout time.Duration
	Logger          *slog.Logger
}

// ChromeDriver is a Driver backed by a headless Chrome over chromedp
type ChromeDriver struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	loadTimeout time.Duration
	logger      *slog.Logger
}

// RandomUserAgent picks an agent from the pool
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// ChromeFactory returns a Factory producing sessions with opts
func ChromeFactory(opts ChromeOptions) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewChromeDriver(ctx, opts)
	}
}

// NewChromeDriver starts a browser. ctx bounds startup only and the
// session lives until Close.
func NewChromeDriver(ctx context.Context, opts ChromeOptions) (*ChromeDriver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = RandomUserAgent()
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-logging", true),
		chromedp.Flag("log-level", "3"),
		chromedp.Flag("lang", "tr-TR"),
		chromedp.WindowSize(1366, 768),
		chromedp.UserAgent(ua),
	)
	if opts.DisableImages {
		allocOpts = append(allocOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	// the browser must outlive the startup ctx, so it hangs off Background
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	d := &ChromeDriver{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		loadTimeout: opts.PageLoadTimeout,
		logger:      logger,
	}

	// the first Run allocates the browser and ties it to the ctx it is
	// given, so it runs on the tab itself with deadline and caller
	// cancellation attached by hand
	timer := time.AfterFunc(opts.PageLoadTimeout, cancelTab)
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideAutomation).Do(ctx)
		return err
	}))
	timer.Stop()
	stop()
	if err == nil && tabCtx.Err() != nil {
		err = tabCtx.Err()
	}
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: failed to start chrome: %v", ErrDriverFailed, err)
	}

	logger.Debug("browser session started", "component", "dom", "user_agent", ua, "headless", opts.Headless)
	return d, nil
}

// bind derives a context from the tab that also ends when ctx does
func (d *ChromeDriver) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// wrap classifies err, reporting a dead browser as ErrDriverFailed
func (d *ChromeDriver) wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if d.ctx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrDriverFailed, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return Classify(err)
}

func (d *ChromeDriver) Open(ctx context.Context, url string) error {
	runCtx, cancel := d.bind(ctx, d.loadTimeout)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", url, d.wrap(ctx, err))
	}
	return nil
}

func (d *ChromeDriver) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := d.bind(ctx, timeout)
	defer cancel()
	return d.wrap(ctx, chromedp.Run(runCtx, chromedp.WaitReady(selector, chromedp.ByQuery)))
}

func (d *ChromeDriver) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := d.bind(ctx, timeout)
	defer cancel()
	return d.wrap(ctx, chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	))
}

func (d *ChromeDriver) Snapshot(ctx context.Context) (*Page, error) {
	runCtx, cancel := d.bind(ctx, d.loadTimeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(runCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, d.wrap(ctx, err)
	}
	return NewPage(location, html)
}

func (d *ChromeDriver) ExecuteScript(ctx context.Context, script string, out any) error {
	runCtx, cancel := d.bind(ctx, d.loadTimeout)
	defer cancel()
	return d.wrap(ctx, chromedp.Run(runCtx, chromedp.Evaluate(script, out)))
}

// ExecuteScriptOn calls function with `this` bound to the first element
// matching selector
func (d *ChromeDriver) ExecuteScriptOn(ctx context.Context, selector, function string, out any) error {
	runCtx, cancel := d.bind(ctx, d.loadTimeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return d.wrap(ctx, err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	var (
		res *runtime.RemoteObject
		exc *runtime.ExceptionDetails
	)
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := cdpdom.ResolveNode().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err = runtime.CallFunctionOn(function).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return d.wrap(ctx, err)
	}
	if exc != nil {
		return fmt.Errorf("script on %s failed: %w", selector, exc)
	}
	if out == nil || res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := d.bind(ctx, d.loadTimeout)
	defer cancel()
	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return "", d.wrap(ctx, err)
	}
	return location, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (d *ChromeDriver) Close() error {
	var err error
	if d.ctx.Err() == nil {
		err = chromedp.Cancel(d.ctx)
	}
	d.cancelTab()
	d.cancelAlloc()
	return err
}
