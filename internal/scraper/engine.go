// Package scraper walks a portal's location hierarchy, pages through result
// lists and hands every page of records to a commit callback.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/ratelimit"
	"emlak-aggregator/internal/sites"
)

var (
	// errHalt unwinds the traversal after a stop request or the listing cap
	errHalt       = errors.New("traversal halted")
	errNoListings = errors.New("no listings extracted")
)

// Level is a depth in the location hierarchy
type Level int

const (
	LevelCity Level = iota
	LevelDistrict
	LevelNeighborhood
)

// Target is one scrape scope and the URL of its first result page
type Target struct {
	Level        Level
	City         string
	District     string
	Neighborhood string
	URL          string
}

func (t Target) String() string {
	parts := []string{t.City}
	if t.District != "" {
		parts = append(parts, t.District)
	}
	if t.Neighborhood != "" {
		parts = append(parts, t.Neighborhood)
	}
	return strings.Join(parts, " / ")
}

// Job is the scope of one scrape
type Job struct {
	Query       sites.Query
	Cities      []string
	Districts   map[string][]string // optional per-city district filter
	MaxPages    int                 // per target, 0 means the configured cap
	MaxListings int                 // 0 means unlimited
}

// PageResult is one page of records ready to be persisted
type PageResult struct {
	Target  Target
	Page    int
	URL     string
	Records []parser.Record
}

// CommitFunc persists a page before the engine moves on
type CommitFunc func(ctx context.Context, page PageResult) error

// Result summarizes a traversal
type Result struct {
	Pages            int
	Records          int
	FailedPages      int
	SkippedTargets   int
	MissingDistricts []string
	Stopped          bool
	LimitReached     bool
}

// Options wires an engine to its collaborators. Driver, Adapter, Failed
// and Commit are required.
type Options struct {
	Adapter sites.Adapter
	Driver  dom.Driver
	Config  config.ScraperConfig
	Pacer   *ratelimit.Pacer
	Failed  *FailedPages
	Commit  CommitFunc
	Publish PublishFunc
	Stop    StopFunc
	Logger  *slog.Logger
}

// Engine runs one traversal over a single browser session. It is
// sequential and not safe for concurrent use.
type Engine struct {
	adapter sites.Adapter
	driver  dom.Driver
	cfg     config.ScraperConfig
	pacer   *ratelimit.Pacer
	failed  *FailedPages
	breaker *CircuitBreaker
	commit  CommitFunc
	publish PublishFunc
	stop    StopFunc
	log     *slog.Logger
}

// NewEngine creates an engine
func NewEngine(o Options) *Engine {
	logger := o.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "engine", "portal", string(o.Adapter.Portal()))
	pacer := o.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(o.Config)
	}
	stop := o.Stop
	if stop == nil {
		stop = func(context.Context) bool { return false }
	}
	return &Engine{
		adapter: o.Adapter,
		driver:  o.Driver,
		cfg:     o.Config,
		pacer:   pacer,
		failed:  o.Failed,
		breaker: NewCircuitBreaker(o.Config.BreakerThreshold, logger),
		commit:  o.Commit,
		publish: o.Publish,
		stop:    stop,
		log:     logger,
	}
}

// run is the state of one Run call
type run struct {
	*Engine
	job      Job
	parser   parser.Parser
	progress *progress
	maxPages int
	res      Result
}

// Run traverses every city of job. A stop request or the listing cap ends
// the traversal early without an error; everything committed so far stays.
func (e *Engine) Run(ctx context.Context, job Job) (Result, error) {
	p, err := e.adapter.Parser(job.Query.Category)
	if err != nil {
		return Result{}, err
	}
	r := &run{
		Engine:   e,
		job:      job,
		parser:   p,
		progress: newProgress(len(job.Cities), e.publish),
		maxPages: pageCap(job.MaxPages, e.cfg.MaxPagesPerLocation),
	}

	err = r.cities(ctx)
	if errors.Is(err, errHalt) {
		err = nil
	}
	if err == nil && !r.res.Stopped {
		r.progress.finish(ctx, fmt.Sprintf("Scanned %d pages, %d listings", r.res.Pages, r.res.Records))
	}
	e.log.Info("traversal finished",
		"pages", r.res.Pages,
		"records", r.res.Records,
		"failed_pages", r.res.FailedPages,
		"stopped", r.res.Stopped,
		"limit_reached", r.res.LimitReached)
	return r.res, err
}

func pageCap(job, configured int) int {
	switch {
	case job > 0 && configured > 0:
		return min(job, configured)
	case job > 0:
		return job
	default:
		return configured
	}
}

func (r *run) cities(ctx context.Context) error {
	for ci, city := range r.job.Cities {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.progress.enterCity(ci)
		t := Target{Level: LevelCity, City: city, URL: r.adapter.CityURL(r.job.Query, city)}
		r.progress.report(ctx, fmt.Sprintf("Scanning %s (%d/%d)", city, ci+1, len(r.job.Cities)), 0)
		if err := r.city(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) city(ctx context.Context, t Target) error {
	page, err := r.first(ctx, t)
	if err != nil || page == nil {
		return err
	}
	count := r.adapter.DiscoverListingCount(page)
	if count == 0 {
		r.skip(t)
		return nil
	}

	filter := r.districtFilter(t.City)
	if len(filter) == 0 && count <= r.adapter.PaginationCeiling() {
		return r.scrape(ctx, t, page)
	}

	names := r.adapter.Districts(page)
	if len(filter) > 0 {
		names = r.matchDistricts(ctx, t.City, filter, names)
		if len(names) == 0 {
			return nil
		}
	} else if len(names) == 0 {
		r.log.Warn("no district list to drill into, scraping city level", "city", t.City, "count", count)
		return r.scrape(ctx, t, page)
	}
	r.log.Info("drilling into districts", "city", t.City, "count", count, "districts", len(names))

	r.progress.setDistricts(len(names))
	for di, name := range names {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.progress.enterDistrict(di)
		dt := Target{
			Level:    LevelDistrict,
			City:     t.City,
			District: name,
			URL:      r.adapter.DistrictURL(r.job.Query, t.City, name),
		}
		r.progress.report(ctx, fmt.Sprintf("Scanning %s (%d/%d)", dt, di+1, len(names)), 0)
		if err := r.district(ctx, dt); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) district(ctx context.Context, t Target) error {
	page, err := r.first(ctx, t)
	if err != nil || page == nil {
		return err
	}
	count := r.adapter.DiscoverListingCount(page)
	if count == 0 {
		r.skip(t)
		return nil
	}
	if count <= r.adapter.PaginationCeiling() {
		return r.scrape(ctx, t, page)
	}

	hoods := r.adapter.Neighborhoods(page)
	if len(hoods) == 0 {
		r.log.Warn("no neighborhood list, scraping district level", "target", t.String(), "count", count)
		return r.scrape(ctx, t, page)
	}
	r.log.Info("drilling into neighborhoods", "target", t.String(), "count", count, "neighborhoods", len(hoods))

	r.progress.setNeighborhoods(len(hoods))
	for ni, name := range hoods {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.progress.enterNeighborhood(ni)
		nt := Target{
			Level:        LevelNeighborhood,
			City:         t.City,
			District:     t.District,
			Neighborhood: name,
			URL:          r.adapter.NeighborhoodURL(r.job.Query, t.City, t.District, name),
		}
		r.progress.report(ctx, fmt.Sprintf("Scanning %s (%d/%d)", nt, ni+1, len(hoods)), 0)

		p, err := r.first(ctx, nt)
		if err != nil {
			return err
		}
		if p == nil {
			continue
		}
		if r.adapter.DiscoverListingCount(p) == 0 {
			r.skip(nt)
			continue
		}
		if err := r.scrape(ctx, nt, p); err != nil {
			return err
		}
	}
	return nil
}

// scrape pages through one target. first is its already loaded page 1.
func (r *run) scrape(ctx context.Context, t Target, first *dom.Page) error {
	if r.adapter.IsEmpty(first) {
		r.skip(t)
		return nil
	}
	last := r.adapter.DiscoverPagination(first)
	if r.maxPages > 0 && last > r.maxPages {
		last = r.maxPages
	}

	for n := 1; n <= last; n++ {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		url := r.adapter.PageURL(t.URL, n)
		page := first
		if n > 1 {
			if err := r.pacer.BeforePage(ctx); err != nil {
				return err
			}
			p, err := r.load(ctx, url)
			if err != nil {
				if halt := r.loadFailed(ctx, t, n, url, err); halt != nil {
					return halt
				}
				continue
			}
			page = p
		}

		records := Extract(r.adapter, r.parser, page, r.job.Query)
		if len(records) == 0 {
			if n == 1 {
				r.skip(t)
				return nil
			}
			if err := r.recordFailed(ctx, t, n, url, errNoListings); err != nil {
				return err
			}
			continue
		}

		if err := r.commit(ctx, PageResult{Target: t, Page: n, URL: url, Records: records}); err != nil {
			return fmt.Errorf("failed to commit page %d of %s: %w", n, t, err)
		}
		r.res.Pages++
		r.res.Records += len(records)
		r.log.Debug("page committed", "target", t.String(), "page", n, "of", last, "records", len(records))
		r.progress.report(ctx, fmt.Sprintf("%s: page %d/%d, %d listings", t, n, last, len(records)), float64(n)/float64(last))

		if r.job.MaxListings > 0 && r.res.Records >= r.job.MaxListings {
			r.log.Info("listing cap reached", "records", r.res.Records, "cap", r.job.MaxListings)
			r.res.LimitReached = true
			return errHalt
		}
	}
	return nil
}

// first loads page 1 of a target. A transient failure is recorded and
// yields a nil page with a nil error.
func (r *run) first(ctx context.Context, t Target) (*dom.Page, error) {
	if err := r.pacer.BeforePage(ctx); err != nil {
		return nil, err
	}
	page, err := r.load(ctx, t.URL)
	if err != nil {
		return nil, r.loadFailed(ctx, t, 1, t.URL, err)
	}
	return page, nil
}

func (r *run) load(ctx context.Context, url string) (*dom.Page, error) {
	page, err := dom.Load(ctx, r.driver, url, r.adapter.ReadySelector(), r.cfg.GetElementWaitTimeout())
	if err != nil {
		return nil, dom.Classify(err)
	}
	r.breaker.RecordSuccess()
	r.pacer.Observe(true)
	return page, nil
}

// loadFailed records a page that raised. It returns an error only when the
// traversal must end.
func (r *run) loadFailed(ctx context.Context, t Target, n int, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.breaker.RecordFailure(err)
	r.pacer.Observe(false)
	if rerr := r.recordFailed(ctx, t, n, url, err); rerr != nil {
		return rerr
	}
	if berr := r.breaker.Err(); berr != nil {
		return fmt.Errorf("%w (last error: %v)", berr, err)
	}
	return nil
}

func (r *run) recordFailed(ctx context.Context, t Target, n int, url string, cause error) error {
	if err := r.failed.Record(ctx, t, n, url, cause); err != nil {
		return err
	}
	r.res.FailedPages++
	return nil
}

func (r *run) skip(t Target) {
	r.res.SkippedTargets++
	r.log.Info("no listings, skipping", "target", t.String())
}

// checkpoint is consulted at every page and target boundary
func (r *run) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.res.LimitReached {
		return errHalt
	}
	if r.stop(ctx) {
		r.log.Info("stop requested", "pages", r.res.Pages, "records", r.res.Records)
		r.res.Stopped = true
		return errHalt
	}
	return nil
}

func (r *run) districtFilter(city string) []string {
	for key, names := range r.job.Districts {
		if sites.SameName(key, city) {
			return names
		}
	}
	return nil
}

// matchDistricts resolves the requested districts against the portal's own
// list. Names the portal does not know are reported and dropped. Without a
// list to compare against the filter is trusted as given.
func (r *run) matchDistricts(ctx context.Context, city string, filter, available []string) []string {
	if len(available) == 0 {
		return filter
	}
	var out, missing []string
	for _, want := range filter {
		found := ""
		for _, have := range available {
			if sites.SameName(want, have) {
				found = have
				break
			}
		}
		if found == "" {
			missing = append(missing, want)
			continue
		}
		out = append(out, found)
	}
	if len(missing) > 0 {
		for _, m := range missing {
			r.res.MissingDistricts = append(r.res.MissingDistricts, city+"/"+m)
		}
		r.log.Warn("districts not listed by portal", "city", city, "districts", missing)
		r.progress.report(ctx, fmt.Sprintf("%s: district(s) not found on portal: %s", city, strings.Join(missing, ", ")), 0)
	}
	return out
}

// Extract parses every listing card of a page, dropping cards without a
// link and repeats of a link already seen on the page
func Extract(a sites.Adapter, p parser.Parser, page *dom.Page, q sites.Query) []parser.Record {
	nodes := a.ListingNodes(page)
	out := make([]parser.Record, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		rec, ok := p.Parse(page, node)
		if !ok || rec.URL == "" || seen[rec.URL] {
			continue
		}
		seen[rec.URL] = true
		rec.ListingType = q.ListingType
		rec.Subcategory = q.Subcategory
		out = append(out, rec)
	}
	return out
}
