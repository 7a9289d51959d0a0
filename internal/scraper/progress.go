package scraper

import (
	"context"
	"sync"
)

// Primary traversal reports 0-95%; the retry phase owns the rest
const (
	primaryShare = 95
	retryShare   = 5
)

// Update is one progress report
type Update struct {
	Message string
	Current int
	Total   int
	Percent int
}

// PublishFunc receives progress reports
type PublishFunc func(ctx context.Context, u Update)

// StopFunc is the cooperative stop predicate
type StopFunc func(ctx context.Context) bool

// progress turns a position in the city/district/neighborhood/page
// hierarchy into a percentage. Each level splits its parent's share evenly.
type progress struct {
	mu      sync.Mutex
	cities  int
	city    int
	dists   int
	dist    int
	hoods   int
	hood    int
	last    int
	publish PublishFunc
}

func newProgress(cities int, publish PublishFunc) *progress {
	if publish == nil {
		publish = func(context.Context, Update) {}
	}
	return &progress{cities: max(cities, 1), publish: publish}
}

func (p *progress) enterCity(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.city, p.dists, p.dist, p.hoods, p.hood = i, 1, 0, 1, 0
}

func (p *progress) setDistricts(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dists, p.dist, p.hoods, p.hood = max(n, 1), 0, 1, 0
}

func (p *progress) enterDistrict(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dist, p.hoods, p.hood = i, 1, 0
}

func (p *progress) setNeighborhoods(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hoods, p.hood = max(n, 1), 0
}

func (p *progress) enterNeighborhood(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hood = i
}

// percent returns the clamped, non-decreasing percentage for the current
// position with pageFrac of the innermost target done
func (p *progress) percent(pageFrac float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageFrac = min(max(pageFrac, 0), 1)
	hood := (float64(p.hood) + pageFrac) / float64(p.hoods)
	dist := (float64(p.dist) + hood) / float64(p.dists)
	city := (float64(p.city) + dist) / float64(p.cities)
	pct := min(int(primaryShare*city), primaryShare)
	if pct < p.last {
		pct = p.last
	}
	p.last = pct
	return pct
}

func (p *progress) report(ctx context.Context, message string, pageFrac float64) {
	pct := p.percent(pageFrac)
	p.mu.Lock()
	current, total := p.city+1, p.cities
	p.mu.Unlock()
	p.publish(ctx, Update{Message: message, Current: current, Total: total, Percent: pct})
}

// finish reports the end of the primary phase
func (p *progress) finish(ctx context.Context, message string) {
	p.mu.Lock()
	p.last = primaryShare
	current, total := p.cities, p.cities
	p.mu.Unlock()
	p.publish(ctx, Update{Message: message, Current: current, Total: total, Percent: primaryShare})
}

// retryPercent maps retry round and position into the 95-100% band
func retryPercent(round, rounds, done, total int) int {
	if rounds <= 0 {
		return primaryShare + retryShare
	}
	frac := float64(round)
	if total > 0 {
		frac += float64(done) / float64(total)
	}
	pct := primaryShare + int(retryShare*frac/float64(rounds))
	return min(pct, primaryShare+retryShare)
}
