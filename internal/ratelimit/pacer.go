package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"emlak-aggregator/internal/config"
)

// Band is a randomized sleep interval
type Band struct {
	Min time.Duration
	Max time.Duration
}

func (b Band) pick(rng *rand.Rand) time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(rng.Int63n(int64(b.Max-b.Min)))
}

// Pacer spaces page loads of one browser session. It is owned by a single
// worker but safe for concurrent use.
type Pacer struct {
	short, medium, long Band
	between             time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	lastPage time.Time
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	backoff  *Adaptive
}

// NewPacer creates a pacer from the scraper's wait settings
func NewPacer(cfg config.ScraperConfig) *Pacer {
	band := func(b config.WaitBand) Band {
		min, max := b.Bounds()
		return Band{Min: min, Max: max}
	}
	return &Pacer{
		short:   band(cfg.RandomWait.Short),
		medium:  band(cfg.RandomWait.Medium),
		long:    band(cfg.RandomWait.Long),
		between: cfg.GetWaitBetweenPages(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		sleep:   Sleep,
		backoff: NewAdaptive(AdaptiveConfig{}),
	}
}

// Short sleeps a random interval from the short band
func (p *Pacer) Short(ctx context.Context) error { return p.wait(ctx, p.short) }

// Medium sleeps a random interval from the medium band
func (p *Pacer) Medium(ctx context.Context) error { return p.wait(ctx, p.medium) }

// Long sleeps a random interval from the long band
func (p *Pacer) Long(ctx context.Context) error { return p.wait(ctx, p.long) }

// BeforePage blocks until the next page load may start: at least the fixed
// inter-page delay since the previous load plus short-band jitter, or a
// long-band pause while the portal is failing pages.
func (p *Pacer) BeforePage(ctx context.Context) error {
	p.mu.Lock()
	band := p.short
	if p.backoff.Slow() {
		band = p.long
	}
	delay := band.pick(p.rng)
	if !p.lastPage.IsZero() {
		if rest := p.between - p.now().Sub(p.lastPage); rest > 0 {
			delay += rest
		}
	}
	p.mu.Unlock()

	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastPage = p.now()
	p.mu.Unlock()
	return nil
}

// Observe feeds a page outcome into the adaptive backoff
func (p *Pacer) Observe(success bool) {
	p.backoff.Observe(success)
}

func (p *Pacer) wait(ctx context.Context, b Band) error {
	p.mu.Lock()
	d := b.pick(p.rng)
	p.mu.Unlock()
	return p.sleep(ctx, d)
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
