package ratelimit

import (
	"sync"
	"time"
)

// AdaptiveConfig tunes the failure-driven slowdown
type AdaptiveConfig struct {
	Window           int           // outcomes remembered, default 20
	MinSamples       int           // outcomes needed before judging, default Window/2
	SlowThreshold    float64       // failure rate that enters slow mode, default 0.20
	RecoverThreshold float64       // failure rate below which slow mode may end, default 0.10
	Cooldown         time.Duration // minimum time spent slow, default 10m
}

// Adaptive tracks recent page outcomes and reports whether the scraper
// should slow down
type Adaptive struct {
	mu  sync.Mutex
	cfg AdaptiveConfig
	now func() time.Time

	// ring of outcomes, true means success
	results []bool
	idx     int
	count   int

	slowUntil time.Time
}

// NewAdaptive fills config defaults and creates the tracker
func NewAdaptive(cfg AdaptiveConfig) *Adaptive {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.Window / 2
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 0.20
	}
	if cfg.RecoverThreshold <= 0 {
		cfg.RecoverThreshold = 0.10
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	return &Adaptive{cfg: cfg, now: time.Now, results: make([]bool, cfg.Window)}
}

// Observe records one outcome
func (a *Adaptive) Observe(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results[a.idx] = success
	a.idx = (a.idx + 1) % len(a.results)
	if a.count < len(a.results) {
		a.count++
	}
	if a.count >= a.cfg.MinSamples && a.failRate() >= a.cfg.SlowThreshold {
		a.slowUntil = a.now().Add(a.cfg.Cooldown)
	}
}

// Slow reports whether slow mode is active. Once the cooldown has passed
// it stays on until the failure rate drops under the recovery threshold.
func (a *Adaptive) Slow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slowUntil.IsZero() {
		return false
	}
	if a.now().Before(a.slowUntil) {
		return true
	}
	if a.failRate() >= a.cfg.RecoverThreshold {
		return true
	}
	a.slowUntil = time.Time{}
	return false
}

// FailRate returns the failure share of the remembered outcomes
func (a *Adaptive) FailRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failRate()
}

func (a *Adaptive) failRate() float64 {
	if a.count == 0 {
		return 0
	}
	fails := 0
	for i := 0; i < a.count; i++ {
		if !a.results[i] {
			fails++
		}
	}
	return float64(fails) / float64(a.count)
}
