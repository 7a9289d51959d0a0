package scraper

import (
	"errors"
	"log/slog"
	"sync"

	"emlak-aggregator/internal/dom"
)

// ErrCircuitOpen aborts a scrape once the browser or the portal is deemed
// unusable
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker stops a scrape whose page loads keep failing
type CircuitBreaker struct {
	threshold int // consecutive driver failures that open the breaker
	window    int // loads before the failure rate is judged
	maxRate   float64

	mu                  sync.Mutex
	failures            int
	driverFailures      int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	reason              string
	log                 *slog.Logger
}

// NewCircuitBreaker creates a breaker opening after threshold consecutive
// driver failures, or when driver failures make up 40% of at least 20 loads.
// Page-level errors such as timeouts never open it.
func NewCircuitBreaker(threshold int, logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &CircuitBreaker{threshold: threshold, window: 20, maxRate: 0.40, log: logger}
}

// RecordSuccess records a page that loaded
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a page load error
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalRequests++
	if errors.Is(err, dom.ErrDriverFailed) {
		cb.driverFailures++
		cb.consecutiveFailures++
	} else {
		cb.consecutiveFailures = 0
	}
	if cb.isOpen {
		return
	}

	if cb.consecutiveFailures >= cb.threshold {
		cb.open("browser session died", "consecutive", cb.consecutiveFailures)
		return
	}
	if cb.totalRequests >= cb.window {
		if rate := float64(cb.driverFailures) / float64(cb.totalRequests); rate >= cb.maxRate {
			cb.open("browser keeps failing", "driver_failure_rate", rate)
		}
	}
}

func (cb *CircuitBreaker) open(reason string, args ...any) {
	cb.isOpen = true
	cb.reason = reason
	cb.log.Warn("circuit breaker open", append([]any{"reason", reason, "failures", cb.failures, "total", cb.totalRequests}, args...)...)
}

// CanProceed reports whether page loads may continue
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return !cb.isOpen
}

// Err returns ErrCircuitOpen with the reason once the breaker is open
func (cb *CircuitBreaker) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.isOpen {
		return nil
	}
	return &breakerError{reason: cb.reason}
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}

type breakerError struct{ reason string }

func (e *breakerError) Error() string { return ErrCircuitOpen.Error() + ": " + e.reason }

func (e *breakerError) Unwrap() []error { return []error{ErrCircuitOpen, dom.ErrDriverFailed} }
