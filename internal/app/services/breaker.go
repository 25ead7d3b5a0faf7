package services

import (
	"errors"
	"sync"
	"time"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/metrics"
	"github.com/ostehost/command-central-sub001/internal/utils"
	"go.uber.org/zap"
)

const (
	// DefaultBreakerMaxAttempts is the number of attempts allowed per window.
	DefaultBreakerMaxAttempts = 10
	// DefaultBreakerWindow is the length of one rolling window.
	DefaultBreakerWindow = 60 * time.Second
)

// ErrCircuitOpen is returned while the breaker refuses work. It is an expected
// state ("temporarily disabled"), not a failure.
var ErrCircuitOpen = errors.New("status temporarily disabled: too many attempts")

// BreakerStatus is a snapshot of the breaker.
type BreakerStatus struct {
	Attempts int
	IsOpen   bool
}

// CircuitBreaker limits attempts to a fixed number per window. The window
// starts with the first attempt; once it has elapsed the counter resets.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	clock       utils.Clock
	logger      *zap.Logger

	attempts    int
	windowStart time.Time
	open        bool
	warned      bool
}

// NewCircuitBreaker returns a breaker; zero values select the defaults.
func NewCircuitBreaker(maxAttempts int, window time.Duration, clock utils.Clock, logger *zap.Logger) *CircuitBreaker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultBreakerMaxAttempts
	}
	if window <= 0 {
		window = DefaultBreakerWindow
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &CircuitBreaker{
		maxAttempts: maxAttempts,
		window:      window,
		clock:       clock,
		logger:      log.OrNop(logger),
	}
}

// CanProceed counts one attempt and reports whether it is allowed.
func (b *CircuitBreaker) CanProceed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.attempts = 0
		b.open = false
		b.warned = false
	}

	b.attempts++
	if b.attempts <= b.maxAttempts {
		return true
	}

	if !b.open {
		b.open = true
		metrics.RecordBreakerTrip()
	}
	if !b.warned {
		b.warned = true
		b.logger.Warn("status circuit breaker open",
			zap.Int("max_attempts", b.maxAttempts),
			zap.Duration("window", b.window),
			zap.Duration("retry_in", b.window-now.Sub(b.windowStart)))
	}
	metrics.RecordBreakerRejection()
	return false
}

// Reset clears all state unconditionally.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
	b.windowStart = time.Time{}
	b.open = false
	b.warned = false
}

// Status returns a snapshot of the breaker.
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{Attempts: b.attempts, IsOpen: b.open}
}
