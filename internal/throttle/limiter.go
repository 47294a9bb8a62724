package throttle

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"priceradar/internal/config"
	"priceradar/pkg/utils"
)

// CircuitState represents the state of a platform circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns string representation of CircuitState.
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is a circuit breaker for one platform.
type breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failureCount int
	lastFailTime time.Time
	state        CircuitState
}

// Limiter paces requests per platform and opens a circuit after
// repeated failures. It only gates pacing; it never rewrites errors.
type Limiter struct {
	config   *config.Config
	limiters map[string]*rate.Limiter
	breakers map[string]*breaker
	mu       sync.Mutex
	logger   *logrus.Logger
	now      func() time.Time
}

// NewLimiter creates a per-platform rate limiter with circuit breaking.
func NewLimiter(cfg *config.Config) *Limiter {
	return &Limiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*breaker),
		logger:   utils.GetLogger(),
		now:      time.Now,
	}
}

// Allow checks if a request to the given platform may proceed now.
func (l *Limiter) Allow(platform string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.circuitAllows(platform) {
		l.logger.WithField("platform", platform).Debug("Request rejected by circuit breaker")
		return false
	}

	allowed := l.limiter(platform).Allow()
	if !allowed {
		l.logger.WithField("platform", platform).Debug("Request rejected by rate limiter")
	}
	return allowed
}

// RecordSuccess records a successful request, closing a half-open
// circuit.
func (l *Limiter) RecordSuccess(platform string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.breaker(platform)
	if b.state == CircuitHalfOpen {
		b.state = CircuitClosed
		b.failureCount = 0
		l.logger.WithField("platform", platform).Info("Circuit breaker closed after successful request")
	}
}

// RecordFailure records a failed request, opening the circuit after the
// configured number of consecutive failures.
func (l *Limiter) RecordFailure(platform string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.breaker(platform)
	b.failureCount++
	b.lastFailTime = l.now()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		l.logger.WithField("platform", platform).Warn("Circuit breaker reopened after half-open failure")
		return
	}

	if b.failureCount >= b.maxFailures && b.state == CircuitClosed {
		b.state = CircuitOpen
		l.logger.WithFields(logrus.Fields{
			"platform": platform,
			"failures": b.failureCount,
			"error":    err.Error(),
		}).Warn("Circuit breaker opened due to failures")
	}
}

// State returns the current circuit state for a platform.
func (l *Limiter) State(platform string) CircuitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breaker(platform).state
}

// circuitAllows checks the breaker, transitioning open breakers to
// half-open once the reset timeout has elapsed. Caller holds l.mu.
func (l *Limiter) circuitAllows(platform string) bool {
	b := l.breaker(platform)

	switch b.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if l.now().Sub(b.lastFailTime) > b.resetTimeout {
			b.state = CircuitHalfOpen
			l.logger.WithField("platform", platform).Info("Circuit breaker transitioned to half-open")
			return true
		}
		return false
	default:
		return false
	}
}

// limiter gets or creates the rate limiter for a platform. Caller holds
// l.mu.
func (l *Limiter) limiter(platform string) *rate.Limiter {
	if lim, ok := l.limiters[platform]; ok {
		return lim
	}

	rps := rate.Limit(float64(l.config.Throttle.RatePerMinute) / 60.0)
	lim := rate.NewLimiter(rps, l.config.Throttle.Burst)
	l.limiters[platform] = lim

	l.logger.WithFields(logrus.Fields{
		"platform": platform,
		"rate":     rps,
		"burst":    l.config.Throttle.Burst,
	}).Debug("Created platform rate limiter")
	return lim
}

// breaker gets or creates the circuit breaker for a platform. Caller
// holds l.mu.
func (l *Limiter) breaker(platform string) *breaker {
	if b, ok := l.breakers[platform]; ok {
		return b
	}

	b := &breaker{
		maxFailures:  l.config.Throttle.MaxFailures,
		resetTimeout: l.config.Throttle.ResetTimeout,
		state:        CircuitClosed,
	}
	l.breakers[platform] = b
	return b
}
