package throttle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"priceradar/internal/config"
)

func testLimiter() *Limiter {
	cfg := &config.Config{}
	cfg.Throttle.RatePerMinute = 600
	cfg.Throttle.Burst = 10
	cfg.Throttle.MaxFailures = 3
	cfg.Throttle.ResetTimeout = 30 * time.Second
	return NewLimiter(cfg)
}

func TestLimiterAllowsWithinBurst(t *testing.T) {
	l := testLimiter()
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("meituan"), "request %d within burst should pass", i)
	}
}

func TestLimiterIsPerPlatform(t *testing.T) {
	cfg := &config.Config{}
	cfg.Throttle.RatePerMinute = 1
	cfg.Throttle.Burst = 1
	cfg.Throttle.MaxFailures = 3
	cfg.Throttle.ResetTimeout = 30 * time.Second
	l := NewLimiter(cfg)

	assert.True(t, l.Allow("meituan"))
	assert.False(t, l.Allow("meituan"), "burst of one is spent")
	assert.True(t, l.Allow("eleme"), "other platform has its own budget")
}

func TestCircuitOpensAfterMaxFailures(t *testing.T) {
	l := testLimiter()
	boom := errors.New("403 page")

	for i := 0; i < 3; i++ {
		assert.Equal(t, CircuitClosed, l.State("meituan"))
		l.RecordFailure("meituan", boom)
	}

	assert.Equal(t, CircuitOpen, l.State("meituan"))
	assert.False(t, l.Allow("meituan"))
	assert.True(t, l.Allow("eleme"), "circuit is per platform")
}

func TestCircuitHalfOpenAfterResetTimeout(t *testing.T) {
	l := testLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.RecordFailure("meituan", errors.New("boom"))
	}
	assert.Equal(t, CircuitOpen, l.State("meituan"))

	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("meituan"), "open circuit admits a probe after the reset timeout")
	assert.Equal(t, CircuitHalfOpen, l.State("meituan"))

	l.RecordSuccess("meituan")
	assert.Equal(t, CircuitClosed, l.State("meituan"))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	l := testLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.RecordFailure("meituan", errors.New("boom"))
	}
	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("meituan"))

	l.RecordFailure("meituan", errors.New("still broken"))
	assert.Equal(t, CircuitOpen, l.State("meituan"))
	assert.False(t, l.Allow("meituan"))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
