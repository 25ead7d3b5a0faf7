package services

import (
	"testing"
	"time"

	"github.com/ostehost/command-central-sub001/internal/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCircuitBreakerTripsAfterMaxAttempts(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(0, 0, clock, nil)

	for i := 0; i < 10; i++ {
		assert.True(t, b.CanProceed(), "attempt %d", i+1)
	}
	assert.False(t, b.CanProceed(), "11th attempt should trip the breaker")
	assert.True(t, b.Status().IsOpen)
	assert.False(t, b.CanProceed())

	clock.Advance(61 * time.Second)
	assert.True(t, b.CanProceed())
	assert.Equal(t, BreakerStatus{Attempts: 1, IsOpen: false}, b.Status())
}

func TestCircuitBreakerWindowStartsAtFirstAttempt(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(2, time.Minute, clock, nil)

	assert.True(t, b.CanProceed())
	clock.Advance(50 * time.Second)
	assert.True(t, b.CanProceed())
	assert.False(t, b.CanProceed())

	// 59s after the first attempt: still the same window
	clock.Advance(9 * time.Second)
	assert.False(t, b.CanProceed())

	clock.Advance(time.Second)
	assert.True(t, b.CanProceed())
}

func TestCircuitBreakerWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := utils.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(1, time.Minute, clock, zap.New(core))

	b.CanProceed()
	b.CanProceed()
	b.CanProceed()
	b.CanProceed()

	assert.Equal(t, 1, logs.FilterMessage("status circuit breaker open").Len())
}

func TestCircuitBreakerReset(t *testing.T) {
	b := NewCircuitBreaker(1, time.Hour, nil, nil)
	b.CanProceed()
	assert.False(t, b.CanProceed())

	b.Reset()
	assert.Equal(t, BreakerStatus{}, b.Status())
	assert.True(t, b.CanProceed())
}
