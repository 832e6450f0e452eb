package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1), "refill is capped at capacity")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.AllowRule("fmp", Rule{Capacity: 1}))
	assert.False(t, l.AllowRule("fmp", Rule{Capacity: 1}))
	assert.True(t, l.AllowRule("yahoo", Rule{Capacity: 1}))
}

func TestLimiter_ZeroCapacityIsUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		assert.True(t, l.AllowRule("alphavantage", Rule{}))
	}
}
