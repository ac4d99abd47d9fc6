package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(1, 3).WithClock(func() time.Time { return now })
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("tenant-a"), "request %d", i)
	}
	assert.False(t, l.Allow("tenant-a"))
	assert.True(t, l.Allow("tenant-b"), "buckets are per tenant")
	assert.True(t, l.Allow(""), "anonymous requests are not limited")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(10, 10).WithClock(func() time.Time { return now })
	defer l.Stop()

	l.Allow("a")
	now = now.Add(10 * time.Minute)
	l.Allow("b")
	now = now.Add(10 * time.Minute)
	l.Sweep()

	assert.Equal(t, 1, l.Len())
	l.Stop()
	l.Stop()
}
