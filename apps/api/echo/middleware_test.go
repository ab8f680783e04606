package echoapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_rateLimiter_evictsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now
	require.Equal(t, limiterIdleTTL, rl.idleTTL)

	idle := rl.get("idle")
	rl.get("busy")
	require.Len(t, rl.visitors, 2)

	now = now.Add(limiterIdleTTL / 2)
	rl.get("busy")
	now = now.Add(limiterIdleTTL / 2)
	rl.get("busy")

	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "busy")
	assert.NotSame(t, idle, rl.get("idle"), "an evicted user gets a fresh bucket")
}

func Test_newRateLimiter_idleTTL(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		want      time.Duration
	}{
		{name: "fast refill", perSecond: 1, burst: 5, want: limiterIdleTTL},
		{name: "unlimited", perSecond: 0, burst: 5, want: limiterIdleTTL},
		{name: "slow refill", perSecond: 0.5, burst: 1000, want: 2000 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newRateLimiter(tt.perSecond, tt.burst).idleTTL)
		})
	}
}
