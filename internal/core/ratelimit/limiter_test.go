package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

func testConfig(clock *time.Time) Config {
	return Config{
		Window:        time.Minute,
		MaxRequests:   10,
		BurstWindow:   10 * time.Second,
		BurstLimit:    5,
		BlockDuration: 30 * time.Second,
		Clock:         func() time.Time { return *clock },
	}
}

func TestLimiterAdmitsUnderLimit(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(testConfig(&clock))
	defer l.Close()

	for i := 0; i < 10; i++ {
		dec := l.Admit("client-a")
		require.True(t, dec.Allowed, "request %d should be admitted", i+1)
		require.Equal(t, 10-(i+1), dec.Remaining)
		clock = clock.Add(6 * time.Second)
	}
}

func TestLimiterDeniesOverSustainedLimit(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(&clock)
	cfg.BurstLimit = 0 // isolate the sustained check
	l := New(cfg)
	defer l.Close()

	for i := 0; i < 10; i++ {
		require.True(t, l.Admit("client-a").Allowed)
		clock = clock.Add(time.Second)
	}

	dec := l.Admit("client-a")
	require.False(t, dec.Allowed)
	require.Equal(t, core.DenyRateLimited, dec.Reason)
	require.Equal(t, time.Minute, dec.RetryAfter)
	require.Greater(t, dec.RetryAfterSeconds(), 0)
}

func TestLimiterBurstDeniedWithSustainedQuotaLeft(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{
		Window:        time.Minute,
		MaxRequests:   100,
		BurstWindow:   10 * time.Second,
		BurstLimit:    20,
		BlockDuration: 30 * time.Second,
		Clock:         func() time.Time { return clock },
	}
	l := New(cfg)
	defer l.Close()

	for i := 0; i < 20; i++ {
		require.True(t, l.Admit("spiky").Allowed)
		clock = clock.Add(100 * time.Millisecond)
	}

	dec := l.Admit("spiky")
	require.False(t, dec.Allowed)
	require.Equal(t, core.DenyRateLimited, dec.Reason)
	require.Equal(t, 30*time.Second, dec.RetryAfter)
}

func TestLimiterRetryAfterNeverExtends(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(&clock)
	l := New(cfg)
	defer l.Close()

	// Trip the burst check.
	for i := 0; i < 5; i++ {
		require.True(t, l.Admit("client-a").Allowed)
	}
	first := l.Admit("client-a")
	require.False(t, first.Allowed)

	previous := first.RetryAfter
	for i := 0; i < 5; i++ {
		clock = clock.Add(3 * time.Second)
		dec := l.Admit("client-a")
		require.False(t, dec.Allowed)
		require.LessOrEqual(t, dec.RetryAfter, previous)
		previous = dec.RetryAfter
	}

	// Past the block expiry and burst window the client is admitted again.
	clock = clock.Add(16 * time.Second)
	require.True(t, l.Admit("client-a").Allowed)
}

func TestLimiterWindowSlides(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(&clock)
	cfg.BurstLimit = 0
	l := New(cfg)
	defer l.Close()

	for i := 0; i < 10; i++ {
		require.True(t, l.Admit("client-a").Allowed)
		clock = clock.Add(time.Second)
	}
	require.False(t, l.Admit("client-a").Allowed)

	// Once the block and the old timestamps age out, admission resumes.
	clock = clock.Add(cfg.Window + time.Second)
	dec := l.Admit("client-a")
	require.True(t, dec.Allowed)
	require.Equal(t, 9, dec.Remaining)
}

func TestLimiterIdentitiesAreIndependent(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(testConfig(&clock))
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit("noisy").Allowed)
	}
	require.False(t, l.Admit("noisy").Allowed)

	require.True(t, l.Admit("quiet").Allowed)
}

func TestLimiterSweepDropsIdleIdentities(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(testConfig(&clock))
	defer l.Close()

	for i := 0; i < 40; i++ {
		require.True(t, l.Admit(fmt.Sprintf("client-%d", i)).Allowed)
	}
	require.Equal(t, 40, l.Stats().Tracked)

	clock = clock.Add(2 * time.Minute)
	l.sweep()
	require.Equal(t, 0, l.Stats().Tracked)
}

func TestLimiterSweepKeepsBlockedIdentities(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig(&clock)
	cfg.BlockDuration = 5 * time.Minute
	l := New(cfg)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit("spiky").Allowed)
	}
	require.False(t, l.Admit("spiky").Allowed)

	// The window drains but the block must survive the sweep.
	clock = clock.Add(2 * time.Minute)
	l.sweep()

	stats := l.Stats()
	require.Equal(t, 1, stats.Tracked)
	require.Equal(t, 1, stats.Blocked)

	dec := l.Admit("spiky")
	require.False(t, dec.Allowed)
	require.Equal(t, 3*time.Minute, dec.RetryAfter)
}
