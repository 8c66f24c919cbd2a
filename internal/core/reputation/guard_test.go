package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuardPromotesOverThreshold(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var promotedID string
	var promotedCount int
	g := New(Config{
		Threshold: 3,
		Retention: time.Hour,
		Clock:     func() time.Time { return clock },
		OnPromote: func(id string, count int) {
			promotedID = id
			promotedCount = count
		},
	})
	defer g.Close()

	for i := 0; i < 3; i++ {
		require.False(t, g.Record("client-a"))
		require.False(t, g.Denied("client-a"))
	}

	require.True(t, g.Record("client-a"))
	require.True(t, g.Denied("client-a"))
	require.Equal(t, "client-a", promotedID)
	require.Equal(t, 4, promotedCount)

	// Further records are ignored once denied.
	require.False(t, g.Record("client-a"))
}

func TestGuardDenialOutlivesRetention(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(Config{
		Threshold: 1,
		Retention: time.Minute,
		Clock:     func() time.Time { return clock },
	})
	defer g.Close()

	g.Record("client-a")
	require.True(t, g.Record("client-a"))

	clock = clock.Add(24 * time.Hour)
	g.sweep()
	require.True(t, g.Denied("client-a"))
}

func TestGuardCounterRestartsAfterRetention(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(Config{
		Threshold: 2,
		Retention: time.Minute,
		Clock:     func() time.Time { return clock },
	})
	defer g.Close()

	require.False(t, g.Record("client-a"))
	require.False(t, g.Record("client-a"))

	// A fresh tracking period begins once the old one lapses, so the
	// identity is never promoted.
	clock = clock.Add(2 * time.Minute)
	require.False(t, g.Record("client-a"))
	require.False(t, g.Record("client-a"))
	require.False(t, g.Denied("client-a"))
}

func TestGuardClear(t *testing.T) {
	g := New(Config{Threshold: 0, Retention: time.Hour})
	defer g.Close()

	require.True(t, g.Record("client-a"))
	require.True(t, g.Denied("client-a"))

	require.True(t, g.Clear("client-a"))
	require.False(t, g.Denied("client-a"))
	require.False(t, g.Clear("client-a"))
}

func TestGuardDenyListSorted(t *testing.T) {
	g := New(Config{Threshold: 0, Retention: time.Hour})
	defer g.Close()

	for _, id := range []string{"zulu", "alpha", "mike"} {
		g.Record(id)
	}
	require.Equal(t, []string{"alpha", "mike", "zulu"}, g.DenyList())

	stats := g.Stats()
	require.Equal(t, 0, stats.Tracked)
	require.Equal(t, 3, stats.Denied)
}

func TestGuardSweepDropsStaleCounters(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(Config{
		Threshold: 100,
		Retention: time.Minute,
		Clock:     func() time.Time { return clock },
	})
	defer g.Close()

	g.Record("client-a")
	g.Record("client-b")
	require.Equal(t, 2, g.Stats().Tracked)

	clock = clock.Add(2 * time.Minute)
	g.sweep()
	require.Equal(t, 0, g.Stats().Tracked)
}
