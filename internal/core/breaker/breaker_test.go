package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

var errBackend = errors.New("backend exploded")

func failingOp(calls *int) Operation {
	return func(ctx context.Context) (any, error) {
		*calls++
		return nil, errBackend
	}
}

func succeedingOp(calls *int) Operation {
	return func(ctx context.Context) (any, error) {
		*calls++
		return "ok", nil
	}
}

func TestBreakerPropagatesOperationError(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 5, ResetTimeout: time.Minute})

	calls := 0
	_, err := b.Execute(context.Background(), failingOp(&calls))
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, 1, calls)
	require.Equal(t, "closed", b.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 5, ResetTimeout: time.Minute})

	calls := 0
	for i := 0; i < 5; i++ {
		_, err := b.Execute(context.Background(), failingOp(&calls))
		require.ErrorIs(t, err, errBackend)
	}
	require.Equal(t, "open", b.State())
	require.Equal(t, 5, calls)

	// The sixth call fails fast without invoking the operation.
	_, err := b.Execute(context.Background(), failingOp(&calls))
	require.ErrorIs(t, err, core.ErrBreakerOpen)
	require.Equal(t, 5, calls)

	counts := b.Counts()
	require.Equal(t, int64(6), counts.Total)
	require.Equal(t, int64(5), counts.Failures)
	require.Equal(t, int64(1), counts.Rejected)
}

func TestBreakerHalfOpenProbeAfterResetTimeout(t *testing.T) {
	b := New(Config{
		Name:              "test",
		FailureThreshold:  2,
		ResetTimeout:      50 * time.Millisecond,
		HalfOpenSuccesses: 2,
	})

	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), failingOp(&calls))
	}
	require.Equal(t, "open", b.State())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, "half_open", b.State())

	// Probes execute the operation again; two successes close the breaker.
	_, err := b.Execute(context.Background(), succeedingOp(&calls))
	require.NoError(t, err)
	require.Equal(t, "half_open", b.State())

	_, err = b.Execute(context.Background(), succeedingOp(&calls))
	require.NoError(t, err)
	require.Equal(t, "closed", b.State())
	require.Equal(t, 4, calls)
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New(Config{
		Name:              "test",
		FailureThreshold:  2,
		ResetTimeout:      50 * time.Millisecond,
		HalfOpenSuccesses: 3,
	})

	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), failingOp(&calls))
	}
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, "half_open", b.State())

	_, err := b.Execute(context.Background(), failingOp(&calls))
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, "open", b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(name, from, to string) {
			transitions = append(transitions, from+">"+to)
		},
	})

	calls := 0
	_, _ = b.Execute(context.Background(), failingOp(&calls))
	require.Equal(t, []string{"closed>open"}, transitions)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 3, ResetTimeout: time.Minute})

	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), failingOp(&calls))
	}
	_, err := b.Execute(context.Background(), succeedingOp(&calls))
	require.NoError(t, err)

	// The streak restarted, so two more failures stay under the threshold.
	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), failingOp(&calls))
	}
	require.Equal(t, "closed", b.State())

	counts := b.Counts()
	require.Equal(t, int64(5), counts.Total)
	require.Equal(t, int64(1), counts.Successes)
	require.Equal(t, int64(4), counts.Failures)
}
