// Package breaker wraps downstream operations in a circuit breaker so a
// failing backend is failed fast for a cooldown period instead of hammered.
package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

// Operation is a breaker-protected unit of work.
type Operation func(ctx context.Context) (any, error)

// Config tunes trip and recovery behavior.
type Config struct {
	// Name labels the breaker in logs and snapshots.
	Name string
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold uint32
	// ResetTimeout is how long the breaker stays open before the next call
	// may probe the backend again.
	ResetTimeout time.Duration
	// HalfOpenSuccesses is the consecutive-success count, while half-open,
	// that closes the breaker. It also caps concurrent half-open probes.
	HalfOpenSuccesses uint32
	// OnStateChange, when set, observes every state transition.
	OnStateChange func(name, from, to string)
}

func (cfg Config) withDefaults() Config {
	if cfg.Name == "" {
		cfg.Name = "backend"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses == 0 {
		cfg.HalfOpenSuccesses = 3
	}
	return cfg
}

// Counts is a cumulative tally of execution attempts. Rejected counts
// fail-fast attempts that never reached the operation, so
// Total = Successes + Failures + Rejected.
type Counts struct {
	Total     int64 `json:"total"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Rejected  int64 `json:"rejected"`
}

// Breaker guards one downstream operation.
type Breaker struct {
	cb        *gobreaker.CircuitBreaker
	total     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	rejected  atomic.Int64
}

// New builds a breaker from cfg. Transitions follow consecutive failures:
// the breaker opens at FailureThreshold, probes again after ResetTimeout,
// and closes after HalfOpenSuccesses consecutive successful probes.
func New(cfg Config) *Breaker {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenSuccesses,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, stateName(from), stateName(to))
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs op under the breaker. While open it fails fast with
// core.ErrBreakerOpen and never invokes op. Errors returned by op are
// counted and propagated unchanged. A context cancellation inside op
// counts as a failure like any other error.
func (b *Breaker) Execute(ctx context.Context, op Operation) (any, error) {
	b.total.Add(1)

	result, err := b.cb.Execute(func() (any, error) {
		return op(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejected.Add(1)
			return nil, core.ErrBreakerOpen
		}
		b.failures.Add(1)
		return nil, err
	}

	b.successes.Add(1)
	return result, nil
}

// State reports the current mode: closed, open, or half_open. The open to
// half_open transition is evaluated lazily, so reading the state after the
// reset timeout reflects half_open.
func (b *Breaker) State() string {
	return stateName(b.cb.State())
}

// Counts returns the cumulative attempt counters.
func (b *Breaker) Counts() Counts {
	return Counts{
		Total:     b.total.Load(),
		Successes: b.successes.Load(),
		Failures:  b.failures.Load(),
		Rejected:  b.rejected.Load(),
	}
}

// Name returns the configured breaker label.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
