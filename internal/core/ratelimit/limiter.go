// Package ratelimit implements per-identity sliding-window admission
// control: a rolling request count over the full window, a short-burst
// sub-window, and temporary block windows for violators.
package ratelimit

import (
	"sync"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

const shardCount = 64

// Config tunes the sliding window.
type Config struct {
	// Window is the span of the sustained-rate window.
	Window time.Duration
	// MaxRequests caps admitted requests per identity within Window.
	MaxRequests int
	// BurstWindow is the short sub-window guarding against spikes.
	BurstWindow time.Duration
	// BurstLimit caps requests inside BurstWindow.
	BurstLimit int
	// BlockDuration is how long a burst violation blocks the identity.
	BlockDuration time.Duration
	// SweepInterval is how often idle identity state is dropped. Zero
	// disables the background sweep.
	SweepInterval time.Duration
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Stats reports how many identities are tracked and currently blocked.
type Stats struct {
	Tracked int `json:"tracked"`
	Blocked int `json:"blocked"`
}

type clientWindow struct {
	stamps      []time.Time
	blockExpiry time.Time
}

// prune drops timestamps older than cutoff, preserving order.
func (cw *clientWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(cw.stamps) && cw.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cw.stamps = append(cw.stamps[:0], cw.stamps[i:]...)
	}
}

type shard struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

// Limiter tracks request timestamps per identity and decides admission.
// Identities hash onto a fixed set of shards so concurrent requests from
// different clients rarely contend. Construct with New.
type Limiter struct {
	cfg      Config
	shards   [shardCount]shard
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a limiter and starts its background sweep when configured.
func New(cfg Config) *Limiter {
	l := &Limiter{cfg: cfg, stopCh: make(chan struct{})}
	for i := range l.shards {
		l.shards[i].clients = make(map[string]*clientWindow)
	}
	if cfg.SweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Admit decides whether one request from id may proceed right now. An
// identity inside an active block window is denied with the remaining
// block time; the block is never re-extended by further attempts.
func (l *Limiter) Admit(id string) core.Decision {
	now := l.now()
	sh := l.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cw := sh.clients[id]
	if cw == nil {
		cw = &clientWindow{}
		sh.clients[id] = cw
	}

	if cw.blockExpiry.After(now) {
		return deny(now, cw.blockExpiry.Sub(now))
	}

	cw.prune(now.Add(-l.cfg.Window))

	if l.cfg.BurstLimit > 0 && l.cfg.BurstWindow > 0 {
		burstFrom := now.Add(-l.cfg.BurstWindow)
		burst := 0
		for i := len(cw.stamps) - 1; i >= 0 && !cw.stamps[i].Before(burstFrom); i-- {
			burst++
		}
		if burst >= l.cfg.BurstLimit {
			cw.blockExpiry = now.Add(l.cfg.BlockDuration)
			return deny(now, l.cfg.BlockDuration)
		}
	}

	if len(cw.stamps) >= l.cfg.MaxRequests {
		cw.blockExpiry = now.Add(l.cfg.Window)
		return deny(now, l.cfg.Window)
	}

	cw.stamps = append(cw.stamps, now)
	return core.Decision{
		Allowed:   true,
		Remaining: l.cfg.MaxRequests - len(cw.stamps),
		CheckedAt: now,
	}
}

// Stats counts tracked and blocked identities across all shards.
func (l *Limiter) Stats() Stats {
	now := l.now()
	var stats Stats
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		stats.Tracked += len(sh.clients)
		for _, cw := range sh.clients {
			if cw.blockExpiry.After(now) {
				stats.Blocked++
			}
		}
		sh.mu.Unlock()
	}
	return stats
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

// sweep drops identities whose window has drained and whose block has
// lapsed, bounding memory under identity churn.
func (l *Limiter) sweep() {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for id, cw := range sh.clients {
			cw.prune(cutoff)
			if len(cw.stamps) == 0 && !cw.blockExpiry.After(now) {
				delete(sh.clients, id)
			}
		}
		sh.mu.Unlock()
	}
}

func (l *Limiter) shardFor(id string) *shard {
	return &l.shards[fnv32a(id)%shardCount]
}

func (l *Limiter) now() time.Time {
	if l.cfg.Clock != nil {
		return l.cfg.Clock()
	}
	return time.Now().UTC()
}

func deny(now time.Time, retryAfter time.Duration) core.Decision {
	return core.Decision{
		Allowed:    false,
		Reason:     core.DenyRateLimited,
		RetryAfter: retryAfter,
		CheckedAt:  now,
	}
}

// fnv32a is FNV-1a inlined to avoid an allocation per lookup.
func fnv32a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
