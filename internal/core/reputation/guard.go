// Package reputation escalates repeat-offender identities to a deny-list
// that holds independently of instantaneous request rate. Promotion is
// permanent for the process lifetime; an explicit administrative clear is
// the only way off the list.
package reputation

import (
	"sort"
	"sync"
	"time"
)

// Config tunes promotion and counter retention.
type Config struct {
	// Threshold is the activity count above which an identity is promoted
	// to the deny-list.
	Threshold int
	// Retention bounds how long a counter accumulates before it restarts.
	Retention time.Duration
	// SweepInterval is how often stale counters are dropped. Zero disables
	// the background sweep.
	SweepInterval time.Duration
	// Clock overrides time.Now for tests.
	Clock func() time.Time
	// OnPromote, when set, observes each promotion to the deny-list.
	OnPromote func(id string, count int)
}

// Stats reports tracked counters and deny-list size.
type Stats struct {
	Tracked int `json:"tracked"`
	Denied  int `json:"denied"`
}

type record struct {
	count     int
	firstSeen time.Time
}

// Guard tracks per-identity activity counters and the deny-list. All
// methods are safe for concurrent use.
type Guard struct {
	cfg      Config
	mu       sync.Mutex
	records  map[string]*record
	denied   map[string]time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a guard and starts its background sweep when configured.
func New(cfg Config) *Guard {
	g := &Guard{
		cfg:     cfg,
		records: make(map[string]*record),
		denied:  make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go g.sweepLoop()
	}
	return g
}

// Denied reports whether id is on the deny-list.
func (g *Guard) Denied(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.denied[id]
	return ok
}

// Record notes one admitted request from id and reports whether this
// crossing promoted the identity to the deny-list. A counter older than
// the retention window restarts before counting.
func (g *Guard) Record(id string) bool {
	promoted, count := g.record(id)
	if promoted && g.cfg.OnPromote != nil {
		g.cfg.OnPromote(id, count)
	}
	return promoted
}

func (g *Guard) record(id string) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.denied[id]; ok {
		return false, 0
	}

	now := g.now()
	rec := g.records[id]
	if rec == nil || (g.cfg.Retention > 0 && now.Sub(rec.firstSeen) > g.cfg.Retention) {
		rec = &record{firstSeen: now}
		g.records[id] = rec
	}

	rec.count++
	if rec.count <= g.cfg.Threshold {
		return false, rec.count
	}

	// Counter state is no longer consulted once the identity is denied.
	g.denied[id] = now
	delete(g.records, id)
	return true, rec.count
}

// Clear removes id from the deny-list and reports whether it was present.
func (g *Guard) Clear(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.denied[id]; !ok {
		return false
	}
	delete(g.denied, id)
	return true
}

// DenyList returns the denied identities in lexical order.
func (g *Guard) DenyList() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.denied))
	for id := range g.denied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats counts live counters and denied identities.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{Tracked: len(g.records), Denied: len(g.denied)}
}

// Close stops the background sweep.
func (g *Guard) Close() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

func (g *Guard) sweepLoop() {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stopCh:
			return
		}
	}
}

// sweep drops counters whose retention window has lapsed. The deny-list is
// never swept.
func (g *Guard) sweep() {
	if g.cfg.Retention <= 0 {
		return
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, rec := range g.records {
		if now.Sub(rec.firstSeen) > g.cfg.Retention {
			delete(g.records, id)
		}
	}
}

func (g *Guard) now() time.Time {
	if g.cfg.Clock != nil {
		return g.cfg.Clock()
	}
	return time.Now().UTC()
}
