// Package balance selects backend targets through pluggable weighted
// strategies and keeps their health current with periodic probing.
package balance

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

const defaultMaxInFlight = 64

// minWeight keeps a saturated but healthy target selectable.
const minWeight = 0.05

// Target describes one backend as configured.
type Target struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	HealthURL   string  `json:"health_url,omitempty"`
	CPUCores    float64 `json:"cpu_cores"`
	MemoryGB    float64 `json:"memory_gb"`
	GPU         bool    `json:"gpu"`
	Region      string  `json:"region,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MaxInFlight int     `json:"max_in_flight,omitempty"`
}

// probeURL is where the health prober looks; it falls back to the dispatch
// URL when no dedicated health endpoint is configured.
func (t Target) probeURL() string {
	if t.HealthURL != "" {
		return t.HealthURL
	}
	return t.URL
}

// TargetStatus is a point-in-time view of one target.
type TargetStatus struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	Region       string        `json:"region,omitempty"`
	Healthy      bool          `json:"healthy"`
	Weight       float64       `json:"weight"`
	InFlight     int64         `json:"in_flight"`
	Failures     int           `json:"failures"`
	ProbeLatency time.Duration `json:"probe_latency,omitempty"`
	LastProbe    time.Time     `json:"last_probe"`
}

// Config tunes selection and health probing.
type Config struct {
	// Strategy picks the selection algorithm; see the Strategy* constants.
	// Empty means round robin.
	Strategy string
	// Targets is the backend topology. At least one target is required.
	Targets []Target
	// ProbeInterval is the cadence of the health cycle. Zero disables
	// probing; targets then change health only via ReportHealth.
	ProbeInterval time.Duration
	// ProbeTimeout bounds each probe request.
	ProbeTimeout time.Duration
	// MaxFailures is the consecutive-failure streak that excludes a target
	// from selection.
	MaxFailures int
	// OnHealthChange, when set, observes every health transition. It must
	// not call back into the balancer.
	OnHealthChange func(id string, healthy bool)
	// HTTPClient overrides the probe client for tests.
	HTTPClient *http.Client
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// slot carries the runtime state the balancer keeps per target. All fields
// except inflight are guarded by Balancer.mu; inflight is atomic so
// dispatch accounting never takes the lock.
type slot struct {
	target    Target
	healthy   bool
	failures  int
	latency   time.Duration
	lastProbe time.Time
	weight    float64
	inflight  atomic.Int64
}

// maxInFlight is the load normalizer for the weight computation.
func (s *slot) maxInFlight() int64 {
	if s.target.MaxInFlight > 0 {
		return int64(s.target.MaxInFlight)
	}
	return defaultMaxInFlight
}

// currentWeight folds the live load fraction into the capability weight.
func (s *slot) currentWeight() float64 {
	load := float64(s.inflight.Load()) / float64(s.maxInFlight())
	if load > 1 {
		load = 1
	}
	w := s.weight * (1 - load)
	if w < minWeight {
		w = minWeight
	}
	return w
}

// Balancer distributes dispatches across the healthy subset of its
// targets. Construct with New, then Start to begin probing.
type Balancer struct {
	cfg      Config
	strategy strategy
	client   *http.Client

	mu    sync.RWMutex
	slots []*slot
	byID  map[string]*slot

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New validates cfg and builds a balancer. All targets start healthy; the
// first probe cycle corrects that view.
func New(cfg Config) (*Balancer, error) {
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("at least one backend target is required")
	}

	strat, err := strategyFor(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	b := &Balancer{
		cfg:      cfg,
		strategy: strat,
		byID:     make(map[string]*slot, len(cfg.Targets)),
		stopCh:   make(chan struct{}),
	}

	for _, target := range cfg.Targets {
		if target.ID == "" {
			return nil, fmt.Errorf("backend target with URL %q has no id", target.URL)
		}
		if _, dup := b.byID[target.ID]; dup {
			return nil, fmt.Errorf("duplicate backend target id %q", target.ID)
		}
		if _, err := url.ParseRequestURI(target.URL); err != nil {
			return nil, fmt.Errorf("backend target %q has invalid URL: %w", target.ID, err)
		}
		s := &slot{target: target, healthy: true}
		b.slots = append(b.slots, s)
		b.byID[target.ID] = s
	}
	b.recomputeWeights()

	b.client = cfg.HTTPClient
	if b.client == nil {
		b.client = &http.Client{Timeout: b.probeTimeout()}
	}

	return b, nil
}

// StrategyName reports which selection algorithm is active.
func (b *Balancer) StrategyName() string {
	return b.strategy.name()
}

// Pick returns a healthy target for the next dispatch, or
// core.ErrNoHealthyBackend when every target is excluded.
func (b *Balancer) Pick(origin *core.Origin) (Target, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	healthy := make([]*slot, 0, len(b.slots))
	for _, s := range b.slots {
		if s.healthy {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) == 0 {
		return Target{}, core.ErrNoHealthyBackend
	}

	return b.strategy.pick(healthy, origin).target, nil
}

// Begin marks one dispatch in flight on target id.
func (b *Balancer) Begin(id string) {
	if s := b.slotFor(id); s != nil {
		s.inflight.Add(1)
	}
}

// End clears the in-flight mark set by Begin.
func (b *Balancer) End(id string) {
	if s := b.slotFor(id); s != nil {
		s.inflight.Add(-1)
	}
}

// ReportHealth feeds one health observation for target id: success resets
// the failure streak and restores the target, failure extends the streak
// and excludes the target once it reaches the configured maximum.
func (b *Balancer) ReportHealth(id string, healthy bool) {
	b.report(id, healthy, 0)
}

func (b *Balancer) report(id string, ok bool, latency time.Duration) {
	b.mu.Lock()
	s := b.byID[id]
	if s == nil {
		b.mu.Unlock()
		return
	}

	changed := false
	s.lastProbe = b.now()
	if ok {
		s.failures = 0
		if latency > 0 && latency != s.latency {
			s.latency = latency
			b.recomputeWeights()
		}
		if !s.healthy {
			s.healthy = true
			changed = true
		}
	} else {
		s.failures++
		if s.healthy && s.failures >= b.maxFailures() {
			s.healthy = false
			changed = true
		}
	}
	nowHealthy := s.healthy
	b.mu.Unlock()

	if changed && b.cfg.OnHealthChange != nil {
		b.cfg.OnHealthChange(id, nowHealthy)
	}
}

// Snapshot lists all targets with their current state.
func (b *Balancer) Snapshot() []TargetStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	statuses := make([]TargetStatus, 0, len(b.slots))
	for _, s := range b.slots {
		statuses = append(statuses, TargetStatus{
			ID:           s.target.ID,
			URL:          s.target.URL,
			Region:       s.target.Region,
			Healthy:      s.healthy,
			Weight:       s.currentWeight(),
			InFlight:     s.inflight.Load(),
			Failures:     s.failures,
			ProbeLatency: s.latency,
			LastProbe:    s.lastProbe,
		})
	}
	return statuses
}

// HealthyCount reports how many targets are currently selectable.
func (b *Balancer) HealthyCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, s := range b.slots {
		if s.healthy {
			count++
		}
	}
	return count
}

// Start launches the periodic health cycle when probing is configured.
func (b *Balancer) Start() {
	if b.cfg.ProbeInterval > 0 {
		go b.probeLoop()
	}
}

// Close stops the health cycle.
func (b *Balancer) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// recomputeWeights derives the capability weight per target: base 1, plus
// normalized CPU and memory capacity, doubled for GPU targets, damped by
// observed probe latency. Must be called with b.mu held for writing.
func (b *Balancer) recomputeWeights() {
	var maxCPU, maxMem float64
	for _, s := range b.slots {
		if s.target.CPUCores > maxCPU {
			maxCPU = s.target.CPUCores
		}
		if s.target.MemoryGB > maxMem {
			maxMem = s.target.MemoryGB
		}
	}

	for _, s := range b.slots {
		w := 1.0
		if maxCPU > 0 {
			w += s.target.CPUCores / maxCPU
		}
		if maxMem > 0 {
			w += s.target.MemoryGB / maxMem
		}
		if s.target.GPU {
			w *= 2
		}
		w *= 1 / (1 + s.latency.Seconds())
		s.weight = w
	}
}

func (b *Balancer) slotFor(id string) *slot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[id]
}

func (b *Balancer) maxFailures() int {
	if b.cfg.MaxFailures > 0 {
		return b.cfg.MaxFailures
	}
	return 3
}

func (b *Balancer) probeTimeout() time.Duration {
	if b.cfg.ProbeTimeout > 0 {
		return b.cfg.ProbeTimeout
	}
	return 5 * time.Second
}

func (b *Balancer) now() time.Time {
	if b.cfg.Clock != nil {
		return b.cfg.Clock()
	}
	return time.Now().UTC()
}
