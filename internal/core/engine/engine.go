// Package engine composes the admission and dispatch components into the
// gate a request pipeline consults before doing real work: reputation,
// then rate limit, then cache, then a breaker-wrapped dispatch against a
// balancer-chosen backend.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/core"
	"github.com/brendadeeznuts1111/warden/internal/core/balance"
	"github.com/brendadeeznuts1111/warden/internal/core/breaker"
	"github.com/brendadeeznuts1111/warden/internal/core/cache"
	"github.com/brendadeeznuts1111/warden/internal/core/ratelimit"
	"github.com/brendadeeznuts1111/warden/internal/core/reputation"
)

// maxResultBytes bounds how much of a backend response the gate will
// buffer and cache.
const maxResultBytes = 1 << 20

// Components are the built parts the gate composes. All five are required.
type Components struct {
	Guard    *reputation.Guard
	Limiter  *ratelimit.Limiter
	Cache    *cache.Cache
	Breaker  *breaker.Breaker
	Balancer *balance.Balancer
	// HTTPClient performs pass-through dispatches. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Gate is the admission-control and fault-isolation core.
type Gate struct {
	guard    *reputation.Guard
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	breaker  *breaker.Breaker
	balancer *balance.Balancer
	client   *http.Client
	clock    func() time.Time
}

// New wires the gate from its components.
func New(c Components) (*Gate, error) {
	switch {
	case c.Guard == nil:
		return nil, fmt.Errorf("reputation guard is required")
	case c.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case c.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	case c.Breaker == nil:
		return nil, fmt.Errorf("circuit breaker is required")
	case c.Balancer == nil:
		return nil, fmt.Errorf("load balancer is required")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Gate{
		guard:    c.Guard,
		limiter:  c.Limiter,
		cache:    c.Cache,
		breaker:  c.Breaker,
		balancer: c.Balancer,
		client:   client,
		clock:    c.Clock,
	}, nil
}

// Admit runs the reputation check and then the rate limiter for one
// identity. Admitted requests feed the reputation counter, so sustained
// offenders are eventually promoted to the deny-list regardless of their
// instantaneous rate.
func (g *Gate) Admit(id string) core.Decision {
	return AdmitWith(g.guard, g.limiter, id, g.clock)
}

// AdmitWith runs the same admission sequence against standalone components.
// The CLI uses this form to probe admission without a backend pool.
func AdmitWith(guard *reputation.Guard, limiter *ratelimit.Limiter, id string, clock func() time.Time) core.Decision {
	if guard.Denied(id) {
		checkedAt := time.Now().UTC()
		if clock != nil {
			checkedAt = clock()
		}
		return core.Decision{
			Allowed:   false,
			Reason:    core.DenyReputation,
			CheckedAt: checkedAt,
		}
	}

	dec := limiter.Admit(id)
	if dec.Allowed {
		guard.Record(id)
	}
	return dec
}

// CacheGet looks up a previously stored result by request fingerprint.
func (g *Gate) CacheGet(key string) (any, bool) {
	return g.cache.Get(key)
}

// CacheSet stores a result under its request fingerprint.
func (g *Gate) CacheSet(key string, value any) {
	g.cache.Set(key, value)
}

// ProtectedCall executes op under the circuit breaker.
func (g *Gate) ProtectedCall(ctx context.Context, op breaker.Operation) (any, error) {
	return g.breaker.Execute(ctx, op)
}

// PickBackend selects a healthy dispatch target.
func (g *Gate) PickBackend(origin *core.Origin) (balance.Target, error) {
	return g.balancer.Pick(origin)
}

// Backends reports the balancer's current view of its targets.
func (g *Gate) Backends() []balance.TargetStatus {
	return g.balancer.Snapshot()
}

// DenyList reports identities promoted to the deny-list.
func (g *Gate) DenyList() []string {
	return g.guard.DenyList()
}

// ClearReputation removes an identity from the deny-list.
func (g *Gate) ClearReputation(id string) bool {
	return g.guard.Clear(id)
}

// Request describes one pass-through call from the pipeline.
type Request struct {
	ClientID string
	Method   string
	// Path is the backend-relative path including any query string.
	Path   string
	Header http.Header
	Body   []byte
	Origin *core.Origin
}

// Result is the outcome of a pass-through call.
type Result struct {
	Status    int
	Header    http.Header
	Body      []byte
	Backend   string
	FromCache bool
}

// Fingerprint derives the cache key for a request line.
func Fingerprint(method, path string) string {
	return method + " " + path
}

// Handle runs the full pipeline for one request: admission, cache lookup,
// then a breaker-wrapped dispatch to a balancer-chosen backend, caching
// successful GET results on the way out.
func (g *Gate) Handle(ctx context.Context, req Request) (*Result, error) {
	dec := g.Admit(req.ClientID)
	if !dec.Allowed {
		return nil, &core.AdmissionError{
			ClientID:   req.ClientID,
			Reason:     dec.Reason,
			RetryAfter: dec.RetryAfter,
		}
	}

	key := Fingerprint(req.Method, req.Path)
	cacheable := req.Method == http.MethodGet
	if cacheable {
		if hit, ok := g.cache.Get(key); ok {
			if cached, valid := hit.(*Result); valid {
				copied := *cached
				copied.FromCache = true
				return &copied, nil
			}
		}
	}

	target, err := g.balancer.Pick(req.Origin)
	if err != nil {
		return nil, err
	}

	out, err := g.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return g.dispatch(ctx, target, req)
	})
	if err != nil {
		return nil, err
	}

	result := out.(*Result)
	if cacheable && result.Status >= 200 && result.Status < 300 {
		g.cache.Set(key, result)
	}
	return result, nil
}

// dispatch forwards the request to one backend, keeping the balancer's
// in-flight accounting and health view current. A transport failure counts
// against the target's health streak; a 5xx answer is an operation failure
// for the breaker but leaves target health to the prober.
func (g *Gate) dispatch(ctx context.Context, target balance.Target, req Request) (*Result, error) {
	g.balancer.Begin(target.ID)
	defer g.balancer.End(target.ID)

	url := strings.TrimRight(target.URL, "/") + req.Path
	hreq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for name, values := range req.Header {
		for _, value := range values {
			hreq.Header.Add(name, value)
		}
	}

	resp, err := g.client.Do(hreq)
	if err != nil {
		g.balancer.ReportHealth(target.ID, false)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		g.balancer.ReportHealth(target.ID, false)
		return nil, err
	}
	g.balancer.ReportHealth(target.ID, true)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("backend %s: %s", target.ID, resp.Status)
	}

	return &Result{
		Status:  resp.StatusCode,
		Header:  resp.Header.Clone(),
		Body:    body,
		Backend: target.ID,
	}, nil
}

// Stats aggregates component snapshots for the status surfaces.
type Stats struct {
	RateLimit  ratelimit.Stats        `json:"ratelimit"`
	Reputation reputation.Stats       `json:"reputation"`
	Cache      cache.Stats            `json:"cache"`
	Breaker    BreakerStatus          `json:"breaker"`
	Strategy   string                 `json:"strategy"`
	Backends   []balance.TargetStatus `json:"backends"`
}

// BreakerStatus pairs the breaker's mode with its cumulative counters.
type BreakerStatus struct {
	Name   string         `json:"name"`
	State  string         `json:"state"`
	Counts breaker.Counts `json:"counts"`
}

// Stats returns a point-in-time view across all five components.
func (g *Gate) Stats() Stats {
	return Stats{
		RateLimit:  g.limiter.Stats(),
		Reputation: g.guard.Stats(),
		Cache:      g.cache.Stats(),
		Breaker: BreakerStatus{
			Name:   g.breaker.Name(),
			State:  g.breaker.State(),
			Counts: g.breaker.Counts(),
		},
		Strategy: g.balancer.StrategyName(),
		Backends: g.balancer.Snapshot(),
	}
}

// Start launches the balancer's health prober.
func (g *Gate) Start() {
	g.balancer.Start()
}

// Close stops the prober and the background sweeps.
func (g *Gate) Close() {
	g.balancer.Close()
	g.limiter.Close()
	g.guard.Close()
}
