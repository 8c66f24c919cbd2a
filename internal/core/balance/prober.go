package balance

import (
	"context"
	"io"
	"net/http"
	"time"
)

// probeLoop drives the health cycle until Close.
func (b *Balancer) probeLoop() {
	ticker := time.NewTicker(b.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.probeAll()
		case <-b.stopCh:
			return
		}
	}
}

// probeAll runs one health cycle over every target. Probes run off the
// request path, so a slow backend delays only its own probe.
func (b *Balancer) probeAll() {
	b.mu.RLock()
	probes := make([]Target, 0, len(b.slots))
	for _, s := range b.slots {
		probes = append(probes, s.target)
	}
	b.mu.RUnlock()

	for _, target := range probes {
		ok, latency := b.probeOne(target)
		b.report(target.ID, ok, latency)
	}
}

// probeOne issues a single bounded health request. Timeouts and transport
// errors count as failures, as does any 4xx or 5xx status.
func (b *Balancer) probeOne(target Target) (bool, time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), b.probeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.probeURL(), nil)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return false, 0
	}
	return true, time.Since(start)
}
