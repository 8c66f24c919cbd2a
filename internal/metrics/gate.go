package metrics

import (
	"strconv"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/observability"
)

// Gate pipeline metrics following Prometheus conventions
var (
	// Admission metrics
	AdmissionDecisionsTotal = "gate_admission_decisions_total"

	// Reputation metrics
	ReputationPromotionsTotal = "gate_reputation_promotions_total"
	ReputationDeniedSize      = "gate_reputation_denied_size"

	// Cache metrics
	CacheLookupsTotal = "gate_cache_lookups_total"
	CacheSize         = "gate_cache_size"

	// Breaker metrics
	BreakerTransitionsTotal = "gate_breaker_transitions_total"
	BreakerState            = "gate_breaker_state"

	// Backend metrics
	BackendHealthTransitionsTotal = "gate_backend_health_transitions_total"
	BackendsHealthy               = "gate_backends_healthy"
	DispatchesTotal               = "gate_dispatches_total"
	DispatchDuration              = "gate_dispatch_duration_ms"
)

// RecordAdmission records one admission verdict. Denied verdicts carry the
// deny reason so rate-limit pressure and reputation bans chart separately.
func RecordAdmission(allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}

	labels := map[string]string{"outcome": outcome}
	if !allowed && reason != "" {
		labels["reason"] = reason
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AdmissionDecisionsTotal,
			1,
			labels,
		)
	}
}

// RecordReputationPromotion records an identity crossing the deny threshold
func RecordReputationPromotion() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ReputationPromotionsTotal,
			1,
			nil,
		)
	}
}

// SetReputationDeniedSize sets the current deny-list size
func SetReputationDeniedSize(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ReputationDeniedSize,
			float64(count),
			nil,
		)
	}
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CacheLookupsTotal,
			1,
			map[string]string{"result": result},
		)
	}
}

// SetCacheSize sets the current number of cached entries
func SetCacheSize(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			CacheSize,
			float64(count),
			nil,
		)
	}
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(name, from, to string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerTransitionsTotal,
			1,
			map[string]string{
				"breaker": name,
				"from":    from,
				"to":      to,
			},
		)
	}
}

// SetBreakerState sets the current breaker state as a gauge
// (0 closed, 1 half_open, 2 open) so dashboards can alert on it.
func SetBreakerState(name, state string) {
	value := 0.0
	switch state {
	case "half_open":
		value = 1.0
	case "open":
		value = 2.0
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			BreakerState,
			value,
			map[string]string{"breaker": name},
		)
	}
}

// RecordBackendHealthTransition records one backend leaving or rejoining rotation
func RecordBackendHealthTransition(backend string, healthy bool) {
	direction := "up"
	if !healthy {
		direction = "down"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BackendHealthTransitionsTotal,
			1,
			map[string]string{
				"backend":   backend,
				"direction": direction,
			},
		)
	}
}

// SetBackendsHealthy sets the current count of in-rotation backends
func SetBackendsHealthy(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			BackendsHealthy,
			float64(count),
			nil,
		)
	}
}

// RecordDispatch records one proxied backend call with its duration
func RecordDispatch(backend string, status int, fromCache bool, duration time.Duration) {
	source := "backend"
	if fromCache {
		source = "cache"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchesTotal,
			1,
			map[string]string{
				"backend": backend,
				"status":  strconv.Itoa(status),
				"source":  source,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			DispatchDuration,
			duration,
			map[string]string{"backend": backend},
		)
	}
}
