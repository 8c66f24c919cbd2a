package integration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendadeeznuts1111/warden/internal/core/balance"
	"github.com/brendadeeznuts1111/warden/internal/core/breaker"
	"github.com/brendadeeznuts1111/warden/internal/core/cache"
	"github.com/brendadeeznuts1111/warden/internal/core/engine"
	"github.com/brendadeeznuts1111/warden/internal/core/ratelimit"
	"github.com/brendadeeznuts1111/warden/internal/core/reputation"
	"github.com/brendadeeznuts1111/warden/internal/observability"
	"github.com/brendadeeznuts1111/warden/internal/server"
	"github.com/brendadeeznuts1111/warden/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// newGateServer wires a full gate in front of a throwaway backend and binds
// the server to IPv4 loopback explicitly (avoiding IPv6-only defaults),
// skipping when the sandbox refuses to open sockets.
func newGateServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fast response"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("slow response"))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	balancer, err := balance.New(balance.Config{
		Strategy:    balance.StrategyRoundRobin,
		Targets:     []balance.Target{{ID: "primary", URL: backend.URL}},
		MaxFailures: 3,
	})
	require.NoError(t, err)

	gate, err := engine.New(engine.Components{
		Guard:    reputation.New(reputation.Config{Threshold: 100000, Retention: time.Hour}),
		Limiter:  ratelimit.New(ratelimit.Config{Window: time.Minute, MaxRequests: 100000, BurstWindow: time.Second, BurstLimit: 100000, BlockDuration: time.Minute}),
		Cache:    cache.New(cache.Config{MaxSize: 128, TTL: time.Minute}),
		Breaker:  breaker.New(breaker.Config{Name: "backend", FailureThreshold: 50, ResetTimeout: time.Minute, HalfOpenSuccesses: 1}),
		Balancer: balancer,
	})
	require.NoError(t, err)
	t.Cleanup(gate.Close)

	srv := server.New("127.0.0.1", 0, gate, server.Options{})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping gate server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "test")

	initMetricsOrSkip(t)

	handlers.InitHealthManager("test")

	ts, client := newGateServer(t)
	serverURL := ts.URL

	const numRequests = 50
	const numWorkers = 10

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		clientID := fmt.Sprintf("load-%d", w)
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var path string
				switch reqNum % 4 {
				case 0:
					path = "/gate/proxy/fast"
				case 1:
					path = "/gate/proxy/slow"
				case 2:
					path = "/gate/proxy/missing"
				default:
					path = "/health"
				}

				req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
				if err != nil {
					continue
				}
				req.Header.Set("X-Client-ID", clientID)
				resp, err := client.Do(req)
				if err == nil {
					require.NoError(t, resp.Body.Close())
				}
			}
		}()
	}
	wg.Wait()

	// A few admission probes so the admission counter reports too.
	for i := 0; i < 3; i++ {
		body := bytes.NewReader([]byte(`{"client_id":"probe"}`))
		resp, err := client.Post(serverURL+"/gate/admit", "application/json", body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	elapsed := time.Since(start)

	resp, err := client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.Contains(t, metricsContent, "test_gate_dispatches_total", "Should have dispatch metrics")
	assert.Contains(t, metricsContent, "test_gate_cache_lookups_total", "Should have cache metrics")
	assert.Contains(t, metricsContent, "test_gate_admission_decisions_total", "Should have admission metrics")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "test")

	initMetricsOrSkip(t)

	handlers.InitHealthManager("test")

	ts, client := newGateServer(t)
	serverURL := ts.URL

	req, err := http.NewRequest(http.MethodGet, serverURL+"/gate/proxy/fast", nil)
	require.NoError(t, err)
	req.Header.Set("X-Client-ID", "format-test")
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t,
		contentType == "text/plain; version=0.0.4" ||
			contentType == "text/plain; version=0.0.4; charset=utf-8",
		"Expected Prometheus content type, got: %s", contentType)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	metricsContent := string(body)

	lines := strings.Split(strings.TrimSpace(metricsContent), "\n")
	hasValidMetrics := false
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			hasValidMetrics = true
			break
		}
	}
	assert.True(t, hasValidMetrics, "Should have valid Prometheus metric lines")

	metricLines := 0
	for _, line := range lines {
		if !strings.HasPrefix(line, "#") && strings.TrimSpace(line) != "" {
			metricLines++
		}
	}
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "test")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	handlers.InitHealthManager("test")

	ts, client := newGateServer(t)
	serverURL := ts.URL

	resp, err := client.Get(serverURL + "/gate/status")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
