package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/core"
	"github.com/brendadeeznuts1111/warden/internal/core/engine"
	apperrors "github.com/brendadeeznuts1111/warden/internal/errors"
	"github.com/brendadeeznuts1111/warden/internal/metrics"
)

// ClientIDHeader carries an explicit caller identity for admission checks.
// Requests without it fall back to the connection's remote address.
const ClientIDHeader = "X-Client-ID"

// Origin coordinate headers for geo_nearest routing.
const (
	OriginLatHeader = "X-Origin-Lat"
	OriginLonHeader = "X-Origin-Lon"
)

const maxAdmitBodyBytes = 4 << 10

// GateHandlers exposes the admission pipeline over HTTP.
type GateHandlers struct {
	gate *engine.Gate
}

// NewGateHandlers wires the pipeline surface around a gate.
func NewGateHandlers(gate *engine.Gate) *GateHandlers {
	return &GateHandlers{gate: gate}
}

// AdmitRequest is the body of POST /gate/admit.
type AdmitRequest struct {
	ClientID string       `json:"client_id"`
	Origin   *core.Origin `json:"origin,omitempty"`
}

// Admit runs the reputation and rate-limit checks for one identity and
// returns the verdict. Allowed verdicts come back as 200 with the decision
// document; denials map to 429 or 403 with the standard error envelope.
func (h *GateHandlers) Admit(w http.ResponseWriter, r *http.Request) {
	var req AdmitRequest
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxAdmitBodyBytes))
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed to read request body"))
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid admission request body"))
				return
			}
		}
	}

	clientID := resolveClientID(req.ClientID, r)
	if clientID == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("client_id is required"))
		return
	}

	decision := h.gate.Admit(clientID)
	metrics.RecordAdmission(decision.Allowed, string(decision.Reason))

	if !decision.Allowed {
		admission := &core.AdmissionError{
			ClientID:   clientID,
			Reason:     decision.Reason,
			RetryAfter: decision.RetryAfter,
		}
		respondWithError(w, r, apperrors.FromGateError(r.Context(), admission))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(decision)
}

// Status reports a point-in-time snapshot across all pipeline components.
func (h *GateHandlers) Status(w http.ResponseWriter, r *http.Request) {
	stats := h.gate.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}

// BackendsResponse is the body of GET /gate/backends.
type BackendsResponse struct {
	Strategy string      `json:"strategy"`
	Backends interface{} `json:"backends"`
}

// Backends reports the balancer's current view of its targets.
func (h *GateHandlers) Backends(w http.ResponseWriter, r *http.Request) {
	stats := h.gate.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(BackendsResponse{
		Strategy: stats.Strategy,
		Backends: stats.Backends,
	})
}

// Proxy runs the full pipeline for a pass-through request: admission, cache,
// then a breaker-wrapped dispatch to a balancer-chosen backend.
func (h *GateHandlers) Proxy(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := resolveClientID("", r)
		if clientID == "" {
			respondWithError(w, r, apperrors.NewInvalidInputError("caller identity could not be determined"))
			return
		}

		backendPath := strings.TrimPrefix(r.URL.Path, prefix)
		if backendPath == "" {
			backendPath = "/"
		}
		if r.URL.RawQuery != "" {
			backendPath += "?" + r.URL.RawQuery
		}

		var body []byte
		if r.Body != nil {
			data, err := io.ReadAll(r.Body)
			if err != nil {
				respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed to read request body"))
				return
			}
			body = data
		}

		start := time.Now()
		result, err := h.gate.Handle(r.Context(), engine.Request{
			ClientID: clientID,
			Method:   r.Method,
			Path:     backendPath,
			Header:   proxyHeader(r.Header),
			Body:     body,
			Origin:   parseOrigin(r),
		})
		if err != nil {
			var admission *core.AdmissionError
			if errors.As(err, &admission) {
				metrics.RecordAdmission(false, string(admission.Reason))
			}
			respondWithError(w, r, apperrors.FromGateError(r.Context(), err))
			return
		}

		metrics.RecordAdmission(true, "")
		metrics.RecordCacheLookup(result.FromCache)
		metrics.RecordDispatch(result.Backend, result.Status, result.FromCache, time.Since(start))

		for name, values := range result.Header {
			if isHopByHop(name) {
				continue
			}
			for _, value := range values {
				w.Header().Add(name, value)
			}
		}
		if result.FromCache {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		if result.Backend != "" {
			w.Header().Set("X-Backend", result.Backend)
		}

		w.WriteHeader(result.Status)
		_, _ = w.Write(result.Body)
	}
}

// ReputationClearRequest is the body of POST /admin/reputation/clear.
type ReputationClearRequest struct {
	ClientID string `json:"client_id"`
}

// ReputationClearResponse reports whether the identity was on the deny-list.
type ReputationClearResponse struct {
	ClientID string `json:"client_id"`
	Cleared  bool   `json:"cleared"`
}

// ClearReputation removes one identity from the deny-list. This is the only
// path off the list short of a restart.
func (h *GateHandlers) ClearReputation(w http.ResponseWriter, r *http.Request) {
	var req ReputationClearRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdmitBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid clear request body"))
		return
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("client_id is required"))
		return
	}

	cleared := h.gate.ClearReputation(clientID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ReputationClearResponse{
		ClientID: clientID,
		Cleared:  cleared,
	})
}

// DenyListResponse is the body of GET /admin/reputation.
type DenyListResponse struct {
	Denied []string `json:"denied"`
	Count  int      `json:"count"`
}

// DenyList reports every identity currently promoted to the deny-list.
func (h *GateHandlers) DenyList(w http.ResponseWriter, r *http.Request) {
	denied := h.gate.DenyList()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(DenyListResponse{
		Denied: denied,
		Count:  len(denied),
	})
}

// resolveClientID picks the admission identity: explicit body value first,
// then the client header, then the connection's remote address.
func resolveClientID(explicit string, r *http.Request) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// parseOrigin reads the optional geo coordinate headers. Both must parse or
// the request is treated as origin-less.
func parseOrigin(r *http.Request) *core.Origin {
	latRaw := r.Header.Get(OriginLatHeader)
	lonRaw := r.Header.Get(OriginLonHeader)
	if latRaw == "" || lonRaw == "" {
		return nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil
	}

	return &core.Origin{Latitude: lat, Longitude: lon}
}

// proxyHeader copies the caller's headers for the backend call, dropping
// hop-by-hop fields and the gate's own control headers.
func proxyHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		switch http.CanonicalHeaderKey(name) {
		case ClientIDHeader, OriginLatHeader, OriginLonHeader:
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	return dst
}

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func isHopByHop(name string) bool {
	_, ok := hopByHopHeaders[http.CanonicalHeaderKey(name)]
	return ok
}
