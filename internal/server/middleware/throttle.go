package middleware

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/time/rate"
)

// Throttle applies a global token-bucket ceiling across all callers of the
// control surface. Per-client fairness belongs to the admission pipeline;
// this guard only sheds load when the process as a whole is saturated.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "server overloaded, slow down").
					WithCorrelationID(GetRequestID(r.Context()))

				w.Header().Set("Retry-After", "1")
				writeErrorResponse(w, envelope, http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
