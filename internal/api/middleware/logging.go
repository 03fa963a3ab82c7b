package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

// RequestIDContextKey holds the request id assigned by Logging.
const RequestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// UnmatchedRoute is the route label of requests no route pattern matched.
const UnmatchedRoute = "unmatched"

// GetRequestID returns the request id stored in ctx, if any.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// Logging assigns a request id, logs each request once it completes and
// records it in reg when reg is non-nil.
func Logging(logger *logging.Logger, reg *metrics.Registry) func(http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := UnmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			if reg != nil {
				reg.APIRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				reg.APILatency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			}

			logger.Info("request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
			)
		})
	}
}

// ContentType sets the JSON content type on API responses.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
