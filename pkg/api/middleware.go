package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/logging"
	"github.com/docfold/memoria/pkg/observability"
)

// securityHeadersMiddleware adds standard security headers to responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestMiddleware traces, times and counts every request. Metric labels
// use the chi route pattern so path parameters do not explode cardinality.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx, span := observability.StartSpan(r.Context(), "http.request")
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		span.SetAttributes(
			observability.AttrHTTPMethod.String(r.Method),
			observability.AttrHTTPRoute.String(route),
			observability.AttrHTTPStatus.Int(status),
		)
		span.End()

		metricRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metricRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())

		logging.Debug(logging.CategoryServer, "request", "handled http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
		})
	})
}

// authMiddleware requires the configured bearer token on /api routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if extractBearerToken(r) != s.cfg.AuthToken {
			respondError(w, http.StatusUnauthorized, apperrors.New(apperrors.ErrCodeInvalidInput, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicMetrics && s.cfg.AuthToken != "" && extractBearerToken(r) != s.cfg.AuthToken {
		respondError(w, http.StatusUnauthorized, apperrors.New(apperrors.ErrCodeInvalidInput, "unauthorized"))
		return
	}
	s.refreshGauges()
	promhttp.Handler().ServeHTTP(w, r)
}

// extractBearerToken pulls a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
