package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the per-route HTTP instruments. The vecs are registered by
// the composition root and shared across routes.
type Metrics struct {
	Requests  *prometheus.CounterVec   // http_requests_total{method,route,status}
	Durations *prometheus.HistogramVec // http_request_duration_seconds{method,route}
}

func (h *Handler) withMetrics(route string, next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if h.metrics.Requests != nil {
			h.metrics.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		}
		if h.metrics.Durations != nil {
			h.metrics.Durations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

func (h *Handler) withTrace(route string, next http.Handler) http.Handler {
	tracer := otel.Tracer("tienda.http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
	})
}
