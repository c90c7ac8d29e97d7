// metrics.go — Prometheus HTTP метрики инспектора архива.
// Регистрирует метрики: ar_http_requests_total, ar_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_http_requests_total",
			Help: "Общее количество HTTP-запросов к инспектору архива",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ar_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к инспектору архива в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Путь таблицы и id заменяются шаблонами, иначе кардинальность не ограничена
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет путь таблицы и id записи шаблонами.
// /api/v1/archive/srv.db.orders/42/display → /api/v1/archive/{table}/{id}/display
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/api/v1/catalog", "/api/v1/refresh":
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/catalog/"); ok && rest != "" {
		return "/api/v1/catalog/{table}"
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/archive/")
	if !ok || rest == "" {
		return path
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return "/api/v1/archive/{table}"
	case 2:
		return "/api/v1/archive/{table}/{id}"
	case 3:
		switch parts[2] {
		case "display", "unarchive":
			return "/api/v1/archive/{table}/{id}/" + parts[2]
		}
	}
	return "/api/v1/archive/other"
}
