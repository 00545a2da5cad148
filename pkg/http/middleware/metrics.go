package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "FinFolio/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finfolio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "finfolio_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
			// analysis generation calls an LLM and can take tens of seconds
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route", "method", "class"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finfolio_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}, []string{"route"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finfolio_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8),
		}, []string{"route", "method"}),
	}
}

var (
	defaultMetrics     *httpMetrics
	defaultMetricsOnce sync.Once
)

// EchoMetrics records request metrics on the default registry, labelled by
// route template (e.g. "/api/portfolios/:id"), and logs 5xx and slow requests.
func EchoMetrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)
	})
	return echoMetrics(defaultMetrics, l, slowThreshold)
}

func echoMetrics(m *httpMetrics, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.inFlight.WithLabelValues(route).Inc()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)
			m.inFlight.WithLabelValues(route).Dec()

			res := c.Response()
			status := strconv.Itoa(res.Status)
			m.requests.WithLabelValues(route, method, status).Inc()
			m.duration.WithLabelValues(route, method, statusClass(res.Status)).Observe(elapsed.Seconds())
			m.size.WithLabelValues(route, method).Observe(float64(res.Size))

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration", elapsed),
				applogger.Int64("bytes", res.Size),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
