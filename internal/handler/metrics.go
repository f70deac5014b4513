package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameplay_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gameplay_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	sessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gameplay_sessions_started_total",
		Help: "Total number of started gameplay sessions.",
	})

	// Синхронная часть хода должна укладываться в 2 секунды,
	// отсюда плотная сетка бакетов вокруг этой границы.
	choiceProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gameplay_choice_processing_seconds",
		Help:    "Synchronous choice processing duration (excluding async generation).",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	safetyInterventionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameplay_safety_interventions_total",
			Help: "Total number of safety interventions by distress level.",
		},
		[]string{"level"},
	)
)

// MetricsMiddleware собирает метрики HTTP запросов.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			// /metrics не метрифицируем, чтобы не зашумлять себя же.
			if route == "/metrics" {
				return err
			}

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			httpRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
