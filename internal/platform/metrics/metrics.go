package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Record metrics
	recordsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_records_created_total",
			Help: "Total number of records created",
		},
		[]string{"kind"},
	)

	patientsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_patients_deleted_total",
			Help: "Total number of patients deleted, children included",
		},
	)

	importRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_import_rows_total",
			Help: "Bulk import rows by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency labelled by route template,
// so /patients/1 and /patients/2 share one series.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				var sc interface{ StatusCode() int }
				if errors.As(err, &he) {
					status = he.Code
				} else if errors.As(err, &sc) {
					status = sc.StatusCode()
				} else {
					status = http.StatusInternalServerError
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordCreated counts a created patient, visit or medication.
func RecordCreated(kind string) {
	recordsCreated.WithLabelValues(kind).Inc()
}

// RecordPatientDeleted counts a cascade delete.
func RecordPatientDeleted() {
	patientsDeleted.Inc()
}

// RecordImport counts the outcome of one bulk import.
func RecordImport(created, skipped int) {
	importRows.WithLabelValues("created").Add(float64(created))
	importRows.WithLabelValues("skipped").Add(float64(skipped))
}
