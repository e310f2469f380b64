// Package metrics holds the Prometheus collectors of the scheduler.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Bookings        *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	SeriesMembers   *prometheus.CounterVec
	Cancellations   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Business-rule rejections by kind",
		}, []string{"kind"}),
		SeriesMembers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_members_total",
			Help:      "Recurring series occurrences by result",
		}, []string{"result"}),
		Cancellations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "The total number of cancelled appointments",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) BookingAccepted() {
	if m != nil {
		m.Bookings.WithLabelValues("accepted").Inc()
	}
}

func (m *Metrics) BookingRejected(kind string) {
	if m != nil {
		m.Bookings.WithLabelValues("rejected").Inc()
		m.Rejections.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) BookingFailed() {
	if m != nil {
		m.Bookings.WithLabelValues("error").Inc()
	}
}

// Series records the outcome of one series generation. skipped is keyed by
// skip reason.
func (m *Metrics) Series(created int, skipped map[string]int) {
	if m == nil {
		return
	}
	m.SeriesMembers.WithLabelValues("created").Add(float64(created))
	for reason, n := range skipped {
		m.SeriesMembers.WithLabelValues("skipped_" + reason).Add(float64(n))
	}
}

func (m *Metrics) Cancelled(n int) {
	if m != nil {
		m.Cancellations.Add(float64(n))
	}
}

// Middleware observes request latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.RequestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
