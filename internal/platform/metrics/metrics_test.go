package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.BookingAccepted()
	m.BookingRejected("weekend")
	m.BookingFailed()
	m.Series(3, map[string]int{"weekend": 1})
	m.Cancelled(2)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("clinic", reg)

	m.BookingAccepted()
	m.BookingAccepted()
	m.BookingRejected("slot_conflict")
	m.Series(2, map[string]int{"slot_conflict": 1})
	m.Cancelled(3)

	if got := testutil.ToFloat64(m.Bookings.WithLabelValues("accepted")); got != 2 {
		t.Errorf("expected 2 accepted bookings, got %v", got)
	}
	if got := testutil.ToFloat64(m.Rejections.WithLabelValues("slot_conflict")); got != 1 {
		t.Errorf("expected 1 slot_conflict rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.SeriesMembers.WithLabelValues("skipped_slot_conflict")); got != 1 {
		t.Errorf("expected 1 skipped member, got %v", got)
	}
	if got := testutil.ToFloat64(m.Cancellations); got != 3 {
		t.Errorf("expected 3 cancellations, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("clinic", reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "taken") })
	e.GET("/metrics", Handler(reg))

	for _, path := range []string{"/ok", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `clinic_http_request_duration_seconds_count{method="GET",route="/ok",status="200"} 1`) {
		t.Errorf("expected /ok observation in output:\n%s", body)
	}
	if !strings.Contains(body, `route="/boom",status="409"`) {
		t.Errorf("expected /boom observation with 409 in output:\n%s", body)
	}
}

func TestMiddlewarePassesErrorThrough(t *testing.T) {
	m := New("clinic", prometheus.NewRegistry())
	want := errors.New("fail")
	h := m.Middleware()(func(echo.Context) error { return want })
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := h(c); !errors.Is(err, want) {
		t.Errorf("expected error to pass through, got %v", err)
	}
}
