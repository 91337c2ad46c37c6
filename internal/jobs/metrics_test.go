package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("credit:overdue_sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("credit:overdue_sweep").End(boom), boom)

	body := scrape(t, reg)
	require.Contains(t, body, `malimina_jobs_total{job="credit:overdue_sweep",status="success"} 1`)
	require.Contains(t, body, `malimina_jobs_total{job="credit:overdue_sweep",status="failure"} 1`)
	require.Contains(t, body, `malimina_jobs_failures_total{job="credit:overdue_sweep"} 1`)
}

func TestEscalateAndProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Escalate("credit:mirror")
	m.Escalate("")
	m.AddProcessed("credit:mirror_sweep", 3)
	m.AddProcessed("credit:mirror_sweep", 0)

	body := scrape(t, reg)
	require.Contains(t, body, `malimina_integrity_escalations_total{op="credit:mirror"} 1`)
	require.Contains(t, body, `malimina_jobs_processed_total{job="credit:mirror_sweep"} 3`)
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.Escalate("x")
}
