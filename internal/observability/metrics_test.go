package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `malimina_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `malimina_http_request_duration_seconds_bucket{route="/test"`)
}

func TestFinanceCounters(t *testing.T) {
	metrics := NewMetrics()

	metrics.EntryPosted("credit_repayment", "debit", false)
	metrics.EntryPosted("credit_repayment", "credit", true)
	metrics.CreditTransition("paid")
	metrics.IntegrityFailure("repay_credit")
	metrics.Rejected("repay_credit", fmt.Errorf("wrap: %w", shared.ErrInsufficientFunds))
	metrics.Rejected("request_credit", shared.Ineligible("max_credit", "over limit"))
	metrics.Rejected("noop", nil)

	body := scrape(t, metrics)
	require.Contains(t, body, `malimina_ledger_entries_total{direction="debit",scope="wallet",type="credit_repayment"} 1`)
	require.Contains(t, body, `malimina_ledger_entries_total{direction="credit",scope="master",type="credit_repayment"} 1`)
	require.Contains(t, body, `malimina_credit_transitions_total{state="paid"} 1`)
	require.Contains(t, body, `malimina_integrity_escalations_total{op="repay_credit"} 1`)
	require.Contains(t, body, `malimina_finance_rejections_total{op="repay_credit",reason="insufficient_funds"} 1`)
	require.Contains(t, body, `malimina_finance_rejections_total{op="request_credit",reason="ineligible_max_credit"} 1`)
	require.False(t, strings.Contains(body, `op="noop"`))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.EntryPosted("deposit", "credit", false)
	metrics.CreditTransition("paid")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
