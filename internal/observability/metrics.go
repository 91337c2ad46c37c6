package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// Metrics collects Prometheus metrics for the HTTP process and the finance core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	entriesPosted   *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	integrity       *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malimina_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "malimina_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malimina_ledger_entries_total",
		Help: "Ledger entries posted by type, direction and scope.",
	}, []string{"type", "direction", "scope"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malimina_finance_rejections_total",
		Help: "Finance operations rejected by business rules.",
	}, []string{"op", "reason"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malimina_credit_transitions_total",
		Help: "Credit request state transitions by target state.",
	}, []string{"state"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malimina_integrity_escalations_total",
		Help: "Paired writes that failed and need operator attention.",
	}, []string{"op"})
	registry.MustRegister(requests, duration, posted, rejections, transitions, integrity)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		entriesPosted:   posted,
		rejections:      rejections,
		transitions:     transitions,
		integrity:       integrity,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// EntryPosted counts a committed ledger entry.
func (m *Metrics) EntryPosted(entryType, direction string, master bool) {
	if m == nil {
		return
	}
	scope := "wallet"
	if master {
		scope = "master"
	}
	m.entriesPosted.WithLabelValues(entryType, direction, scope).Inc()
}

// Rejected counts a business rule rejection.
func (m *Metrics) Rejected(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(op, rejectionReason(err)).Inc()
}

// CreditTransition counts a committed credit state change.
func (m *Metrics) CreditTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// IntegrityFailure counts a paired write that could not be completed.
func (m *Metrics) IntegrityFailure(op string) {
	if m == nil {
		return
	}
	m.integrity.WithLabelValues(op).Inc()
}

func rejectionReason(err error) string {
	var ineligible *shared.IneligibleError
	switch {
	case errors.As(err, &ineligible):
		return "ineligible_" + ineligible.Rule
	case errors.Is(err, shared.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
