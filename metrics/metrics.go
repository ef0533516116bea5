// Package metrics exposes Prometheus instruments for the session client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "findcourse"

// Refresh outcomes.
const (
	RefreshSuccess   = "success"
	RefreshFailed    = "failed"
	RefreshNoToken   = "no_refresh_token"
	RefreshDeduped   = "deduplicated"
	RefreshBadFormat = "bad_token"
)

type Metrics struct {
	refreshes *prometheus.CounterVec
	logouts   *prometheus.CounterVec
	requests  *prometheus.HistogramVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Session logouts by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Remote API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
	}
	reg.MustRegister(m.refreshes, m.logouts, m.requests)
	return m
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Logout(reason string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(reason).Inc()
}

// Request records one API call. status 0 means the call never got a response.
func (m *Metrics) Request(endpoint string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(took.Seconds())
}

// Refreshes returns the refresh counter, for tests and dashboards.
func (m *Metrics) Refreshes() *prometheus.CounterVec { return m.refreshes }

// Logouts returns the logout counter.
func (m *Metrics) Logouts() *prometheus.CounterVec { return m.logouts }
