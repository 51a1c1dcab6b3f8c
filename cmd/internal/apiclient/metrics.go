package apiclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts API traffic and refresh outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	queued   prometheus.Counter
}

// NewMetrics registers the client collectors on reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "apiclient",
			Name:      "requests_total",
			Help:      "API requests by method and status class.",
		}, []string{"method", "class"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "apiclient",
			Name:      "refresh_total",
			Help:      "Token refresh calls by result.",
		}, []string{"result"}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arcweb",
			Subsystem: "apiclient",
			Name:      "queued_total",
			Help:      "Requests parked while a refresh was in flight.",
		}),
	}
	reg.MustRegister(m.requests, m.refresh, m.queued)
	return m
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) observeQueued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "network"
	}
	return strconv.Itoa(status/100) + "xx"
}
