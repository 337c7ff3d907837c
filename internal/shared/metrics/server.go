package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics holds the dev store collectors.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	Listeners prometheus.Gauge
}

// NewServerMetrics creates the dev store collectors and registers them.
func NewServerMetrics(registerer prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devstore",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the dev store",
		}, []string{"method", "route", "status"}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "devstore",
			Name:      "listeners",
			Help:      "Open websocket listeners",
		}),
	}
	registerer.MustRegister(m.Requests, m.Listeners)
	return m
}
