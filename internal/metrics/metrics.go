package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for zapdesk
type Metrics struct {
	// Socket
	SocketEventsTotal     *prometheus.CounterVec
	SocketReconnectsTotal prometheus.Counter
	SocketConnected       prometheus.Gauge

	// Recipients
	RecipientsResolvedTotal *prometheus.CounterVec
	RecipientsDroppedTotal  prometheus.Counter

	// Backend REST client
	BackendRequestsTotal          *prometheus.CounterVec
	BackendRequestDurationSeconds *prometheus.HistogramVec

	// Campaigns
	CampaignActionsTotal *prometheus.CounterVec
	CampaignsTracked     prometheus.Gauge
	NotificationsActive  prometheus.Gauge

	// Dashboard HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SocketEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapdesk_socket_events_total",
				Help: "Total number of socket events received",
			},
			[]string{"event"},
		),
		SocketReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zapdesk_socket_reconnects_total",
				Help: "Total number of socket reconnect attempts",
			},
		),
		SocketConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapdesk_socket_connected",
				Help: "1 when the realtime socket is connected",
			},
		),

		RecipientsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapdesk_recipients_resolved_total",
				Help: "Total number of recipients resolved",
			},
			[]string{"origin"},
		),
		RecipientsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zapdesk_recipients_dropped_total",
				Help: "Total number of uploaded rows dropped for a missing or short phone",
			},
		),

		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapdesk_backend_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"method", "status"},
		),
		BackendRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zapdesk_backend_request_duration_seconds",
				Help:    "Backend API request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),

		CampaignActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapdesk_campaign_actions_total",
				Help: "Total number of campaign control actions",
			},
			[]string{"action", "result"},
		),
		CampaignsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapdesk_campaigns_tracked",
				Help: "Number of campaigns in the local cache",
			},
		),
		NotificationsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zapdesk_notifications_active",
				Help: "Number of unexpired campaign error notifications",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zapdesk_http_requests_total",
				Help: "Total number of dashboard HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zapdesk_http_request_duration_seconds",
				Help:    "Dashboard HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SocketEventsTotal,
		m.SocketReconnectsTotal,
		m.SocketConnected,
		m.RecipientsResolvedTotal,
		m.RecipientsDroppedTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDurationSeconds,
		m.CampaignActionsTotal,
		m.CampaignsTracked,
		m.NotificationsActive,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSocketEvent increments the received socket event counter
func IncSocketEvent(event string) {
	if m := Global(); m != nil {
		m.SocketEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncSocketReconnect increments the reconnect counter
func IncSocketReconnect() {
	if m := Global(); m != nil {
		m.SocketReconnectsTotal.Inc()
	}
}

// SetSocketConnected records the socket connection state
func SetSocketConnected(connected bool) {
	m := Global()
	if m == nil {
		return
	}
	if connected {
		m.SocketConnected.Set(1)
	} else {
		m.SocketConnected.Set(0)
	}
}

// AddRecipientsResolved records a resolution pass
func AddRecipientsResolved(origin string, resolved, dropped int) {
	m := Global()
	if m == nil {
		return
	}
	m.RecipientsResolvedTotal.WithLabelValues(origin).Add(float64(resolved))
	m.RecipientsDroppedTotal.Add(float64(dropped))
}

// ObserveBackendRequest records one backend API call
func ObserveBackendRequest(method, status string, seconds float64) {
	m := Global()
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(method, status).Inc()
	m.BackendRequestDurationSeconds.WithLabelValues(method).Observe(seconds)
}

// IncCampaignAction increments the campaign action counter
func IncCampaignAction(action string, err error) {
	m := Global()
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CampaignActionsTotal.WithLabelValues(action, result).Inc()
}

// SetCampaignGauges updates the cache size gauges
func SetCampaignGauges(campaigns, notifications int) {
	m := Global()
	if m == nil {
		return
	}
	m.CampaignsTracked.Set(float64(campaigns))
	m.NotificationsActive.Set(float64(notifications))
}
