// monitor/monitor.go
package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/services"
)

type Metrics struct {
	OnlineViewers    prometheus.Gauge
	ActiveTables     prometheus.Gauge
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram
	Requests         *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
	Events           *prometheus.CounterVec
	StoreUp          prometheus.Gauge
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OnlineViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_viewers",
			Help:      "Number of connected websocket viewers",
		}),
		ActiveTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tables",
			Help:      "Number of open game tables",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of websocket messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Websocket message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed domain events by type",
		}, []string{"type"}),
		StoreUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the last store ping succeeded",
		}),
	}

	registry.MustRegister(
		m.OnlineViewers,
		m.ActiveTables,
		m.MessagesReceived,
		m.MessageLatency,
		m.Requests,
		m.RequestLatency,
		m.Events,
		m.StoreUp,
	)
	return m
}

// Monitor owns its registry so several instances can live in one process.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
	server    *http.Server
}

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since start",
		}, func() float64 {
			return time.Since(m.startTime).Seconds()
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// StartServer serves /metrics on its own listener.
func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Log.Infof("Metrics server listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Errorf("Metrics server error: %v", err)
		}
	}()
}

func (m *Monitor) Stop() {
	if m.server != nil {
		m.server.Close()
	}
}

func (m *Monitor) IncOnlineViewers() {
	m.metrics.OnlineViewers.Inc()
}

func (m *Monitor) DecOnlineViewers() {
	m.metrics.OnlineViewers.Dec()
}

func (m *Monitor) SetActiveTables(count int) {
	m.metrics.ActiveTables.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// ObserveRequest records one HTTP request.
func (m *Monitor) ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.metrics.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.metrics.RequestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Monitor) SetStoreUp(up bool) {
	if up {
		m.metrics.StoreUp.Set(1)
		return
	}
	m.metrics.StoreUp.Set(0)
}

// Publish counts committed events.
func (m *Monitor) Publish(event services.Event) {
	m.metrics.Events.WithLabelValues(string(event.Type)).Inc()
}
