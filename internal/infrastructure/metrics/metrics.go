package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quadchat"

// Metrics defines our Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	messagesPosted    prometheus.Counter
	roomsDeleted      prometheus.Counter
	storeOpDuration   *prometheus.HistogramVec
	storeConflicts    *prometheus.CounterVec
	activeConnections prometheus.Gauge
	broadcastDrops    prometheus.Counter
	requestDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_transitions_total",
			Help:      "Room transitions by operation and result.",
		}, []string{"op", "result"}),
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Messages appended to a room history.",
		}),
		roomsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_deleted_total",
			Help:      "Rooms removed because the last member left.",
		}),
		storeOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of room store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op", "result"}),
		storeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Optimistic version conflicts seen by the registry.",
		}, []string{"backend"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Frames dropped because a client buffer was full.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.transitions,
		m.messagesPosted,
		m.roomsDeleted,
		m.storeOpDuration,
		m.storeConflicts,
		m.activeConnections,
		m.broadcastDrops,
		m.requestDuration,
	)

	return m
}

// Handler exposes the private registry at /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTransition(op, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IncMessagesPosted() {
	if m == nil {
		return
	}
	m.messagesPosted.Inc()
}

func (m *Metrics) IncRoomsDeleted() {
	if m == nil {
		return
	}
	m.roomsDeleted.Inc()
}

func (m *Metrics) ObserveStoreOp(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOpDuration.WithLabelValues(backend, op, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncStoreConflict(backend string) {
	if m == nil {
		return
	}
	m.storeConflicts.WithLabelValues(backend).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) IncBroadcastDrop() {
	if m == nil {
		return
	}
	m.broadcastDrops.Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, http.StatusText(status)).Observe(elapsed.Seconds())
}
