package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "syslink_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	collectionTicks   *prometheus.CounterVec
	collectionLatency prometheus.Histogram

	storageOps       *prometheus.CounterVec
	storageLatency   *prometheus.HistogramVec
	storageSizeBytes prometheus.Gauge

	alertsRaised  *prometheus.CounterVec
	alertsDropped prometheus.Counter

	wsConnections prometheus.Gauge
	wsSends       *prometheus.CounterVec

	authEvents *prometheus.CounterVec

	notifyDeliveries *prometheus.CounterVec
)

// Init registers agent metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
		collectionTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collection_ticks_total",
				Help: "Total collection ticks by result",
			},
			[]string{"result"},
		)
		collectionLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "collection_duration_seconds",
				Help:    "Hardware read plus alert evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		storageOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "storage_operations_total",
				Help: "Total storage operations by operation and result",
			},
			[]string{"op", "result"},
		)
		storageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "storage_operation_duration_seconds",
				Help:    "Storage operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		storageSizeBytes = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "storage_size_bytes",
				Help: "Size of the metrics database file in bytes",
			},
		)
		alertsRaised = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_raised_total",
				Help: "Total alerts raised by type",
			},
			[]string{"type"},
		)
		alertsDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_dropped_total",
				Help: "Alerts not delivered to the notification queue because it was full",
			},
		)
		wsConnections = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "websocket_connections",
				Help: "Open websocket stream connections",
			},
		)
		wsSends = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "websocket_sends_total",
				Help: "Total websocket messages sent by payload type and result",
			},
			[]string{"type", "result"},
		)
		authEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_events_total",
				Help: "Total auth events by event and result",
			},
			[]string{"event", "result"},
		)
		notifyDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_deliveries_total",
				Help: "Total alert notification deliveries by notifier and result",
			},
			[]string{"notifier", "result"},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			collectionTicks,
			collectionLatency,
			storageOps,
			storageLatency,
			storageSizeBytes,
			alertsRaised,
			alertsDropped,
			wsConnections,
			wsSends,
			authEvents,
			notifyDeliveries,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

// ObserveCollection records one scheduler tick.
func ObserveCollection(err error, duration time.Duration) {
	if collectionTicks != nil {
		collectionTicks.WithLabelValues(result(err)).Inc()
	}
	if collectionLatency != nil && err == nil {
		collectionLatency.Observe(duration.Seconds())
	}
}

// ObserveStorage records a storage operation.
func ObserveStorage(op string, err error, duration time.Duration) {
	if storageOps != nil {
		storageOps.WithLabelValues(op, result(err)).Inc()
	}
	if storageLatency != nil {
		storageLatency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// SetStorageSize sets the database size gauge.
func SetStorageSize(bytes int64) {
	if storageSizeBytes != nil {
		storageSizeBytes.Set(float64(bytes))
	}
}

// IncAlertRaised increments the raised alert counter.
func IncAlertRaised(alertType string) {
	if alertsRaised != nil {
		alertsRaised.WithLabelValues(alertType).Inc()
	}
}

// IncAlertDropped counts alerts that could not be queued for notification.
func IncAlertDropped() {
	if alertsDropped != nil {
		alertsDropped.Inc()
	}
}

// SetWebSocketConnections sets the open connection gauge.
func SetWebSocketConnections(n int) {
	if wsConnections != nil {
		wsConnections.Set(float64(n))
	}
}

// ObserveWebSocketSend records one outbound websocket message.
func ObserveWebSocketSend(payloadType string, err error) {
	if wsSends != nil {
		wsSends.WithLabelValues(payloadType, result(err)).Inc()
	}
}

// ObserveAuth records pairing and token validation outcomes.
func ObserveAuth(event string, ok bool) {
	if authEvents == nil {
		return
	}
	res := resultSuccess
	if !ok {
		res = "rejected"
	}
	authEvents.WithLabelValues(event, res).Inc()
}

// ObserveNotify records one notifier delivery.
func ObserveNotify(notifier string, err error) {
	if notifyDeliveries != nil {
		notifyDeliveries.WithLabelValues(notifier, result(err)).Inc()
	}
}
