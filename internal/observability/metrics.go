package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treenet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "packets",
			Name:      "received_total",
			Help:      "Packets accepted for dispatch, by type.",
		},
		[]string{"node", "type"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "packets",
			Name:      "sent_total",
			Help:      "Packets enqueued for a neighbor, by type.",
		},
		[]string{"node", "type"},
	)
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "packets",
			Name:      "dropped_total",
			Help:      "Inbound packets dropped without reply, by reason.",
		},
		[]string{"node", "reason"},
	)
	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "reunion",
			Name:      "heartbeats_total",
			Help:      "Reunion heartbeat outcomes.",
		},
		[]string{"node", "result"},
	)
	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "transport",
			Name:      "delivery_failures_total",
			Help:      "Outbound flushes that failed and removed the peer entry.",
		},
		[]string{"node"},
	)
	dialAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treenet",
			Subsystem: "transport",
			Name:      "dial_attempts_total",
			Help:      "Outbound dial attempts by result.",
		},
		[]string{"node", "result"},
	)
	treeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "treenet",
			Subsystem: "peer",
			Name:      "neighbors",
			Help:      "Current neighbor and membership counts.",
		},
		[]string{"node", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packetsReceived,
			packetsSent,
			packetsDropped,
			heartbeats,
			deliveryFailures,
			dialAttempts,
			treeGauge,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketReceived(node, packetType string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, packetType).Inc()
}

func RecordPacketSent(node, packetType string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(node, packetType).Inc()
}

func RecordPacketDropped(node, reason string) {
	RegisterMetrics()
	packetsDropped.WithLabelValues(node, reason).Inc()
}

// RecordHeartbeat counts one reunion outcome: "sent", "success", "failure",
// "forwarded" or "answered".
func RecordHeartbeat(node, result string) {
	RegisterMetrics()
	heartbeats.WithLabelValues(node, result).Inc()
}

func RecordDeliveryFailure(node string) {
	RegisterMetrics()
	deliveryFailures.WithLabelValues(node).Inc()
}

func RecordDialAttempt(node string, success bool) {
	RegisterMetrics()
	result := "failure"
	if success {
		result = "success"
	}
	dialAttempts.WithLabelValues(node, result).Inc()
}

// SetNeighborGauge sets one membership count; kind is "children",
// "registered", "tree_alive" or "tree_dead".
func SetNeighborGauge(node, kind string, n int) {
	RegisterMetrics()
	treeGauge.WithLabelValues(node, kind).Set(float64(n))
}
